package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tradeforge/escrow-release-service/internal/domain"
	"github.com/tradeforge/escrow-release-service/internal/ports"
)

type candidateOutcome int

const (
	outcomeReleased candidateOutcome = iota
	outcomeExtended
	outcomeFailed
	outcomeSkipped
)

// RunSweep is one execution of the batch scheduler. Candidates are claimed
// atomically before any work happens, so overlapping sweeps (a slow previous
// run, a second worker replica) each see a disjoint set; a claim lost here is
// a silent skip, not an error. Within the batch, escrows are evaluated
// concurrently since every transition is independently guarded.
func (s *Service) RunSweep(ctx context.Context, trigger string) (SweepResult, error) {
	if trigger == "" {
		trigger = domain.TriggerScheduledSweep
	}

	if s.sweepLock != nil {
		lockToken := uuid.NewString()
		acquired, err := s.sweepLock.Acquire(ctx, lockToken, s.cfg.ClaimTTL)
		if err != nil {
			// The lock is an optimization; per-escrow claims stay authoritative.
			s.logger.WarnContext(ctx, "sweep lock unavailable, continuing on claims",
				"module", "sweep",
				"operation", "run_sweep",
				"outcome", "degraded",
				"error", err,
			)
		} else if !acquired {
			s.logger.InfoContext(ctx, "sweep already running elsewhere",
				"module", "sweep",
				"operation", "run_sweep",
				"outcome", "skipped",
				"trigger", trigger,
			)
			return SweepResult{}, nil
		} else {
			defer func() { _ = s.sweepLock.Release(context.WithoutCancel(ctx), lockToken) }()
		}
	}

	now := s.nowFn()
	claimToken := uuid.NewString()
	candidates, err := s.escrows.ClaimDue(ctx, s.cfg.SweepBatchSize, claimToken, now, now.Add(s.cfg.ClaimTTL))
	if err != nil {
		return SweepResult{}, fmt.Errorf("claim due escrows: %w", err)
	}

	var (
		mu     sync.Mutex
		result SweepResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.cfg.SweepConcurrency)
	)
	result.Processed = len(candidates)

	for _, esc := range candidates {
		esc := esc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := s.processCandidate(ctx, esc, claimToken, trigger)
			mu.Lock()
			switch outcome {
			case outcomeReleased:
				result.Released++
			case outcomeExtended:
				result.Extended++
			case outcomeFailed:
				result.Failed++
			case outcomeSkipped:
				result.Skipped++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if result.Processed > 0 {
		s.logger.InfoContext(ctx, "sweep completed",
			"module", "sweep",
			"operation", "run_sweep",
			"outcome", "success",
			"trigger", trigger,
			"processed", result.Processed,
			"released", result.Released,
			"extended", result.Extended,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

// processCandidate evaluates one claimed escrow: exhaustion check, rule
// resolution, risk re-assessment, then release. Every outcome leaves exactly
// one audit entry.
func (s *Service) processCandidate(ctx context.Context, esc domain.EscrowTransaction, claimToken, trigger string) candidateOutcome {
	now := s.nowFn()

	if esc.ReleaseAttemptCount >= s.cfg.ReleaseMaxAttempts {
		return s.escalateExhausted(ctx, esc, claimToken, trigger, now)
	}

	rule, err := s.resolveRuleFor(ctx, esc)
	if err != nil {
		// Configuration defect. Surface loudly, release the claim, and leave
		// the row for operator attention rather than retry-looping on it.
		s.logger.ErrorContext(ctx, "rule resolution failed for release candidate",
			"module", "sweep",
			"operation", "process_candidate",
			"outcome", "failure",
			"escrow_id", esc.EscrowID,
			"error", err,
		)
		_ = s.escrows.ReleaseClaim(ctx, esc.EscrowID, claimToken)
		s.appendAudit(ctx, esc.EscrowID, esc.Status, esc.Status, trigger, domain.AuditOutcomeEscalated, decisionInputs{Reason: err.Error()}, now)
		return outcomeSkipped
	}

	if esc.Status == domain.StatusVerified || esc.Status == domain.StatusRiskExtended {
		assessment := s.assessRiskFor(ctx, esc, rule)
		if assessment.Extend {
			return s.extendHold(ctx, esc, claimToken, trigger, rule, assessment, now)
		}
		inputs := riskInputs(rule, assessment)
		_, err := s.performRelease(ctx, esc, trigger, domain.ReleaseReasonAutoRelease, inputs, s.commitClaimed(claimToken))
		return releaseOutcome(err)
	}

	// release_failed retry: risk was assessed before the first attempt and
	// the escrow already passed it; go straight back to the gateway.
	_, err = s.performRelease(ctx, esc, trigger, domain.ReleaseReasonAutoRelease, decisionInputs{
		RuleID:       rule.RuleID,
		AttemptCount: esc.ReleaseAttemptCount + 1,
	}, s.commitClaimed(claimToken))
	return releaseOutcome(err)
}

func (s *Service) escalateExhausted(ctx context.Context, esc domain.EscrowTransaction, claimToken, trigger string, now time.Time) candidateOutcome {
	from := esc.Status
	if err := esc.Transition(domain.StatusManualReview, now); err != nil {
		_ = s.escrows.ReleaseClaim(ctx, esc.EscrowID, claimToken)
		return outcomeSkipped
	}
	esc.AutoReleaseEnabled = false
	if err := s.escrows.UpdateClaimed(ctx, claimToken, esc); err != nil {
		return outcomeSkipped
	}
	s.logger.ErrorContext(ctx, "release attempts exhausted, escalating",
		"module", "sweep",
		"operation", "process_candidate",
		"outcome", "failure",
		"escrow_id", esc.EscrowID,
		"attempt_count", esc.ReleaseAttemptCount,
	)
	s.appendAudit(ctx, esc.EscrowID, from, esc.Status, trigger, domain.AuditOutcomeEscalated, decisionInputs{
		AttemptCount: esc.ReleaseAttemptCount,
		Reason:       "release attempts exhausted",
	}, now)
	return outcomeFailed
}

func (s *Service) extendHold(ctx context.Context, esc domain.EscrowTransaction, claimToken, trigger string, rule domain.ResolvedRule, assessment domain.RiskAssessment, now time.Time) candidateOutcome {
	from := esc.Status
	if err := esc.Transition(domain.StatusRiskExtended, now); err != nil {
		_ = s.escrows.ReleaseClaim(ctx, esc.EscrowID, claimToken)
		return outcomeSkipped
	}
	extensionDays := assessment.NewHoldPeriodDays - rule.HoldPeriodDays
	base := now
	if esc.AutoReleaseAt != nil {
		base = *esc.AutoReleaseAt
	}
	newReleaseAt := base.AddDate(0, 0, extensionDays)
	esc.AutoReleaseAt = &newReleaseAt
	esc.RiskHoldExtended = true
	esc.RiskHoldReason = assessment.Reason
	if err := s.escrows.UpdateClaimed(ctx, claimToken, esc); err != nil {
		return outcomeSkipped
	}
	s.appendAudit(ctx, esc.EscrowID, from, esc.Status, trigger, domain.AuditOutcomeExtended, riskInputs(rule, assessment), now)
	s.enqueueRiskExtended(ctx, esc, now)
	return outcomeExtended
}

// assessRiskFor re-runs the dispute model for one escrow at release time.
// Predictor failure yields a nil prediction, which the assessor treats as
// fail-open: the payment is not delayed on an unreachable model.
func (s *Service) assessRiskFor(ctx context.Context, esc domain.EscrowTransaction, rule domain.ResolvedRule) domain.RiskAssessment {
	var pred *domain.RiskPrediction
	if s.predictor != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.PredictorTimeout)
		p, err := s.predictor.Predict(callCtx, esc.JobID, esc.ContractorID)
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "dispute predictor unavailable",
				"module", "sweep",
				"operation", "assess_risk",
				"outcome", "degraded",
				"escrow_id", esc.EscrowID,
				"error", err,
			)
		} else {
			pred = &p
		}
	}
	return domain.AssessRisk(pred, rule.HoldPeriodDays, rule.RiskMultiplier, s.isElevated(esc), s.cfg.DisputeRiskThreshold)
}

func (s *Service) isElevated(esc domain.EscrowTransaction) bool {
	if esc.Amount >= s.cfg.HighValueThreshold {
		return true
	}
	for _, category := range s.cfg.HighRiskCategories {
		if strings.EqualFold(category, esc.JobCategory) {
			return true
		}
	}
	return false
}

// EvaluateAutoRelease previews what the sweep would decide for one escrow
// without mutating anything. Used by the manual-release UI.
func (s *Service) EvaluateAutoRelease(ctx context.Context, escrowID string) (Evaluation, error) {
	esc, err := s.escrows.GetByID(ctx, strings.TrimSpace(escrowID))
	if err != nil {
		return Evaluation{}, err
	}
	out := Evaluation{EscrowID: esc.EscrowID}

	if esc.Status != domain.StatusVerified && esc.Status != domain.StatusRiskExtended {
		out.Reason = fmt.Sprintf("status %s is not eligible for auto-release", esc.Status)
		return out, nil
	}
	if !esc.AutoReleaseEnabled {
		out.Reason = "auto-release disabled for this escrow"
		return out, nil
	}
	now := s.nowFn()
	if esc.AutoReleaseAt == nil || esc.AutoReleaseAt.After(now) {
		out.Reason = "hold period has not elapsed"
		if esc.AutoReleaseAt != nil {
			out.Reason = fmt.Sprintf("hold period elapses at %s", esc.AutoReleaseAt.Format(time.RFC3339))
		}
		return out, nil
	}

	rule, err := s.resolveRuleFor(ctx, esc)
	if err != nil {
		return Evaluation{}, err
	}
	assessment := s.assessRiskFor(ctx, esc, rule)
	if assessment.Extend {
		out.Reason = assessment.Reason
		return out, nil
	}
	out.Approved = true
	out.Reason = "hold elapsed and risk assessment clean"
	if assessment.PredictorUnavailable {
		out.Reason = "hold elapsed; risk unknown (predictor unavailable), releasing per fail-open policy"
	}
	return out, nil
}

// commitFn persists a mutated row under the caller's concurrency guard.
type commitFn func(ctx context.Context, row domain.EscrowTransaction) error

func (s *Service) commitClaimed(claimToken string) commitFn {
	return func(ctx context.Context, row domain.EscrowTransaction) error {
		return s.escrows.UpdateClaimed(ctx, claimToken, row)
	}
}

func (s *Service) commitByStatus(expect domain.Status) commitFn {
	return func(ctx context.Context, row domain.EscrowTransaction) error {
		return s.escrows.UpdateIfStatus(ctx, expect, row)
	}
}

// releaseWithGateway is the manual/dispute-resolution release entry point;
// it guards on the current status instead of a sweep claim.
func (s *Service) releaseWithGateway(ctx context.Context, esc domain.EscrowTransaction, from domain.Status, trigger, releaseReason string, inputs decisionInputs) (domain.EscrowTransaction, error) {
	return s.performRelease(ctx, esc, trigger, releaseReason, inputs, s.commitByStatus(from))
}

// performRelease invokes the payment gateway exactly once per call and
// commits the resulting transition. The escrow's own ID is the idempotency
// key, so a retry after release_failed cannot double-pay even if the rail
// processed the original request.
func (s *Service) performRelease(ctx context.Context, esc domain.EscrowTransaction, trigger, releaseReason string, inputs decisionInputs, commit commitFn) (domain.EscrowTransaction, error) {
	if esc.TransferID != "" {
		// transfer_id outside the released state violates a core invariant.
		s.logger.ErrorContext(ctx, "transfer already recorded on unreleased escrow",
			"module", "sweep",
			"operation", "perform_release",
			"outcome", "failure",
			"escrow_id", esc.EscrowID,
			"transfer_id", esc.TransferID,
		)
		return domain.EscrowTransaction{}, domain.ErrAlreadyTransferred
	}
	if s.gateway == nil {
		return domain.EscrowTransaction{}, errors.New("payment gateway not configured")
	}

	attempt := esc.ReleaseAttemptCount + 1
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	transferID, err := s.gateway.Transfer(callCtx, ports.TransferRequest{
		PayeeAccountRef: esc.PayeeID,
		Amount:          esc.Amount,
		Currency:        esc.Currency,
		IdempotencyKey:  esc.EscrowID,
	})
	cancel()
	now := s.nowFn()
	from := esc.Status

	if err == nil {
		if err := esc.Transition(domain.StatusReleased, now); err != nil {
			return domain.EscrowTransaction{}, err
		}
		esc.TransferID = transferID
		esc.ReleaseReason = releaseReason
		esc.ReleaseAttemptCount = attempt
		esc.NextRetryAt = nil
		esc.LastReleaseError = ""
		if err := commit(ctx, esc); err != nil {
			return domain.EscrowTransaction{}, err
		}
		inputs.AttemptCount = attempt
		s.appendAudit(ctx, esc.EscrowID, from, esc.Status, trigger, domain.AuditOutcomeReleased, inputs, now)
		s.enqueueReleased(ctx, esc, now)
		return esc, nil
	}

	var gw *domain.GatewayError
	permanent := errors.As(err, &gw) && gw.Permanent
	exhausted := attempt >= s.cfg.ReleaseMaxAttempts

	esc.ReleaseAttemptCount = attempt
	esc.LastReleaseError = err.Error()

	if (permanent || exhausted) && domain.CanTransition(from, domain.StatusManualReview) {
		if terr := esc.Transition(domain.StatusManualReview, now); terr != nil {
			return domain.EscrowTransaction{}, terr
		}
		esc.AutoReleaseEnabled = false
		esc.NextRetryAt = nil
		if cerr := commit(ctx, esc); cerr != nil {
			return domain.EscrowTransaction{}, cerr
		}
		inputs.AttemptCount = attempt
		inputs.GatewayError = err.Error()
		s.appendAudit(ctx, esc.EscrowID, from, esc.Status, trigger, domain.AuditOutcomeEscalated, inputs, now)
		s.enqueueReleaseFailed(ctx, esc, err.Error(), false, now)
		return esc, err
	}

	if terr := esc.Transition(domain.StatusReleaseFailed, now); terr != nil {
		return domain.EscrowTransaction{}, terr
	}
	retryAt := now.Add(time.Duration(attempt) * s.cfg.RetryBackoff)
	esc.NextRetryAt = &retryAt
	if cerr := commit(ctx, esc); cerr != nil {
		return domain.EscrowTransaction{}, cerr
	}
	inputs.AttemptCount = attempt
	inputs.GatewayError = err.Error()
	s.appendAudit(ctx, esc.EscrowID, from, esc.Status, trigger, domain.AuditOutcomeFailed, inputs, now)
	s.enqueueReleaseFailed(ctx, esc, err.Error(), true, now)
	return esc, err
}

func releaseOutcome(err error) candidateOutcome {
	if err == nil {
		return outcomeReleased
	}
	if errors.Is(err, domain.ErrTransitionConflict) {
		return outcomeSkipped
	}
	return outcomeFailed
}

func riskInputs(rule domain.ResolvedRule, assessment domain.RiskAssessment) decisionInputs {
	inputs := decisionInputs{
		RuleID:               rule.RuleID,
		HoldPeriodDays:       rule.HoldPeriodDays,
		MinPhotoScore:        rule.MinPhotoScore,
		RiskMultiplier:       rule.RiskMultiplier,
		PredictorUnavailable: assessment.PredictorUnavailable,
		Reason:               assessment.Reason,
	}
	if !assessment.PredictorUnavailable {
		probability := assessment.Probability
		inputs.DisputeProbability = &probability
	}
	return inputs
}
