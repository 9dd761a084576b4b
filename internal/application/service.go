package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// CreateTransaction opens a pending escrow when a job payment is authorized.
// The contractor tier, category and dispute history are snapshotted here so
// rule resolution stays deterministic for the life of the transaction.
func (s *Service) CreateTransaction(ctx context.Context, actor Actor, input CreateTransactionInput) (domain.EscrowTransaction, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowTransaction{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(actor.IdempotencyKey) == "" {
		return domain.EscrowTransaction{}, domain.ErrIdempotencyRequired
	}
	input.JobID = strings.TrimSpace(input.JobID)
	input.PayerID = strings.TrimSpace(input.PayerID)
	input.PayeeID = strings.TrimSpace(input.PayeeID)
	input.ContractorTier = strings.ToLower(strings.TrimSpace(input.ContractorTier))
	if input.JobID == "" || input.PayerID == "" || input.PayeeID == "" || input.Amount <= 0 {
		return domain.EscrowTransaction{}, domain.ErrInvalidInput
	}
	if input.ContractorTier == "" {
		input.ContractorTier = domain.TierBronze
	}
	if input.Currency == "" {
		input.Currency = s.cfg.DefaultCurrency
	}

	requestHash := hashJSON(input)
	if cached, ok, err := s.getIdempotentTransaction(ctx, actor.IdempotencyKey, requestHash); err != nil {
		return domain.EscrowTransaction{}, err
	} else if ok {
		return cached, nil
	}
	if err := s.reserveIdempotency(ctx, actor.IdempotencyKey, requestHash); err != nil {
		return domain.EscrowTransaction{}, err
	}

	now := s.nowFn()
	row := domain.EscrowTransaction{
		EscrowID:               uuid.NewString(),
		JobID:                  input.JobID,
		PayerID:                input.PayerID,
		PayeeID:                input.PayeeID,
		Amount:                 input.Amount,
		Currency:               input.Currency,
		ContractorID:           strings.TrimSpace(input.ContractorID),
		ContractorTier:         input.ContractorTier,
		JobCategory:            strings.ToLower(strings.TrimSpace(input.JobCategory)),
		JobDescription:         strings.TrimSpace(input.JobDescription),
		ContractorDisputeCount: input.ContractorDisputeCount,
		Status:                 domain.StatusPending,
		AutoReleaseEnabled:     true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.escrows.Create(ctx, row); err != nil {
		return domain.EscrowTransaction{}, err
	}
	_ = s.completeIdempotencyJSON(ctx, actor.IdempotencyKey, 201, row)
	return row, nil
}

// CapturePayment moves pending -> held once the payer's funds are captured.
func (s *Service) CapturePayment(ctx context.Context, actor Actor, escrowID string) (domain.EscrowTransaction, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowTransaction{}, domain.ErrUnauthorized
	}
	esc, err := s.escrows.GetByID(ctx, strings.TrimSpace(escrowID))
	if err != nil {
		return domain.EscrowTransaction{}, err
	}
	from := esc.Status
	if err := esc.Transition(domain.StatusHeld, s.nowFn()); err != nil {
		return domain.EscrowTransaction{}, err
	}
	if err := s.escrows.UpdateIfStatus(ctx, from, esc); err != nil {
		return domain.EscrowTransaction{}, err
	}
	s.appendAudit(ctx, esc.EscrowID, from, esc.Status, domain.TriggerAPI, domain.AuditOutcomeTransition, decisionInputs{}, esc.UpdatedAt)
	return esc, nil
}

// MarkJobComplete moves held -> pending_verification and schedules the
// auto-release date from the resolved rule. When the rule does not require
// photo verification the transaction continues straight to verified.
func (s *Service) MarkJobComplete(ctx context.Context, actor Actor, escrowID string) (domain.EscrowTransaction, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowTransaction{}, domain.ErrUnauthorized
	}
	esc, err := s.escrows.GetByID(ctx, strings.TrimSpace(escrowID))
	if err != nil {
		return domain.EscrowTransaction{}, err
	}

	rule, err := s.resolveRuleFor(ctx, esc)
	if err != nil {
		return domain.EscrowTransaction{}, err
	}

	now := s.nowFn()
	from := esc.Status
	if err := esc.Transition(domain.StatusPendingVerification, now); err != nil {
		return domain.EscrowTransaction{}, err
	}
	releaseAt := now.AddDate(0, 0, rule.HoldPeriodDays)
	esc.CompletedAt = &now
	esc.AutoReleaseAt = &releaseAt
	if err := s.escrows.UpdateIfStatus(ctx, from, esc); err != nil {
		return domain.EscrowTransaction{}, err
	}
	s.appendAudit(ctx, esc.EscrowID, from, esc.Status, domain.TriggerAPI, domain.AuditOutcomeScheduled, decisionInputs{
		RuleID:         rule.RuleID,
		HoldPeriodDays: rule.HoldPeriodDays,
		MinPhotoScore:  rule.MinPhotoScore,
		RiskMultiplier: rule.RiskMultiplier,
	}, now)

	if !rule.RequirePhotoVerification {
		verified := esc
		if err := verified.Transition(domain.StatusVerified, s.nowFn()); err != nil {
			return domain.EscrowTransaction{}, err
		}
		if err := s.escrows.UpdateIfStatus(ctx, domain.StatusPendingVerification, verified); err != nil {
			if errors.Is(err, domain.ErrTransitionConflict) {
				return s.escrows.GetByID(ctx, esc.EscrowID)
			}
			return domain.EscrowTransaction{}, err
		}
		s.appendAudit(ctx, esc.EscrowID, domain.StatusPendingVerification, domain.StatusVerified, domain.TriggerAPI, domain.AuditOutcomeVerified, decisionInputs{
			RuleID: rule.RuleID,
			Reason: "photo verification not required by rule",
		}, verified.UpdatedAt)
		return verified, nil
	}
	return esc, nil
}

// CalculateAutoReleaseDate exposes the scheduled release date computation
// without mutating state; completion time defaults to now for jobs that have
// not completed yet.
func (s *Service) CalculateAutoReleaseDate(ctx context.Context, escrowID string) (time.Time, error) {
	esc, err := s.escrows.GetByID(ctx, strings.TrimSpace(escrowID))
	if err != nil {
		return time.Time{}, err
	}
	rule, err := s.resolveRuleFor(ctx, esc)
	if err != nil {
		return time.Time{}, err
	}
	base := s.nowFn()
	if esc.CompletedAt != nil {
		base = *esc.CompletedAt
	}
	return base.AddDate(0, 0, rule.HoldPeriodDays), nil
}

// FileDispute parks any in-flight transaction in the disputed state. The
// sweep skips disputed rows entirely until resolution.
func (s *Service) FileDispute(ctx context.Context, actor Actor, escrowID, reason string) (domain.EscrowTransaction, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowTransaction{}, domain.ErrUnauthorized
	}
	esc, err := s.escrows.GetByID(ctx, strings.TrimSpace(escrowID))
	if err != nil {
		return domain.EscrowTransaction{}, err
	}
	now := s.nowFn()
	from := esc.Status
	if err := esc.Transition(domain.StatusDisputed, now); err != nil {
		return domain.EscrowTransaction{}, err
	}
	if err := s.escrows.UpdateIfStatus(ctx, from, esc); err != nil {
		return domain.EscrowTransaction{}, err
	}
	s.appendAudit(ctx, esc.EscrowID, from, esc.Status, domain.TriggerAPI, domain.AuditOutcomeDisputed, decisionInputs{Reason: reason}, now)
	s.enqueueDisputed(ctx, esc, reason, actor.RequestID, now)
	return esc, nil
}

// Resolve settles a disputed or manual-review transaction by human decision.
// Release goes through the same guarded gateway path as the sweep; there is
// no backdoor field mutation.
func (s *Service) Resolve(ctx context.Context, actor Actor, input ResolveInput) (domain.EscrowTransaction, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.EscrowTransaction{}, domain.ErrUnauthorized
	}
	esc, err := s.escrows.GetByID(ctx, strings.TrimSpace(input.EscrowID))
	if err != nil {
		return domain.EscrowTransaction{}, err
	}
	if esc.Status != domain.StatusDisputed && esc.Status != domain.StatusManualReview {
		if esc.Status.Terminal() {
			return domain.EscrowTransaction{}, domain.ErrTerminalState
		}
		return domain.EscrowTransaction{}, domain.ErrInvalidTransition
	}

	reason := domain.ReleaseReasonManual
	if esc.Status == domain.StatusDisputed {
		reason = domain.ReleaseReasonDisputeResolved
	}

	switch input.Outcome {
	case ResolutionRelease:
		return s.releaseWithGateway(ctx, esc, esc.Status, domain.TriggerManual, reason, decisionInputs{Reason: input.Notes})
	case ResolutionRefund:
		now := s.nowFn()
		from := esc.Status
		if err := esc.Transition(domain.StatusRefunded, now); err != nil {
			return domain.EscrowTransaction{}, err
		}
		esc.AutoReleaseEnabled = false
		if err := s.escrows.UpdateIfStatus(ctx, from, esc); err != nil {
			return domain.EscrowTransaction{}, err
		}
		s.appendAudit(ctx, esc.EscrowID, from, esc.Status, domain.TriggerManual, domain.AuditOutcomeRefunded, decisionInputs{Reason: input.Notes}, now)
		s.enqueueRefunded(ctx, esc, actor.RequestID, now)
		return esc, nil
	default:
		return domain.EscrowTransaction{}, domain.ErrInvalidInput
	}
}

// GetTransaction reads one escrow row.
func (s *Service) GetTransaction(ctx context.Context, escrowID string) (domain.EscrowTransaction, error) {
	escrowID = strings.TrimSpace(escrowID)
	if escrowID == "" {
		return domain.EscrowTransaction{}, domain.ErrInvalidInput
	}
	return s.escrows.GetByID(ctx, escrowID)
}

// ListReleaseEvents returns the full audit trail for one escrow, oldest
// first, sufficient to reconstruct its status history.
func (s *Service) ListReleaseEvents(ctx context.Context, escrowID string) ([]domain.ReleaseEvent, error) {
	escrowID = strings.TrimSpace(escrowID)
	if escrowID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.auditLog.ListByEscrowID(ctx, escrowID)
}

// resolveRuleFor loads the rule set (cache first) and resolves it against the
// transaction's snapshotted inputs.
func (s *Service) resolveRuleFor(ctx context.Context, esc domain.EscrowTransaction) (domain.ResolvedRule, error) {
	rules, err := s.loadRules(ctx)
	if err != nil {
		return domain.ResolvedRule{}, err
	}
	return domain.ResolveRule(rules, esc.ContractorTier, esc.Amount, esc.JobCategory, esc.ContractorDisputeCount)
}

func (s *Service) loadRules(ctx context.Context) ([]domain.AutoReleaseRule, error) {
	if s.ruleCache != nil {
		if cached, ok, err := s.ruleCache.Get(ctx); err == nil && ok {
			return cached, nil
		}
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.ruleCache != nil {
		_ = s.ruleCache.Set(ctx, rules, s.cfg.RuleCacheTTL)
	}
	return rules, nil
}

func (s *Service) getIdempotentTransaction(ctx context.Context, key, requestHash string) (domain.EscrowTransaction, bool, error) {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return domain.EscrowTransaction{}, false, nil
	}
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil || rec == nil {
		return domain.EscrowTransaction{}, false, err
	}
	if rec.RequestHash != requestHash {
		return domain.EscrowTransaction{}, false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		return domain.EscrowTransaction{}, false, nil
	}
	var out domain.EscrowTransaction
	if err := json.Unmarshal(rec.ResponseBody, &out); err != nil {
		return domain.EscrowTransaction{}, false, nil
	}
	return out, true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, key, requestHash string) error {
	if s.idempotency == nil {
		return nil
	}
	err := s.idempotency.Reserve(ctx, key, requestHash, s.nowFn().Add(s.cfg.IdempotencyTTL))
	if errors.Is(err, domain.ErrConflict) {
		return domain.ErrIdempotencyConflict
	}
	return err
}

func (s *Service) completeIdempotencyJSON(ctx context.Context, key string, code int, payload any) error {
	if s.idempotency == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	b, _ := json.Marshal(payload)
	return s.idempotency.Complete(ctx, key, code, b, s.nowFn())
}

func hashJSON(v any) string {
	b, _ := json.Marshal(v)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
