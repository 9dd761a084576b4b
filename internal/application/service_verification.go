package application

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// VerifyCompletionPhotos scores uploaded completion evidence and moves the
// transaction out of pending_verification. Analyzer unavailability is a soft
// fail: the attempt is recorded with the explicit unavailable variant and the
// escrow parks in manual review for a human decision.
func (s *Service) VerifyCompletionPhotos(ctx context.Context, actor Actor, input VerifyPhotosInput) (domain.PhotoVerificationResult, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.PhotoVerificationResult{}, domain.ErrUnauthorized
	}
	input.EscrowID = strings.TrimSpace(input.EscrowID)
	if input.EscrowID == "" || len(input.PhotoURLs) == 0 {
		return domain.PhotoVerificationResult{}, domain.ErrInvalidInput
	}
	esc, err := s.escrows.GetByID(ctx, input.EscrowID)
	if err != nil {
		return domain.PhotoVerificationResult{}, err
	}
	if esc.Status != domain.StatusPendingVerification && esc.Status != domain.StatusManualReview {
		if esc.Status.Terminal() {
			return domain.PhotoVerificationResult{}, domain.ErrTerminalState
		}
		return domain.PhotoVerificationResult{}, domain.ErrInvalidTransition
	}

	rule, err := s.resolveRuleFor(ctx, esc)
	if err != nil {
		return domain.PhotoVerificationResult{}, err
	}

	outcome, analysis := s.analyzePhotos(ctx, input.PhotoURLs, esc.JobDescription)

	// A rule may demand a stricter score than the global verify threshold.
	if outcome.Status == domain.VerificationVerified && outcome.Score < rule.MinPhotoScore {
		outcome.Status = domain.VerificationManualReview
	}

	now := s.nowFn()
	result := domain.PhotoVerificationResult{
		ResultID:              uuid.NewString(),
		EscrowID:              esc.EscrowID,
		JobID:                 esc.JobID,
		PhotoURLs:             input.PhotoURLs,
		VerificationScore:     outcome.Score,
		Status:                outcome.Status,
		MatchesJobDescription: analysis.MatchesDescription,
		CompletionIndicators:  analysis.CompletionIndicators,
		Concerns:              analysis.Concerns,
		AnalyzerUnavailable:   outcome.Unavailable,
		AnalyzedAt:            now,
	}
	if err := s.verifications.Append(ctx, result); err != nil {
		return domain.PhotoVerificationResult{}, err
	}

	// Re-verification out of manual_review records the attempt but does not
	// auto-progress the escrow; only a human action moves it on.
	if esc.Status == domain.StatusManualReview {
		return result, nil
	}

	from := esc.Status
	to := domain.StatusManualReview
	auditOutcome := domain.AuditOutcomeManualReview
	if outcome.Status == domain.VerificationVerified {
		to = domain.StatusVerified
		auditOutcome = domain.AuditOutcomeVerified
	}
	if err := esc.Transition(to, now); err != nil {
		return domain.PhotoVerificationResult{}, err
	}
	score := outcome.Score
	esc.PhotoVerificationStatus = outcome.Status
	esc.PhotoVerificationScore = &score
	if err := s.escrows.UpdateIfStatus(ctx, from, esc); err != nil {
		if errors.Is(err, domain.ErrTransitionConflict) {
			// Another caller settled the status first; the attempt row above
			// still stands as the latest verification.
			return result, nil
		}
		return domain.PhotoVerificationResult{}, err
	}
	s.appendAudit(ctx, esc.EscrowID, from, to, domain.TriggerAPI, auditOutcome, decisionInputs{
		RuleID:        rule.RuleID,
		MinPhotoScore: rule.MinPhotoScore,
		PhotoScore:    &score,
		PhotoStatus:   string(outcome.Status),
		Reason:        analyzerReason(outcome),
	}, now)
	return result, nil
}

// analyzePhotos calls the analyzer under its timeout and normalizes the
// result, degrading to the unavailable outcome on any failure.
func (s *Service) analyzePhotos(ctx context.Context, photoURLs []string, jobDescription string) (domain.VerificationOutcome, domain.PhotoAnalysis) {
	if s.analyzer == nil {
		return domain.UnavailableVerification(), domain.PhotoAnalysis{}
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.AnalyzerTimeout)
	defer cancel()
	analysis, err := s.analyzer.Analyze(callCtx, photoURLs, jobDescription)
	if err != nil {
		s.logger.WarnContext(ctx, "photo analyzer unavailable",
			"module", "verification",
			"operation", "analyze_photos",
			"outcome", "degraded",
			"error", err,
		)
		return domain.UnavailableVerification(), domain.PhotoAnalysis{}
	}
	return domain.ScoreVerification(analysis), analysis
}

func analyzerReason(outcome domain.VerificationOutcome) string {
	if outcome.Unavailable {
		return "analyzer unavailable, neutral score recorded"
	}
	return ""
}
