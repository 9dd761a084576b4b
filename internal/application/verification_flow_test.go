package application_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tradeforge/escrow-release-service/internal/application"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// photoRules requires photo evidence for every tier so completion parks in
// pending_verification instead of chaining straight to verified.
func photoRules() []domain.AutoReleaseRule {
	rules := defaultRules()
	for i := range rules {
		rules[i].RequirePhotoVerification = true
	}
	return rules
}

func goodAnalysis() domain.PhotoAnalysis {
	return domain.PhotoAnalysis{
		QualityScore:         1.0,
		MatchesDescription:   true,
		CompletionIndicators: []string{"new boiler installed", "pipework sealed", "area cleaned"},
	}
}

func (f *fixture) seedPendingVerification(t *testing.T, escrowID string) domain.EscrowTransaction {
	t.Helper()
	ctx := context.Background()
	esc, err := f.service.CreateTransaction(ctx, systemActor("idem-"+escrowID), application.CreateTransactionInput{
		JobID:          "job_" + escrowID,
		PayerID:        "payer_1",
		PayeeID:        "payee_1",
		Amount:         450,
		ContractorID:   "contractor_1",
		ContractorTier: domain.TierGold,
		JobCategory:    "plumbing",
		JobDescription: "replace boiler",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := f.service.CapturePayment(ctx, systemActor(""), esc.EscrowID); err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	esc, err = f.service.MarkJobComplete(ctx, systemActor(""), esc.EscrowID)
	if err != nil {
		t.Fatalf("MarkJobComplete: %v", err)
	}
	if esc.Status != domain.StatusPendingVerification {
		t.Fatalf("expected pending_verification, got %s", esc.Status)
	}
	return esc
}

func TestVerifyPhotosPassMovesToVerified(t *testing.T) {
	t.Parallel()

	f := newFixture(photoRules())
	f.analyzer.analysis = goodAnalysis()
	esc := f.seedPendingVerification(t, "esc_v1")

	result, err := f.service.VerifyCompletionPhotos(context.Background(), systemActor(""), application.VerifyPhotosInput{
		EscrowID:  esc.EscrowID,
		PhotoURLs: []string{"https://cdn.example/p1.jpg"},
	})
	if err != nil {
		t.Fatalf("VerifyCompletionPhotos: %v", err)
	}
	if result.Status != domain.VerificationVerified {
		t.Fatalf("expected verified result, got %s", result.Status)
	}
	if math.Abs(result.VerificationScore-1.0) > 1e-9 {
		t.Fatalf("expected full score, got %v", result.VerificationScore)
	}

	stored := f.escrows.get(esc.EscrowID)
	if stored.Status != domain.StatusVerified {
		t.Fatalf("expected verified escrow, got %s", stored.Status)
	}
	if stored.PhotoVerificationScore == nil || math.Abs(*stored.PhotoVerificationScore-1.0) > 1e-9 {
		t.Fatalf("expected score stored on the transaction")
	}
}

func TestVerifyPhotosMiddlingScoreParksInManualReview(t *testing.T) {
	t.Parallel()

	f := newFixture(photoRules())
	// 0.5 + 0.3*0.75 = 0.725, minus two concerns lands at 0.625.
	f.analyzer.analysis = domain.PhotoAnalysis{
		QualityScore:       0.75,
		MatchesDescription: true,
		Concerns:           []string{"poor lighting", "partial view"},
	}
	esc := f.seedPendingVerification(t, "esc_v2")

	result, err := f.service.VerifyCompletionPhotos(context.Background(), systemActor(""), application.VerifyPhotosInput{
		EscrowID:  esc.EscrowID,
		PhotoURLs: []string{"https://cdn.example/p1.jpg"},
	})
	if err != nil {
		t.Fatalf("VerifyCompletionPhotos: %v", err)
	}
	if result.Status != domain.VerificationManualReview {
		t.Fatalf("expected manual_review result, got %s", result.Status)
	}
	if f.escrows.get(esc.EscrowID).Status != domain.StatusManualReview {
		t.Fatalf("expected manual_review escrow")
	}
}

func TestVerifyPhotosRuleMinScoreDowngrades(t *testing.T) {
	t.Parallel()

	rules := photoRules()
	for i := range rules {
		rules[i].MinPhotoScore = 0.95
	}
	f := newFixture(rules)
	// 0.5 + 0.3*0.8 + 0.2*(2/3) = 0.873: verified globally, below the rule bar.
	f.analyzer.analysis = domain.PhotoAnalysis{
		QualityScore:         0.8,
		MatchesDescription:   true,
		CompletionIndicators: []string{"done", "cleaned"},
	}
	esc := f.seedPendingVerification(t, "esc_v3")

	result, err := f.service.VerifyCompletionPhotos(context.Background(), systemActor(""), application.VerifyPhotosInput{
		EscrowID:  esc.EscrowID,
		PhotoURLs: []string{"https://cdn.example/p1.jpg"},
	})
	if err != nil {
		t.Fatalf("VerifyCompletionPhotos: %v", err)
	}
	if result.Status != domain.VerificationManualReview {
		t.Fatalf("rule minimum must downgrade, got %s", result.Status)
	}
	if f.escrows.get(esc.EscrowID).Status != domain.StatusManualReview {
		t.Fatalf("expected manual_review escrow")
	}
}

func TestVerifyPhotosAnalyzerDownSoftFails(t *testing.T) {
	t.Parallel()

	f := newFixture(photoRules())
	f.analyzer.err = domain.ErrAnalyzerUnavailable
	esc := f.seedPendingVerification(t, "esc_v4")

	result, err := f.service.VerifyCompletionPhotos(context.Background(), systemActor(""), application.VerifyPhotosInput{
		EscrowID:  esc.EscrowID,
		PhotoURLs: []string{"https://cdn.example/p1.jpg"},
	})
	if err != nil {
		t.Fatalf("analyzer outage must not fail the call: %v", err)
	}
	if !result.AnalyzerUnavailable {
		t.Fatalf("expected the unavailable variant")
	}
	if result.VerificationScore != 0.5 {
		t.Fatalf("expected neutral score, got %v", result.VerificationScore)
	}
	if result.Status != domain.VerificationManualReview {
		t.Fatalf("expected manual_review, got %s", result.Status)
	}
	if f.escrows.get(esc.EscrowID).Status != domain.StatusManualReview {
		t.Fatalf("expected escrow parked in manual_review")
	}
}

func TestReverificationRecordsWithoutProgressing(t *testing.T) {
	t.Parallel()

	f := newFixture(photoRules())
	f.analyzer.err = domain.ErrAnalyzerUnavailable
	esc := f.seedPendingVerification(t, "esc_v5")
	ctx := context.Background()

	if _, err := f.service.VerifyCompletionPhotos(ctx, systemActor(""), application.VerifyPhotosInput{
		EscrowID:  esc.EscrowID,
		PhotoURLs: []string{"https://cdn.example/p1.jpg"},
	}); err != nil {
		t.Fatalf("first verification: %v", err)
	}

	// Analyzer recovers; the retry from manual_review appends an attempt but
	// leaves the status to a human.
	f.analyzer.err = nil
	f.analyzer.analysis = goodAnalysis()
	result, err := f.service.VerifyCompletionPhotos(ctx, systemActor(""), application.VerifyPhotosInput{
		EscrowID:  esc.EscrowID,
		PhotoURLs: []string{"https://cdn.example/p2.jpg"},
	})
	if err != nil {
		t.Fatalf("re-verification: %v", err)
	}
	if result.Status != domain.VerificationVerified {
		t.Fatalf("expected verified attempt, got %s", result.Status)
	}
	if f.escrows.get(esc.EscrowID).Status != domain.StatusManualReview {
		t.Fatalf("re-verification must not auto-progress out of manual_review")
	}

	attempts, err := f.verifications.ListByEscrowID(ctx, esc.EscrowID)
	if err != nil {
		t.Fatalf("ListByEscrowID: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 immutable attempts, got %d", len(attempts))
	}
}

func TestVerifyPhotosRejectsWrongState(t *testing.T) {
	t.Parallel()

	f := newFixture(photoRules())
	seeded := f.seedDue("esc_v6", domain.StatusVerified, domain.TierGold, 450, "plumbing")

	_, err := f.service.VerifyCompletionPhotos(context.Background(), systemActor(""), application.VerifyPhotosInput{
		EscrowID:  seeded.EscrowID,
		PhotoURLs: []string{"https://cdn.example/p1.jpg"},
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestVerifyPhotosRequiresPhotos(t *testing.T) {
	t.Parallel()

	f := newFixture(photoRules())
	esc := f.seedPendingVerification(t, "esc_v7")

	_, err := f.service.VerifyCompletionPhotos(context.Background(), systemActor(""), application.VerifyPhotosInput{
		EscrowID: esc.EscrowID,
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
