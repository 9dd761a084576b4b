package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/application"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

func TestCreateCaptureCompleteSchedulesRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	ctx := context.Background()

	esc, err := f.service.CreateTransaction(ctx, systemActor("idem-create-1"), application.CreateTransactionInput{
		JobID:          "job_1",
		PayerID:        "payer_1",
		PayeeID:        "payee_1",
		Amount:         450,
		ContractorID:   "contractor_1",
		ContractorTier: domain.TierGold,
		JobCategory:    "plumbing",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if esc.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", esc.Status)
	}
	if esc.Currency != "GBP" {
		t.Fatalf("expected default currency, got %s", esc.Currency)
	}

	esc, err = f.service.CapturePayment(ctx, systemActor(""), esc.EscrowID)
	if err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if esc.Status != domain.StatusHeld {
		t.Fatalf("expected held, got %s", esc.Status)
	}

	esc, err = f.service.MarkJobComplete(ctx, systemActor(""), esc.EscrowID)
	if err != nil {
		t.Fatalf("MarkJobComplete: %v", err)
	}
	// The gold default rule does not require photo verification, so completion
	// chains straight through to verified.
	if esc.Status != domain.StatusVerified {
		t.Fatalf("expected verified, got %s", esc.Status)
	}
	if esc.CompletedAt == nil || esc.AutoReleaseAt == nil {
		t.Fatalf("expected completion and release timestamps set")
	}
	if gap := esc.AutoReleaseAt.Sub(*esc.CompletedAt); gap != 3*24*time.Hour {
		t.Fatalf("expected 3 day hold for gold tier, got %s", gap)
	}
}

func TestCreateTransactionRequiresIdempotencyKey(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	_, err := f.service.CreateTransaction(context.Background(), systemActor(""), application.CreateTransactionInput{
		JobID: "job_1", PayerID: "p", PayeeID: "q", Amount: 10,
	})
	if !errors.Is(err, domain.ErrIdempotencyRequired) {
		t.Fatalf("expected ErrIdempotencyRequired, got %v", err)
	}
}

func TestCreateTransactionIdempotentReplay(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	ctx := context.Background()
	input := application.CreateTransactionInput{
		JobID:          "job_replay",
		PayerID:        "payer_1",
		PayeeID:        "payee_1",
		Amount:         100,
		ContractorTier: domain.TierSilver,
		JobCategory:    "painting",
	}

	first, err := f.service.CreateTransaction(ctx, systemActor("idem-replay"), input)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.service.CreateTransaction(ctx, systemActor("idem-replay"), input)
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if first.EscrowID != second.EscrowID {
		t.Fatalf("replay returned a different transaction: %s vs %s", first.EscrowID, second.EscrowID)
	}

	input.Amount = 999
	if _, err := f.service.CreateTransaction(ctx, systemActor("idem-replay"), input); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict for reused key, got %v", err)
	}
}

func TestCreateTransactionDefaultsTierToBronze(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	esc, err := f.service.CreateTransaction(context.Background(), systemActor("idem-bronze"), application.CreateTransactionInput{
		JobID: "job_2", PayerID: "p", PayeeID: "q", Amount: 50,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if esc.ContractorTier != domain.TierBronze {
		t.Fatalf("expected bronze default, got %s", esc.ContractorTier)
	}
}

func TestCalculateAutoReleaseDateUsesDisputePenalty(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	now := time.Now().UTC()
	completed := now.Add(-24 * time.Hour)
	f.escrows.seed(domain.EscrowTransaction{
		EscrowID:               "esc_penalty",
		JobID:                  "job_p",
		PayerID:                "p",
		PayeeID:                "q",
		Amount:                 200,
		Currency:               "GBP",
		ContractorTier:         domain.TierGold,
		ContractorDisputeCount: 2,
		Status:                 domain.StatusHeld,
		AutoReleaseEnabled:     true,
		CompletedAt:            &completed,
	})

	at, err := f.service.CalculateAutoReleaseDate(context.Background(), "esc_penalty")
	if err != nil {
		t.Fatalf("CalculateAutoReleaseDate: %v", err)
	}
	// Gold 3 days plus 2 disputes * 2 penalty days.
	want := completed.AddDate(0, 0, 7)
	if !at.Equal(want) {
		t.Fatalf("expected %v, got %v", want, at)
	}
}

func TestFileDisputeBlocksSweepAndResolveReleases(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	ctx := context.Background()
	seeded := f.seedDue("esc_dispute", domain.StatusVerified, domain.TierGold, 300, "plumbing")

	esc, err := f.service.FileDispute(ctx, systemActor(""), seeded.EscrowID, "work incomplete")
	if err != nil {
		t.Fatalf("FileDispute: %v", err)
	}
	if esc.Status != domain.StatusDisputed {
		t.Fatalf("expected disputed, got %s", esc.Status)
	}

	// Disputed rows are invisible to the sweep.
	result, err := f.service.RunSweep(ctx, domain.TriggerManual)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("disputed escrow must not be swept, processed=%d", result.Processed)
	}

	esc, err = f.service.Resolve(ctx, systemActor(""), application.ResolveInput{
		EscrowID: seeded.EscrowID,
		Outcome:  application.ResolutionRelease,
		Notes:    "evidence favors contractor",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if esc.Status != domain.StatusReleased {
		t.Fatalf("expected released, got %s", esc.Status)
	}
	if esc.ReleaseReason != domain.ReleaseReasonDisputeResolved {
		t.Fatalf("expected dispute_resolved reason, got %s", esc.ReleaseReason)
	}
	if esc.TransferID == "" {
		t.Fatalf("expected transfer id recorded")
	}
}

func TestResolveRefund(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	ctx := context.Background()
	seeded := f.seedDue("esc_refund", domain.StatusVerified, domain.TierGold, 300, "plumbing")
	if _, err := f.service.FileDispute(ctx, systemActor(""), seeded.EscrowID, "damage"); err != nil {
		t.Fatalf("FileDispute: %v", err)
	}

	esc, err := f.service.Resolve(ctx, systemActor(""), application.ResolveInput{
		EscrowID: seeded.EscrowID,
		Outcome:  application.ResolutionRefund,
		Notes:    "refund to payer",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if esc.Status != domain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", esc.Status)
	}
	if f.gateway.callCount() != 0 {
		t.Fatalf("refund must not touch the payment gateway")
	}

	types := f.outbox.eventTypes()
	found := false
	for _, et := range types {
		if et == domain.EventEscrowRefunded {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s in outbox, got %v", domain.EventEscrowRefunded, types)
	}

	// Terminal states accept no further resolution.
	if _, err := f.service.Resolve(ctx, systemActor(""), application.ResolveInput{
		EscrowID: seeded.EscrowID,
		Outcome:  application.ResolutionRelease,
	}); !errors.Is(err, domain.ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
}

func TestResolveRejectsUnknownOutcome(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	seeded := f.seedDue("esc_bad_outcome", domain.StatusManualReview, domain.TierGold, 300, "plumbing")
	_, err := f.service.Resolve(context.Background(), systemActor(""), application.ResolveInput{
		EscrowID: seeded.EscrowID,
		Outcome:  "escalate",
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListReleaseEventsReconstructsHistory(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	ctx := context.Background()

	esc, err := f.service.CreateTransaction(ctx, systemActor("idem-history"), application.CreateTransactionInput{
		JobID:          "job_h",
		PayerID:        "p",
		PayeeID:        "q",
		Amount:         100,
		ContractorTier: domain.TierGold,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := f.service.CapturePayment(ctx, systemActor(""), esc.EscrowID); err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if _, err := f.service.MarkJobComplete(ctx, systemActor(""), esc.EscrowID); err != nil {
		t.Fatalf("MarkJobComplete: %v", err)
	}

	events, err := f.service.ListReleaseEvents(ctx, esc.EscrowID)
	if err != nil {
		t.Fatalf("ListReleaseEvents: %v", err)
	}
	// capture, schedule, auto-verify.
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
	if events[1].ToStatus != domain.StatusPendingVerification || events[2].ToStatus != domain.StatusVerified {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
}

func TestUnauthorizedActorRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(defaultRules())
	_, err := f.service.CreateTransaction(context.Background(), application.Actor{}, application.CreateTransactionInput{
		JobID: "job", PayerID: "p", PayeeID: "q", Amount: 1,
	})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
