package grpc

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tradeforge/escrow-release-service/internal/application"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

type stubEscrowRepo struct {
	row domain.EscrowTransaction
}

func (r *stubEscrowRepo) Create(context.Context, domain.EscrowTransaction) error { return nil }

func (r *stubEscrowRepo) GetByID(_ context.Context, escrowID string) (domain.EscrowTransaction, error) {
	if escrowID != r.row.EscrowID {
		return domain.EscrowTransaction{}, domain.ErrNotFound
	}
	return r.row, nil
}

func (r *stubEscrowRepo) UpdateIfStatus(context.Context, domain.Status, domain.EscrowTransaction) error {
	return nil
}

func (r *stubEscrowRepo) ClaimDue(context.Context, int, string, time.Time, time.Time) ([]domain.EscrowTransaction, error) {
	return nil, nil
}

func (r *stubEscrowRepo) UpdateClaimed(context.Context, string, domain.EscrowTransaction) error {
	return nil
}

func (r *stubEscrowRepo) ReleaseClaim(context.Context, string, string) error { return nil }

type stubRuleRepo struct{}

func (stubRuleRepo) List(context.Context) ([]domain.AutoReleaseRule, error) {
	return []domain.AutoReleaseRule{
		{RuleID: "default-gold", ContractorTier: domain.TierGold, HoldPeriodDays: 3},
	}, nil
}

type stubPredictor struct{}

func (stubPredictor) Predict(context.Context, string, string) (domain.RiskPrediction, error) {
	return domain.RiskPrediction{Probability: 0.1}, nil
}

func newServer(row domain.EscrowTransaction) *EscrowInternalServer {
	svc := application.NewService(application.Dependencies{
		Escrows:   &stubEscrowRepo{row: row},
		Rules:     stubRuleRepo{},
		Predictor: stubPredictor{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return NewEscrowInternalServer(svc)
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func verifiedRow() domain.EscrowTransaction {
	releaseAt := time.Now().UTC().Add(-time.Hour)
	return domain.EscrowTransaction{
		EscrowID:           "esc_grpc_1",
		JobID:              "job_grpc_1",
		Amount:             450,
		Currency:           "GBP",
		ContractorTier:     domain.TierGold,
		Status:             domain.StatusVerified,
		AutoReleaseEnabled: true,
		AutoReleaseAt:      &releaseAt,
	}
}

func TestGetTransactionReturnsRow(t *testing.T) {
	t.Parallel()

	server := newServer(verifiedRow())
	resp, err := server.GetTransaction(context.Background(), request(t, map[string]any{"escrow_id": "esc_grpc_1"}))
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	fields := resp.GetFields()
	if got := fields["status"].GetStringValue(); got != string(domain.StatusVerified) {
		t.Fatalf("unexpected status: %s", got)
	}
	if got := fields["amount"].GetNumberValue(); got != 450 {
		t.Fatalf("unexpected amount: %v", got)
	}
	if fields["auto_release_at"] == nil {
		t.Fatalf("expected auto_release_at in response")
	}
}

func TestGetTransactionUnknownIDMapsToNotFound(t *testing.T) {
	t.Parallel()

	server := newServer(verifiedRow())
	_, err := server.GetTransaction(context.Background(), request(t, map[string]any{"escrow_id": "esc_unknown"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetTransactionRequiresEscrowID(t *testing.T) {
	t.Parallel()

	server := newServer(verifiedRow())
	_, err := server.GetTransaction(context.Background(), request(t, map[string]any{}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestEvaluateAutoReleaseApprovesDueEscrow(t *testing.T) {
	t.Parallel()

	server := newServer(verifiedRow())
	resp, err := server.EvaluateAutoRelease(context.Background(), request(t, map[string]any{"escrow_id": "esc_grpc_1"}))
	if err != nil {
		t.Fatalf("EvaluateAutoRelease: %v", err)
	}
	if !resp.GetFields()["approved"].GetBoolValue() {
		t.Fatalf("expected approval, got %v", resp)
	}
}
