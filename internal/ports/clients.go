package ports

import (
	"context"

	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// TransferRequest carries one payout instruction to the payment rail. The
// idempotency key is always the escrow ID so a retry after release_failed
// cannot double-pay.
type TransferRequest struct {
	PayeeAccountRef string
	Amount          float64
	Currency        string
	IdempotencyKey  string
}

// PaymentGateway is the external payment rail. Failures are reported as
// *domain.GatewayError so callers can distinguish transient from permanent.
type PaymentGateway interface {
	Transfer(ctx context.Context, req TransferRequest) (transferID string, err error)
}

// PhotoAnalyzer scores completion photos against the job description. The
// caller owns the timeout; an error or deadline is treated as the soft-fail
// manual-review path, never a pipeline abort.
type PhotoAnalyzer interface {
	Analyze(ctx context.Context, photoURLs []string, jobDescription string) (domain.PhotoAnalysis, error)
}

// DisputePredictor estimates the probability that a released payment will be
// disputed. Unreachable predictors fail open: the hold is not extended.
type DisputePredictor interface {
	Predict(ctx context.Context, jobID, contractorID string) (domain.RiskPrediction, error)
}
