package application

import (
	"log/slog"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/ports"
)

// Config carries the engine's tunables. Zero values are replaced with the
// documented defaults in NewService.
type Config struct {
	ServiceName string

	// Release decision parameters.
	DisputeRiskThreshold float64
	HighValueThreshold   float64
	HighRiskCategories   []string
	DefaultCurrency      string

	// Sweep parameters.
	SweepBatchSize   int
	SweepConcurrency int
	ClaimTTL         time.Duration

	// release_failed retry bounds. Attempts past the maximum escalate to
	// manual review instead of retrying forever.
	ReleaseMaxAttempts int
	RetryBackoff       time.Duration

	// External collaborator timeouts.
	AnalyzerTimeout  time.Duration
	PredictorTimeout time.Duration
	GatewayTimeout   time.Duration

	IdempotencyTTL time.Duration
	RuleCacheTTL   time.Duration
}

// Actor identifies the caller of a use-case, forwarded by the API gateway.
type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

type CreateTransactionInput struct {
	JobID                  string
	PayerID                string
	PayeeID                string
	Amount                 float64
	Currency               string
	ContractorID           string
	ContractorTier         string
	JobCategory            string
	JobDescription         string
	ContractorDisputeCount int
}

type VerifyPhotosInput struct {
	EscrowID  string
	JobID     string
	PhotoURLs []string
}

// ResolutionOutcome values accepted by dispute and manual-review resolution.
const (
	ResolutionRelease = "release"
	ResolutionRefund  = "refund"
)

type ResolveInput struct {
	EscrowID string
	Outcome  string
	Notes    string
}

// Evaluation is the read-only preview of what the sweep would decide.
type Evaluation struct {
	EscrowID string
	Approved bool
	Reason   string
}

// SweepResult summarizes one sweep execution.
type SweepResult struct {
	Processed int
	Released  int
	Extended  int
	Failed    int
	Skipped   int
}

// Service is the escrow release decision engine. All collaborators are
// injected so tests can substitute the payment rail and the models.
type Service struct {
	cfg Config

	escrows       ports.EscrowRepository
	rules         ports.RuleRepository
	verifications ports.VerificationRepository
	auditLog      ports.ReleaseEventRepository
	idempotency   ports.IdempotencyRepository
	outbox        ports.OutboxRepository

	gateway   ports.PaymentGateway
	analyzer  ports.PhotoAnalyzer
	predictor ports.DisputePredictor

	ruleCache ports.RuleCache
	sweepLock ports.SweepLock

	logger *slog.Logger
	nowFn  func() time.Time
}

type Dependencies struct {
	Config Config

	Escrows       ports.EscrowRepository
	Rules         ports.RuleRepository
	Verifications ports.VerificationRepository
	AuditLog      ports.ReleaseEventRepository
	Idempotency   ports.IdempotencyRepository
	Outbox        ports.OutboxRepository

	Gateway   ports.PaymentGateway
	Analyzer  ports.PhotoAnalyzer
	Predictor ports.DisputePredictor

	RuleCache ports.RuleCache
	SweepLock ports.SweepLock

	Logger *slog.Logger
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "Escrow-Release-Service"
	}
	if cfg.DisputeRiskThreshold <= 0 {
		cfg.DisputeRiskThreshold = 0.6
	}
	if cfg.HighValueThreshold <= 0 {
		cfg.HighValueThreshold = 1000
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "GBP"
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 50
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 15 * time.Minute
	}
	if cfg.ReleaseMaxAttempts <= 0 {
		cfg.ReleaseMaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Minute
	}
	if cfg.AnalyzerTimeout <= 0 {
		cfg.AnalyzerTimeout = 10 * time.Second
	}
	if cfg.PredictorTimeout <= 0 {
		cfg.PredictorTimeout = 5 * time.Second
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.RuleCacheTTL <= 0 {
		cfg.RuleCacheTTL = 5 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:           cfg,
		escrows:       deps.Escrows,
		rules:         deps.Rules,
		verifications: deps.Verifications,
		auditLog:      deps.AuditLog,
		idempotency:   deps.Idempotency,
		outbox:        deps.Outbox,
		gateway:       deps.Gateway,
		analyzer:      deps.Analyzer,
		predictor:     deps.Predictor,
		ruleCache:     deps.RuleCache,
		sweepLock:     deps.SweepLock,
		logger: logger.With(
			"service", cfg.ServiceName,
			"layer", "application",
		),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}
