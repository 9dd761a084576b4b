package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/application"
	"github.com/tradeforge/escrow-release-service/internal/domain"
	"github.com/tradeforge/escrow-release-service/internal/ports"
)

type fakeEscrowRepo struct {
	mu   sync.Mutex
	rows map[string]domain.EscrowTransaction
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{rows: make(map[string]domain.EscrowTransaction)}
}

func (r *fakeEscrowRepo) Create(_ context.Context, row domain.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[row.EscrowID]; ok {
		return domain.ErrConflict
	}
	r.rows[row.EscrowID] = row
	return nil
}

func (r *fakeEscrowRepo) GetByID(_ context.Context, escrowID string) (domain.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[escrowID]
	if !ok {
		return domain.EscrowTransaction{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *fakeEscrowRepo) UpdateIfStatus(_ context.Context, expect domain.Status, row domain.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[row.EscrowID]
	if !ok || stored.Status != expect {
		return domain.ErrTransitionConflict
	}
	r.rows[row.EscrowID] = row
	return nil
}

func (r *fakeEscrowRepo) ClaimDue(_ context.Context, limit int, claimToken string, now, claimUntil time.Time) ([]domain.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EscrowTransaction, 0, limit)
	for id, row := range r.rows {
		if len(out) >= limit {
			break
		}
		switch row.Status {
		case domain.StatusVerified, domain.StatusRiskExtended, domain.StatusReleaseFailed:
		default:
			continue
		}
		if !row.AutoReleaseEnabled || row.AutoReleaseAt == nil || row.AutoReleaseAt.After(now) {
			continue
		}
		if row.NextRetryAt != nil && row.NextRetryAt.After(now) {
			continue
		}
		if row.ClaimUntil != nil && !row.ClaimUntil.Before(now) {
			continue
		}
		row.ClaimToken = claimToken
		until := claimUntil
		row.ClaimUntil = &until
		r.rows[id] = row
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeEscrowRepo) UpdateClaimed(_ context.Context, claimToken string, row domain.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[row.EscrowID]
	if !ok || stored.ClaimToken != claimToken {
		return domain.ErrTransitionConflict
	}
	row.ClaimToken = ""
	row.ClaimUntil = nil
	r.rows[row.EscrowID] = row
	return nil
}

func (r *fakeEscrowRepo) ReleaseClaim(_ context.Context, escrowID, claimToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[escrowID]
	if !ok || stored.ClaimToken != claimToken {
		return nil
	}
	stored.ClaimToken = ""
	stored.ClaimUntil = nil
	r.rows[escrowID] = stored
	return nil
}

// seed inserts a row directly, bypassing lifecycle validation.
func (r *fakeEscrowRepo) seed(row domain.EscrowTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.EscrowID] = row
}

func (r *fakeEscrowRepo) get(escrowID string) domain.EscrowTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[escrowID]
}

type fakeRuleRepo struct {
	rules []domain.AutoReleaseRule
}

func (r *fakeRuleRepo) List(context.Context) ([]domain.AutoReleaseRule, error) {
	return r.rules, nil
}

type fakeVerificationRepo struct {
	mu   sync.Mutex
	rows []domain.PhotoVerificationResult
}

func (r *fakeVerificationRepo) Append(_ context.Context, row domain.PhotoVerificationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func (r *fakeVerificationRepo) ListByEscrowID(_ context.Context, escrowID string) ([]domain.PhotoVerificationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PhotoVerificationResult, 0)
	for _, row := range r.rows {
		if row.EscrowID == escrowID {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	mu   sync.Mutex
	rows []domain.ReleaseEvent
}

func (r *fakeAuditRepo) Append(_ context.Context, row domain.ReleaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func (r *fakeAuditRepo) ListByEscrowID(_ context.Context, escrowID string) ([]domain.ReleaseEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ReleaseEvent, 0)
	for _, row := range r.rows {
		if row.EscrowID == escrowID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) outcomes(escrowID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0)
	for _, row := range r.rows {
		if row.EscrowID == escrowID {
			out = append(out, row.Outcome)
		}
	}
	return out
}

type fakeIdemRecord struct {
	rec ports.IdempotencyRecord
}

type fakeIdempotencyRepo struct {
	mu   sync.Mutex
	rows map[string]*fakeIdemRecord
}

func newFakeIdempotencyRepo() *fakeIdempotencyRepo {
	return &fakeIdempotencyRepo{rows: make(map[string]*fakeIdemRecord)}
}

func (r *fakeIdempotencyRepo) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok || row.rec.ExpiresAt.Before(now) {
		return nil, nil
	}
	rec := row.rec
	return &rec, nil
}

func (r *fakeIdempotencyRepo) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[key]; ok {
		return domain.ErrConflict
	}
	r.rows[key] = &fakeIdemRecord{rec: ports.IdempotencyRecord{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}}
	return nil
}

func (r *fakeIdempotencyRepo) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[key]
	if !ok {
		return domain.ErrNotFound
	}
	row.rec.ResponseCode = responseCode
	row.rec.ResponseBody = responseBody
	return nil
}

type fakeOutboxRepo struct {
	mu   sync.Mutex
	rows []ports.OutboxRecord
}

func (r *fakeOutboxRepo) Enqueue(_ context.Context, record ports.OutboxRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, record)
	return nil
}

func (r *fakeOutboxRepo) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, limit)
	for i := range r.rows {
		if len(out) >= limit {
			break
		}
		if r.rows[i].PublishedAt == nil && r.rows[i].ClaimToken == "" {
			r.rows[i].ClaimToken = claimToken
			until := claimUntil
			r.rows[i].ClaimUntil = &until
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublished(_ context.Context, outboxID, claimToken string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].OutboxID == outboxID && r.rows[i].ClaimToken == claimToken {
			published := at
			r.rows[i].PublishedAt = &published
			r.rows[i].ClaimToken = ""
			r.rows[i].ClaimUntil = nil
		}
	}
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, outboxID, claimToken, errMsg string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].OutboxID == outboxID && r.rows[i].ClaimToken == claimToken {
			r.rows[i].RetryCount++
			r.rows[i].LastError = errMsg
			r.rows[i].ClaimToken = ""
			r.rows[i].ClaimUntil = nil
		}
	}
	return nil
}

func (r *fakeOutboxRepo) MarkDeadLettered(_ context.Context, outboxID, claimToken, errMsg string, _ time.Time) error {
	return r.MarkFailed(context.Background(), outboxID, claimToken, errMsg, time.Time{})
}

func (r *fakeOutboxRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row.EventType)
	}
	return out
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []ports.TransferRequest
	errs     []error
	transfer string
}

func (g *fakeGateway) Transfer(_ context.Context, req ports.TransferRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if g.transfer != "" {
		return g.transfer, nil
	}
	return "tr_" + req.IdempotencyKey, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeAnalyzer struct {
	analysis domain.PhotoAnalysis
	err      error
}

func (a *fakeAnalyzer) Analyze(context.Context, []string, string) (domain.PhotoAnalysis, error) {
	if a.err != nil {
		return domain.PhotoAnalysis{}, a.err
	}
	return a.analysis, nil
}

type fakePredictor struct {
	prediction domain.RiskPrediction
	err        error
}

func (p *fakePredictor) Predict(context.Context, string, string) (domain.RiskPrediction, error) {
	if p.err != nil {
		return domain.RiskPrediction{}, p.err
	}
	return p.prediction, nil
}

type fixture struct {
	service       *application.Service
	escrows       *fakeEscrowRepo
	rules         *fakeRuleRepo
	verifications *fakeVerificationRepo
	audit         *fakeAuditRepo
	idempotency   *fakeIdempotencyRepo
	outbox        *fakeOutboxRepo
	gateway       *fakeGateway
	analyzer      *fakeAnalyzer
	predictor     *fakePredictor
}

func defaultRules() []domain.AutoReleaseRule {
	return []domain.AutoReleaseRule{
		{RuleID: "default-platinum", ContractorTier: domain.TierPlatinum, HoldPeriodDays: 1, DisputeHistoryPenaltyDays: 1},
		{RuleID: "default-gold", ContractorTier: domain.TierGold, HoldPeriodDays: 3, DisputeHistoryPenaltyDays: 2},
		{RuleID: "default-silver", ContractorTier: domain.TierSilver, HoldPeriodDays: 5, RiskMultiplier: 1.25, DisputeHistoryPenaltyDays: 2},
		{RuleID: "default-bronze", ContractorTier: domain.TierBronze, HoldPeriodDays: 7, RiskMultiplier: 1.5, DisputeHistoryPenaltyDays: 3},
	}
}

func newFixture(rules []domain.AutoReleaseRule) *fixture {
	f := &fixture{
		escrows:       newFakeEscrowRepo(),
		rules:         &fakeRuleRepo{rules: rules},
		verifications: &fakeVerificationRepo{},
		audit:         &fakeAuditRepo{},
		idempotency:   newFakeIdempotencyRepo(),
		outbox:        &fakeOutboxRepo{},
		gateway:       &fakeGateway{},
		analyzer:      &fakeAnalyzer{},
		predictor:     &fakePredictor{},
	}
	f.service = application.NewService(application.Dependencies{
		Config: application.Config{
			HighRiskCategories: []string{"electrical", "gas"},
		},
		Escrows:       f.escrows,
		Rules:         f.rules,
		Verifications: f.verifications,
		AuditLog:      f.audit,
		Idempotency:   f.idempotency,
		Outbox:        f.outbox,
		Gateway:       f.gateway,
		Analyzer:      f.analyzer,
		Predictor:     f.predictor,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func systemActor(idempotencyKey string) application.Actor {
	return application.Actor{
		SubjectID:      "svc_jobs",
		Role:           "system",
		RequestID:      "req_test",
		IdempotencyKey: idempotencyKey,
	}
}

// seedDue inserts a release candidate whose hold already elapsed.
func (f *fixture) seedDue(escrowID string, status domain.Status, tier string, amount float64, category string) domain.EscrowTransaction {
	now := time.Now().UTC()
	releaseAt := now.Add(-time.Hour)
	completedAt := now.Add(-72 * time.Hour)
	row := domain.EscrowTransaction{
		EscrowID:           escrowID,
		JobID:              "job_" + escrowID,
		PayerID:            "payer_1",
		PayeeID:            "payee_1",
		Amount:             amount,
		Currency:           "GBP",
		ContractorID:       "contractor_1",
		ContractorTier:     tier,
		JobCategory:        category,
		Status:             status,
		AutoReleaseEnabled: true,
		AutoReleaseAt:      &releaseAt,
		CompletedAt:        &completedAt,
		CreatedAt:          now.Add(-96 * time.Hour),
		UpdatedAt:          now.Add(-time.Hour),
	}
	f.escrows.seed(row)
	return row
}
