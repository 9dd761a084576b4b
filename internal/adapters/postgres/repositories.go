package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/domain"
	"github.com/tradeforge/escrow-release-service/internal/ports"
	"gorm.io/gorm"
)

// Repositories bundles the Postgres-backed persistence adapters.
type Repositories struct {
	Escrows       ports.EscrowRepository
	Rules         ports.RuleRepository
	Verifications ports.VerificationRepository
	ReleaseEvents ports.ReleaseEventRepository
	Idempotency   ports.IdempotencyRepository
	Outbox        ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Escrows:       &escrowRepository{db: db},
		Rules:         &ruleRepository{db: db},
		Verifications: &verificationRepository{db: db},
		ReleaseEvents: &releaseEventRepository{db: db},
		Idempotency:   &idempotencyRepository{db: db},
		Outbox:        &outboxRepository{db: db},
	}
}

type ruleRepository struct {
	db *gorm.DB
}

func (r *ruleRepository) List(ctx context.Context) ([]domain.AutoReleaseRule, error) {
	var rows []autoReleaseRuleModel
	if err := r.db.WithContext(ctx).Order("rule_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AutoReleaseRule, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toRuleDomain(rec))
	}
	return out, nil
}

type verificationRepository struct {
	db *gorm.DB
}

func (r *verificationRepository) Append(ctx context.Context, row domain.PhotoVerificationResult) error {
	rec := toVerificationModel(row)
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *verificationRepository) ListByEscrowID(ctx context.Context, escrowID string) ([]domain.PhotoVerificationResult, error) {
	var rows []photoVerificationResultModel
	if err := r.db.WithContext(ctx).
		Where("escrow_id = ?", escrowID).
		Order("analyzed_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PhotoVerificationResult, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toVerificationDomain(rec))
	}
	return out, nil
}

type releaseEventRepository struct {
	db *gorm.DB
}

func (r *releaseEventRepository) Append(ctx context.Context, row domain.ReleaseEvent) error {
	rec := toReleaseEventModel(row)
	return r.db.WithContext(ctx).Create(&rec).Error
}

func (r *releaseEventRepository) ListByEscrowID(ctx context.Context, escrowID string) ([]domain.ReleaseEvent, error) {
	var rows []releaseEventModel
	if err := r.db.WithContext(ctx).
		Where("escrow_id = ?", escrowID).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ReleaseEvent, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toReleaseEventDomain(rec))
	}
	return out, nil
}

type idempotencyRepository struct {
	db *gorm.DB
}

func (r *idempotencyRepository) Get(ctx context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	var rec idempotencyKeyModel
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if now.After(rec.ExpiresAt) {
		return nil, nil
	}
	return &ports.IdempotencyRecord{
		Key:          rec.Key,
		RequestHash:  rec.RequestHash,
		ResponseCode: rec.ResponseCode,
		ResponseBody: rec.ResponseBody,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error {
	rec := idempotencyKeyModel{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}
	err := r.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&idempotencyKeyModel{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"response_code": responseCode,
			"response_body": responseBody,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
