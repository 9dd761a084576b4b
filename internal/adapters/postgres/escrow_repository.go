package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type escrowRepository struct {
	db *gorm.DB
}

func (r *escrowRepository) Create(ctx context.Context, row domain.EscrowTransaction) error {
	rec := toEscrowModel(row)
	err := r.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict
	}
	return err
}

func (r *escrowRepository) GetByID(ctx context.Context, escrowID string) (domain.EscrowTransaction, error) {
	var rec escrowTransactionModel
	err := r.db.WithContext(ctx).Where("escrow_id = ?", escrowID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.EscrowTransaction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EscrowTransaction{}, err
	}
	return toEscrowDomain(rec), nil
}

// UpdateIfStatus is the guarded transition write: the full row lands only if
// the stored status still matches the expected source state. Zero affected
// rows means a concurrent writer won; the caller observes the new state.
func (r *escrowRepository) UpdateIfStatus(ctx context.Context, expect domain.Status, row domain.EscrowTransaction) error {
	rec := toEscrowModel(row)
	res := r.db.WithContext(ctx).
		Model(&escrowTransactionModel{}).
		Where("escrow_id = ?", rec.EscrowID).
		Where("status = ?", string(expect)).
		Select("*").Omit("escrow_id", "created_at").
		Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTransitionConflict
	}
	return nil
}

// ClaimDue claims up to limit eligible release candidates in one statement
// batch: eligible statuses, elapsed auto-release time, retry due, and no live
// claim. SKIP LOCKED keeps concurrent sweepers from serializing on the same
// rows; a stale claim (claim_until in the past) is reclaimable, so a worker
// killed mid-batch cannot strand an escrow.
func (r *escrowRepository) ClaimDue(ctx context.Context, limit int, claimToken string, now, claimUntil time.Time) ([]domain.EscrowTransaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	var rows []escrowTransactionModel
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subquery := tx.Model(&escrowTransactionModel{}).
			Select("escrow_id").
			Where("status IN ?", []string{
				string(domain.StatusVerified),
				string(domain.StatusRiskExtended),
				string(domain.StatusReleaseFailed),
			}).
			Where("auto_release_enabled = ?", true).
			Where("auto_release_at IS NOT NULL AND auto_release_at <= ?", now).
			Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
			Where("claim_until IS NULL OR claim_until < ?", now).
			Order("auto_release_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&escrowTransactionModel{}).
			Where("escrow_id IN (?)", subquery).
			Updates(map[string]any{
				"claim_token": claimToken,
				"claim_until": claimUntil,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ?", claimToken).
			Where("claim_until = ?", claimUntil).
			Order("auto_release_at ASC").
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}

	out := make([]domain.EscrowTransaction, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toEscrowDomain(rec))
	}
	return out, nil
}

// UpdateClaimed commits a swept row guarded on the claim token and clears
// the claim in the same write.
func (r *escrowRepository) UpdateClaimed(ctx context.Context, claimToken string, row domain.EscrowTransaction) error {
	rec := toEscrowModel(row)
	rec.ClaimToken = ""
	rec.ClaimUntil = nil
	res := r.db.WithContext(ctx).
		Model(&escrowTransactionModel{}).
		Where("escrow_id = ?", rec.EscrowID).
		Where("claim_token = ?", claimToken).
		Select("*").Omit("escrow_id", "created_at").
		Updates(&rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrTransitionConflict
	}
	return nil
}

func (r *escrowRepository) ReleaseClaim(ctx context.Context, escrowID, claimToken string) error {
	return r.db.WithContext(ctx).
		Model(&escrowTransactionModel{}).
		Where("escrow_id = ?", escrowID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"claim_token": "",
			"claim_until": nil,
		}).Error
}
