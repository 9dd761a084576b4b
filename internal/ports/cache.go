package ports

import (
	"context"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// SweepLock is a best-effort lease stopping concurrent worker replicas from
// scanning the same batch. Correctness does not depend on it: per-escrow
// claims in the database remain the at-most-once guard.
type SweepLock interface {
	Acquire(ctx context.Context, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, token string) error
}

// RuleCache keeps the resolved rule set warm between sweeps. A miss or a
// cache error falls through to the repository.
type RuleCache interface {
	Get(ctx context.Context) ([]domain.AutoReleaseRule, bool, error)
	Set(ctx context.Context, rules []domain.AutoReleaseRule, ttl time.Duration) error
}
