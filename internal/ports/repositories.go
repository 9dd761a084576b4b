package ports

import (
	"context"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// EscrowRepository persists the transaction rows. All status mutation is a
// compare-and-set: the update only lands when the stored status (or claim
// token, for swept rows) still matches, and a miss reports
// domain.ErrTransitionConflict so callers can no-op instead of clobbering.
type EscrowRepository interface {
	Create(ctx context.Context, row domain.EscrowTransaction) error
	GetByID(ctx context.Context, escrowID string) (domain.EscrowTransaction, error)

	// UpdateIfStatus writes the full row guarded on the expected current
	// status.
	UpdateIfStatus(ctx context.Context, expect domain.Status, row domain.EscrowTransaction) error

	// ClaimDue atomically claims up to limit release candidates whose
	// auto-release time has passed and whose claim is absent or stale, and
	// returns the claimed rows. Rows claimed by a live worker are invisible.
	ClaimDue(ctx context.Context, limit int, claimToken string, now, claimUntil time.Time) ([]domain.EscrowTransaction, error)

	// UpdateClaimed writes the full row guarded on the claim token and
	// clears the claim.
	UpdateClaimed(ctx context.Context, claimToken string, row domain.EscrowTransaction) error

	// ReleaseClaim clears the claim without other changes, making the row
	// immediately visible to the next sweep.
	ReleaseClaim(ctx context.Context, escrowID, claimToken string) error
}

// RuleRepository reads the auto-release rule configuration. The engine never
// writes rules.
type RuleRepository interface {
	List(ctx context.Context) ([]domain.AutoReleaseRule, error)
}

// VerificationRepository appends immutable verification attempts.
type VerificationRepository interface {
	Append(ctx context.Context, row domain.PhotoVerificationResult) error
	ListByEscrowID(ctx context.Context, escrowID string) ([]domain.PhotoVerificationResult, error)
}

// ReleaseEventRepository is the append-only audit log.
type ReleaseEventRepository interface {
	Append(ctx context.Context, row domain.ReleaseEvent) error
	ListByEscrowID(ctx context.Context, escrowID string) ([]domain.ReleaseEvent, error)
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}

type OutboxRecord struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	LastError    string
	CreatedAt    time.Time
	PublishedAt  *time.Time
	ClaimToken   string
	ClaimUntil   *time.Time
}

// OutboxRepository stores domain events written in the same transaction as
// the state change and drained by the publisher worker.
type OutboxRepository interface {
	Enqueue(ctx context.Context, record OutboxRecord) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID, claimToken, errMsg string, at time.Time) error
}

// EventPublisher delivers drained outbox records to the platform broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}
