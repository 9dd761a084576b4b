package contracts

import (
	"encoding/json"
	"time"
)

// EventEnvelope is the platform event wrapper used by the outbox publisher.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PartitionKey  string          `json:"partition_key"`
	SourceService string          `json:"source_service"`
	TraceID       string          `json:"trace_id"`
	SchemaVersion string          `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

type EscrowReleasedPayload struct {
	EscrowID      string  `json:"escrow_id"`
	JobID         string  `json:"job_id"`
	PayeeID       string  `json:"payee_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	TransferID    string  `json:"transfer_id"`
	ReleaseReason string  `json:"release_reason"`
	ReleasedAt    string  `json:"released_at"`
}

type EscrowRefundedPayload struct {
	EscrowID   string  `json:"escrow_id"`
	JobID      string  `json:"job_id"`
	PayerID    string  `json:"payer_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	RefundedAt string  `json:"refunded_at"`
}

type EscrowRiskExtendedPayload struct {
	EscrowID      string `json:"escrow_id"`
	JobID         string `json:"job_id"`
	Reason        string `json:"reason"`
	AutoReleaseAt string `json:"auto_release_at"`
	ExtendedAt    string `json:"extended_at"`
}

type EscrowReleaseFailedPayload struct {
	EscrowID     string `json:"escrow_id"`
	JobID        string `json:"job_id"`
	AttemptCount int    `json:"attempt_count"`
	Error        string `json:"error"`
	WillRetry    bool   `json:"will_retry"`
	FailedAt     string `json:"failed_at"`
}

type EscrowDisputedPayload struct {
	EscrowID   string `json:"escrow_id"`
	JobID      string `json:"job_id"`
	Reason     string `json:"reason,omitempty"`
	DisputedAt string `json:"disputed_at"`
}
