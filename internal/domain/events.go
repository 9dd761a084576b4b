package domain

import (
	"encoding/json"
	"time"
)

// Triggers recorded on audit entries.
const (
	TriggerScheduledSweep = "scheduled_sweep"
	TriggerManual         = "manual"
	TriggerAPI            = "api"
)

// ReleaseEvent is one append-only audit entry. The sequence of events for an
// escrow reconstructs its full status history, and DecisionInputs snapshots
// the rule, score and risk figures the decision was made on so "why was this
// held" is answerable without replaying the engine.
type ReleaseEvent struct {
	EventID        string
	EscrowID       string
	FromStatus     Status
	ToStatus       Status
	Trigger        string
	Outcome        string
	DecisionInputs json.RawMessage
	OccurredAt     time.Time
}

// Audit outcome labels.
const (
	AuditOutcomeReleased     = "released"
	AuditOutcomeExtended     = "risk_extended"
	AuditOutcomeRefunded     = "refunded"
	AuditOutcomeDisputed     = "disputed"
	AuditOutcomeFailed       = "release_failed"
	AuditOutcomeEscalated    = "escalated"
	AuditOutcomeVerified     = "verified"
	AuditOutcomeManualReview = "manual_review"
	AuditOutcomeScheduled    = "release_scheduled"
	AuditOutcomeTransition   = "transition"
)

// Outbox event types emitted to the rest of the platform.
const (
	EventEscrowReleased      = "escrow.released"
	EventEscrowRefunded      = "escrow.refunded"
	EventEscrowRiskExtended  = "escrow.risk_extended"
	EventEscrowReleaseFailed = "escrow.release_failed"
	EventEscrowDisputed      = "escrow.disputed"
)

func IsEmittedEvent(eventType string) bool {
	switch eventType {
	case EventEscrowReleased, EventEscrowRefunded, EventEscrowRiskExtended,
		EventEscrowReleaseFailed, EventEscrowDisputed:
		return true
	default:
		return false
	}
}
