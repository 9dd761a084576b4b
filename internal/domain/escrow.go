package domain

import "time"

// Status is the closed set of escrow transaction lifecycle states. All
// mutation goes through guarded compare-and-set transitions keyed on the
// current status; adding a state means extending the transition table below.
type Status string

const (
	StatusPending             Status = "pending"
	StatusHeld                Status = "held"
	StatusPendingVerification Status = "pending_verification"
	StatusVerified            Status = "verified"
	StatusManualReview        Status = "manual_review"
	StatusRiskExtended        Status = "risk_extended"
	StatusReleased            Status = "released"
	StatusRefunded            Status = "refunded"
	StatusDisputed            Status = "disputed"
	StatusReleaseFailed       Status = "release_failed"
)

// ReleaseReason records why funds left escrow.
const (
	ReleaseReasonJobCompleted    = "job_completed"
	ReleaseReasonDisputeResolved = "dispute_resolved"
	ReleaseReasonTimeout         = "timeout"
	ReleaseReasonAutoRelease     = "auto_release"
	ReleaseReasonManual          = "manual"
)

// ContractorTier names understood by the default rule set.
const (
	TierPlatinum = "platinum"
	TierGold     = "gold"
	TierSilver   = "silver"
	TierBronze   = "bronze"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusHeld, StatusPendingVerification, StatusVerified,
		StatusManualReview, StatusRiskExtended, StatusReleased, StatusRefunded,
		StatusDisputed, StatusReleaseFailed:
		return true
	default:
		return false
	}
}

// CanTransition is the authoritative transition table. The switch is
// exhaustive over source states so a new state fails closed until it is
// given outgoing edges here.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusHeld
	case StatusHeld:
		return to == StatusPendingVerification || to == StatusDisputed
	case StatusPendingVerification:
		return to == StatusVerified || to == StatusManualReview || to == StatusDisputed
	case StatusVerified:
		return to == StatusReleased || to == StatusRiskExtended ||
			to == StatusReleaseFailed || to == StatusManualReview || to == StatusDisputed
	case StatusRiskExtended:
		return to == StatusReleased || to == StatusRiskExtended ||
			to == StatusReleaseFailed || to == StatusManualReview || to == StatusDisputed
	case StatusManualReview:
		return to == StatusReleased || to == StatusRefunded || to == StatusReleaseFailed
	case StatusDisputed:
		return to == StatusReleased || to == StatusRefunded || to == StatusReleaseFailed
	case StatusReleaseFailed:
		return to == StatusReleased || to == StatusReleaseFailed || to == StatusManualReview
	case StatusReleased, StatusRefunded:
		return false
	default:
		return false
	}
}

// EscrowTransaction is the central entity. Rows are created when a job
// payment is authorized and soft-retained forever for audit; the tier,
// category and dispute-count columns snapshot the rule-resolution inputs at
// creation so the engine never reaches back into job or profile services.
type EscrowTransaction struct {
	EscrowID string
	JobID    string
	PayerID  string
	PayeeID  string

	Amount   float64
	Currency string

	ContractorID            string
	ContractorTier          string
	JobCategory             string
	JobDescription          string
	ContractorDisputeCount  int

	Status Status

	AutoReleaseEnabled bool
	AutoReleaseAt      *time.Time
	RiskHoldExtended   bool
	RiskHoldReason     string

	PhotoVerificationStatus VerificationStatus
	PhotoVerificationScore  *float64

	TransferID    string
	ReleaseReason string

	ReleaseAttemptCount int
	NextRetryAt         *time.Time
	LastReleaseError    string

	ClaimToken string
	ClaimUntil *time.Time

	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transition validates and applies a status change on the in-memory copy.
// Persistence still guards with a compare-and-set on the previous status, so
// a stale copy loses the race instead of clobbering a concurrent writer.
func (t *EscrowTransaction) Transition(to Status, now time.Time) error {
	if t.Status.Terminal() {
		return ErrTerminalState
	}
	if !CanTransition(t.Status, to) {
		return ErrInvalidTransition
	}
	t.Status = to
	t.UpdatedAt = now
	return nil
}
