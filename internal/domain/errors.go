package domain

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict = errors.New("idempotency conflict")

	// ErrNoMatchingRule is a configuration defect: the rule table must carry
	// a wildcard catch-all for every contractor tier. It is never retried.
	ErrNoMatchingRule = errors.New("no matching auto-release rule")

	// ErrInvalidTransition means the requested target state is not reachable
	// from the transaction's current state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTransitionConflict means the compare-and-set on status lost to a
	// concurrent writer. In the sweep path this is an expected no-op.
	ErrTransitionConflict = errors.New("status transition conflict")

	// ErrTerminalState rejects any mutation of released or refunded rows.
	ErrTerminalState = errors.New("escrow is in a terminal state")

	ErrAlreadyTransferred = errors.New("transfer already recorded for escrow")
	ErrNotEligible        = errors.New("escrow not eligible for auto-release")

	ErrAnalyzerUnavailable  = errors.New("photo analyzer unavailable")
	ErrPredictorUnavailable = errors.New("dispute predictor unavailable")
)

// GatewayError is a payment rail failure. Permanent failures (invalid payee
// account, compliance block) escalate to manual review on first occurrence;
// transient ones are retried through the release_failed state.
type GatewayError struct {
	Code      string
	Message   string
	Permanent bool
}

func (e *GatewayError) Error() string {
	if e.Code == "" {
		return "gateway error: " + e.Message
	}
	return "gateway error " + e.Code + ": " + e.Message
}
