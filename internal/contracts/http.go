package contracts

import "time"

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type CreateTransactionRequest struct {
	JobID                  string  `json:"job_id"`
	PayerID                string  `json:"payer_id"`
	PayeeID                string  `json:"payee_id"`
	Amount                 float64 `json:"amount"`
	Currency               string  `json:"currency,omitempty"`
	ContractorID           string  `json:"contractor_id"`
	ContractorTier         string  `json:"contractor_tier"`
	JobCategory            string  `json:"job_category"`
	JobDescription         string  `json:"job_description,omitempty"`
	ContractorDisputeCount int     `json:"contractor_dispute_count"`
}

type VerifyPhotosRequest struct {
	JobID     string   `json:"job_id"`
	PhotoURLs []string `json:"photo_urls"`
}

type DisputeRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ResolutionRequest struct {
	Outcome string `json:"outcome"` // "release" or "refund"
	Notes   string `json:"notes,omitempty"`
}

type TransactionResponse struct {
	EscrowID                string     `json:"escrow_id"`
	JobID                   string     `json:"job_id"`
	PayerID                 string     `json:"payer_id"`
	PayeeID                 string     `json:"payee_id"`
	Amount                  float64    `json:"amount"`
	Currency                string     `json:"currency"`
	Status                  string     `json:"status"`
	AutoReleaseEnabled      bool       `json:"auto_release_enabled"`
	AutoReleaseAt           *time.Time `json:"auto_release_at,omitempty"`
	RiskHoldExtended        bool       `json:"risk_hold_extended"`
	RiskHoldReason          string     `json:"risk_hold_reason,omitempty"`
	PhotoVerificationStatus string     `json:"photo_verification_status,omitempty"`
	PhotoVerificationScore  *float64   `json:"photo_verification_score,omitempty"`
	TransferID              string     `json:"transfer_id,omitempty"`
	ReleaseReason           string     `json:"release_reason,omitempty"`
	ReleaseAttemptCount     int        `json:"release_attempt_count"`
	NextRetryAt             *time.Time `json:"next_retry_at,omitempty"`
	CompletedAt             *time.Time `json:"completed_at,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
}

type VerificationResponse struct {
	ResultID              string    `json:"result_id"`
	EscrowID              string    `json:"escrow_id"`
	JobID                 string    `json:"job_id"`
	VerificationScore     float64   `json:"verification_score"`
	Status                string    `json:"status"`
	MatchesJobDescription bool      `json:"matches_job_description"`
	CompletionIndicators  []string  `json:"completion_indicators,omitempty"`
	Concerns              []string  `json:"concerns,omitempty"`
	AnalyzerUnavailable   bool      `json:"analyzer_unavailable,omitempty"`
	AnalyzedAt            time.Time `json:"analyzed_at"`
}

type EvaluationResponse struct {
	EscrowID string `json:"escrow_id"`
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

type ReleaseEventResponse struct {
	EventID        string    `json:"event_id"`
	EscrowID       string    `json:"escrow_id"`
	FromStatus     string    `json:"from_status"`
	ToStatus       string    `json:"to_status"`
	Trigger        string    `json:"trigger"`
	Outcome        string    `json:"outcome"`
	DecisionInputs any       `json:"decision_inputs,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type SweepResponse struct {
	Processed int `json:"processed"`
	Released  int `json:"released"`
	Extended  int `json:"extended"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type AutoReleaseDateResponse struct {
	EscrowID      string    `json:"escrow_id"`
	AutoReleaseAt time.Time `json:"auto_release_at"`
}
