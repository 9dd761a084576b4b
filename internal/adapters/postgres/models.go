package postgres

import "time"

type escrowTransactionModel struct {
	EscrowID string `gorm:"column:escrow_id;primaryKey"`
	JobID    string `gorm:"column:job_id"`
	PayerID  string `gorm:"column:payer_id"`
	PayeeID  string `gorm:"column:payee_id"`

	Amount   float64 `gorm:"column:amount"`
	Currency string  `gorm:"column:currency"`

	ContractorID           string `gorm:"column:contractor_id"`
	ContractorTier         string `gorm:"column:contractor_tier"`
	JobCategory            string `gorm:"column:job_category"`
	JobDescription         string `gorm:"column:job_description"`
	ContractorDisputeCount int    `gorm:"column:contractor_dispute_count"`

	Status string `gorm:"column:status"`

	AutoReleaseEnabled bool       `gorm:"column:auto_release_enabled"`
	AutoReleaseAt      *time.Time `gorm:"column:auto_release_at"`
	RiskHoldExtended   bool       `gorm:"column:risk_hold_extended"`
	RiskHoldReason     string     `gorm:"column:risk_hold_reason"`

	PhotoVerificationStatus string   `gorm:"column:photo_verification_status"`
	PhotoVerificationScore  *float64 `gorm:"column:photo_verification_score"`

	TransferID    string `gorm:"column:transfer_id"`
	ReleaseReason string `gorm:"column:release_reason"`

	ReleaseAttemptCount int        `gorm:"column:release_attempt_count"`
	NextRetryAt         *time.Time `gorm:"column:next_retry_at"`
	LastReleaseError    string     `gorm:"column:last_release_error"`

	ClaimToken string     `gorm:"column:claim_token"`
	ClaimUntil *time.Time `gorm:"column:claim_until"`

	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (escrowTransactionModel) TableName() string { return "escrow_transactions" }

type autoReleaseRuleModel struct {
	RuleID                    string   `gorm:"column:rule_id;primaryKey"`
	ContractorTier            string   `gorm:"column:contractor_tier"`
	JobValueMin               *float64 `gorm:"column:job_value_min"`
	JobValueMax               *float64 `gorm:"column:job_value_max"`
	JobCategory               string   `gorm:"column:job_category"`
	HoldPeriodDays            int      `gorm:"column:hold_period_days"`
	RequirePhotoVerification  bool     `gorm:"column:require_photo_verification"`
	MinPhotoScore             float64  `gorm:"column:min_photo_score"`
	RiskMultiplier            float64  `gorm:"column:risk_multiplier"`
	DisputeHistoryPenaltyDays int      `gorm:"column:dispute_history_penalty_days"`
}

func (autoReleaseRuleModel) TableName() string { return "auto_release_rules" }

type photoVerificationResultModel struct {
	ResultID              string    `gorm:"column:result_id;primaryKey"`
	EscrowID              string    `gorm:"column:escrow_id;index"`
	JobID                 string    `gorm:"column:job_id"`
	PhotoURLs             string    `gorm:"column:photo_urls"`
	VerificationScore     float64   `gorm:"column:verification_score"`
	Status                string    `gorm:"column:status"`
	MatchesJobDescription bool      `gorm:"column:matches_job_description"`
	CompletionIndicators  string    `gorm:"column:completion_indicators"`
	Concerns              string    `gorm:"column:concerns"`
	AnalyzerUnavailable   bool      `gorm:"column:analyzer_unavailable"`
	AnalyzedAt            time.Time `gorm:"column:analyzed_at"`
}

func (photoVerificationResultModel) TableName() string { return "photo_verification_results" }

type releaseEventModel struct {
	EventID        string    `gorm:"column:event_id;primaryKey"`
	EscrowID       string    `gorm:"column:escrow_id;index"`
	FromStatus     string    `gorm:"column:from_status"`
	ToStatus       string    `gorm:"column:to_status"`
	Trigger        string    `gorm:"column:trigger"`
	Outcome        string    `gorm:"column:outcome"`
	DecisionInputs string    `gorm:"column:decision_inputs"`
	OccurredAt     time.Time `gorm:"column:occurred_at"`
}

func (releaseEventModel) TableName() string { return "release_events" }

type idempotencyKeyModel struct {
	Key          string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash  string    `gorm:"column:request_hash"`
	ResponseCode int       `gorm:"column:response_code"`
	ResponseBody []byte    `gorm:"column:response_body"`
	ExpiresAt    time.Time `gorm:"column:expires_at"`
}

func (idempotencyKeyModel) TableName() string { return "idempotency_keys" }

type escrowOutboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      string     `gorm:"column:payload"`
	RetryCount   int        `gorm:"column:retry_count"`
	LastError    string     `gorm:"column:last_error"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
	LastErrorAt  *time.Time `gorm:"column:last_error_at"`
	ClaimToken   string     `gorm:"column:claim_token"`
	ClaimUntil   *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (escrowOutboxModel) TableName() string { return "escrow_outbox" }
