package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tradeforge/escrow-release-service/internal/contracts"
	"github.com/tradeforge/escrow-release-service/internal/domain"
	"github.com/tradeforge/escrow-release-service/internal/ports"
)

// decisionInputs is the audit snapshot persisted with every release event so
// a decision can be explained later from the log alone.
type decisionInputs struct {
	RuleID               string   `json:"rule_id,omitempty"`
	HoldPeriodDays       int      `json:"hold_period_days,omitempty"`
	MinPhotoScore        float64  `json:"min_photo_score,omitempty"`
	RiskMultiplier       float64  `json:"risk_multiplier,omitempty"`
	PhotoScore           *float64 `json:"photo_score,omitempty"`
	PhotoStatus          string   `json:"photo_status,omitempty"`
	DisputeProbability   *float64 `json:"dispute_probability,omitempty"`
	PredictorUnavailable bool     `json:"predictor_unavailable,omitempty"`
	AttemptCount         int      `json:"attempt_count,omitempty"`
	GatewayError         string   `json:"gateway_error,omitempty"`
	Reason               string   `json:"reason,omitempty"`
}

// appendAudit writes one append-only audit entry. Audit failures are logged,
// never propagated: losing an audit row must not roll back a money movement
// that already happened.
func (s *Service) appendAudit(ctx context.Context, escrowID string, from, to domain.Status, trigger, outcome string, inputs decisionInputs, at time.Time) {
	snapshot, _ := json.Marshal(inputs)
	err := s.auditLog.Append(ctx, domain.ReleaseEvent{
		EventID:        uuid.NewString(),
		EscrowID:       escrowID,
		FromStatus:     from,
		ToStatus:       to,
		Trigger:        trigger,
		Outcome:        outcome,
		DecisionInputs: snapshot,
		OccurredAt:     at,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			"module", "audit",
			"operation", "append_release_event",
			"outcome", "failure",
			"escrow_id", escrowID,
			"from_status", string(from),
			"to_status", string(to),
			"error", err,
		)
	}
}

func (s *Service) enqueueEvent(ctx context.Context, eventType, partitionKey string, data any, now time.Time) {
	if s.outbox == nil || !domain.IsEmittedEvent(eventType) {
		return
	}
	payload, err := json.Marshal(contracts.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		OccurredAt:    now,
		PartitionKey:  partitionKey,
		SourceService: s.cfg.ServiceName,
		TraceID:       uuid.NewString(),
		SchemaVersion: "v1",
		Data:          mustRaw(data),
	})
	if err != nil {
		return
	}
	if err := s.outbox.Enqueue(ctx, ports.OutboxRecord{
		OutboxID:     uuid.NewString(),
		EventType:    eventType,
		PartitionKey: partitionKey,
		Payload:      payload,
		CreatedAt:    now,
	}); err != nil {
		s.logger.WarnContext(ctx, "outbox enqueue failed",
			"module", "events",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", eventType,
			"partition_key", partitionKey,
			"error", err,
		)
	}
}

func (s *Service) enqueueReleased(ctx context.Context, esc domain.EscrowTransaction, now time.Time) {
	s.enqueueEvent(ctx, domain.EventEscrowReleased, esc.EscrowID, contracts.EscrowReleasedPayload{
		EscrowID:      esc.EscrowID,
		JobID:         esc.JobID,
		PayeeID:       esc.PayeeID,
		Amount:        esc.Amount,
		Currency:      esc.Currency,
		TransferID:    esc.TransferID,
		ReleaseReason: esc.ReleaseReason,
		ReleasedAt:    now.Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueRefunded(ctx context.Context, esc domain.EscrowTransaction, _ string, now time.Time) {
	s.enqueueEvent(ctx, domain.EventEscrowRefunded, esc.EscrowID, contracts.EscrowRefundedPayload{
		EscrowID:   esc.EscrowID,
		JobID:      esc.JobID,
		PayerID:    esc.PayerID,
		Amount:     esc.Amount,
		Currency:   esc.Currency,
		RefundedAt: now.Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueRiskExtended(ctx context.Context, esc domain.EscrowTransaction, now time.Time) {
	releaseAt := ""
	if esc.AutoReleaseAt != nil {
		releaseAt = esc.AutoReleaseAt.Format(time.RFC3339)
	}
	s.enqueueEvent(ctx, domain.EventEscrowRiskExtended, esc.EscrowID, contracts.EscrowRiskExtendedPayload{
		EscrowID:      esc.EscrowID,
		JobID:         esc.JobID,
		Reason:        esc.RiskHoldReason,
		AutoReleaseAt: releaseAt,
		ExtendedAt:    now.Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueReleaseFailed(ctx context.Context, esc domain.EscrowTransaction, errMsg string, willRetry bool, now time.Time) {
	s.enqueueEvent(ctx, domain.EventEscrowReleaseFailed, esc.EscrowID, contracts.EscrowReleaseFailedPayload{
		EscrowID:     esc.EscrowID,
		JobID:        esc.JobID,
		AttemptCount: esc.ReleaseAttemptCount,
		Error:        errMsg,
		WillRetry:    willRetry,
		FailedAt:     now.Format(time.RFC3339),
	}, now)
}

func (s *Service) enqueueDisputed(ctx context.Context, esc domain.EscrowTransaction, reason, _ string, now time.Time) {
	s.enqueueEvent(ctx, domain.EventEscrowDisputed, esc.EscrowID, contracts.EscrowDisputedPayload{
		EscrowID:   esc.EscrowID,
		JobID:      esc.JobID,
		Reason:     reason,
		DisputedAt: now.Format(time.RFC3339),
	}, now)
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
