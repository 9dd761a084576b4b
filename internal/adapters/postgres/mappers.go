package postgres

import (
	"encoding/json"

	"github.com/tradeforge/escrow-release-service/internal/domain"
)

func toEscrowModel(row domain.EscrowTransaction) escrowTransactionModel {
	return escrowTransactionModel{
		EscrowID:                row.EscrowID,
		JobID:                   row.JobID,
		PayerID:                 row.PayerID,
		PayeeID:                 row.PayeeID,
		Amount:                  row.Amount,
		Currency:                row.Currency,
		ContractorID:            row.ContractorID,
		ContractorTier:          row.ContractorTier,
		JobCategory:             row.JobCategory,
		JobDescription:          row.JobDescription,
		ContractorDisputeCount:  row.ContractorDisputeCount,
		Status:                  string(row.Status),
		AutoReleaseEnabled:      row.AutoReleaseEnabled,
		AutoReleaseAt:           row.AutoReleaseAt,
		RiskHoldExtended:        row.RiskHoldExtended,
		RiskHoldReason:          row.RiskHoldReason,
		PhotoVerificationStatus: string(row.PhotoVerificationStatus),
		PhotoVerificationScore:  row.PhotoVerificationScore,
		TransferID:              row.TransferID,
		ReleaseReason:           row.ReleaseReason,
		ReleaseAttemptCount:     row.ReleaseAttemptCount,
		NextRetryAt:             row.NextRetryAt,
		LastReleaseError:        row.LastReleaseError,
		ClaimToken:              row.ClaimToken,
		ClaimUntil:              row.ClaimUntil,
		CompletedAt:             row.CompletedAt,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
	}
}

func toEscrowDomain(m escrowTransactionModel) domain.EscrowTransaction {
	return domain.EscrowTransaction{
		EscrowID:                m.EscrowID,
		JobID:                   m.JobID,
		PayerID:                 m.PayerID,
		PayeeID:                 m.PayeeID,
		Amount:                  m.Amount,
		Currency:                m.Currency,
		ContractorID:            m.ContractorID,
		ContractorTier:          m.ContractorTier,
		JobCategory:             m.JobCategory,
		JobDescription:          m.JobDescription,
		ContractorDisputeCount:  m.ContractorDisputeCount,
		Status:                  domain.Status(m.Status),
		AutoReleaseEnabled:      m.AutoReleaseEnabled,
		AutoReleaseAt:           m.AutoReleaseAt,
		RiskHoldExtended:        m.RiskHoldExtended,
		RiskHoldReason:          m.RiskHoldReason,
		PhotoVerificationStatus: domain.VerificationStatus(m.PhotoVerificationStatus),
		PhotoVerificationScore:  m.PhotoVerificationScore,
		TransferID:              m.TransferID,
		ReleaseReason:           m.ReleaseReason,
		ReleaseAttemptCount:     m.ReleaseAttemptCount,
		NextRetryAt:             m.NextRetryAt,
		LastReleaseError:        m.LastReleaseError,
		ClaimToken:              m.ClaimToken,
		ClaimUntil:              m.ClaimUntil,
		CompletedAt:             m.CompletedAt,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}

func toRuleDomain(m autoReleaseRuleModel) domain.AutoReleaseRule {
	return domain.AutoReleaseRule{
		RuleID:                    m.RuleID,
		ContractorTier:            m.ContractorTier,
		JobValueMin:               m.JobValueMin,
		JobValueMax:               m.JobValueMax,
		JobCategory:               m.JobCategory,
		HoldPeriodDays:            m.HoldPeriodDays,
		RequirePhotoVerification:  m.RequirePhotoVerification,
		MinPhotoScore:             m.MinPhotoScore,
		RiskMultiplier:            m.RiskMultiplier,
		DisputeHistoryPenaltyDays: m.DisputeHistoryPenaltyDays,
	}
}

func toVerificationModel(row domain.PhotoVerificationResult) photoVerificationResultModel {
	return photoVerificationResultModel{
		ResultID:              row.ResultID,
		EscrowID:              row.EscrowID,
		JobID:                 row.JobID,
		PhotoURLs:             marshalStrings(row.PhotoURLs),
		VerificationScore:     row.VerificationScore,
		Status:                string(row.Status),
		MatchesJobDescription: row.MatchesJobDescription,
		CompletionIndicators:  marshalStrings(row.CompletionIndicators),
		Concerns:              marshalStrings(row.Concerns),
		AnalyzerUnavailable:   row.AnalyzerUnavailable,
		AnalyzedAt:            row.AnalyzedAt,
	}
}

func toVerificationDomain(m photoVerificationResultModel) domain.PhotoVerificationResult {
	return domain.PhotoVerificationResult{
		ResultID:              m.ResultID,
		EscrowID:              m.EscrowID,
		JobID:                 m.JobID,
		PhotoURLs:             unmarshalStrings(m.PhotoURLs),
		VerificationScore:     m.VerificationScore,
		Status:                domain.VerificationStatus(m.Status),
		MatchesJobDescription: m.MatchesJobDescription,
		CompletionIndicators:  unmarshalStrings(m.CompletionIndicators),
		Concerns:              unmarshalStrings(m.Concerns),
		AnalyzerUnavailable:   m.AnalyzerUnavailable,
		AnalyzedAt:            m.AnalyzedAt,
	}
}

func toReleaseEventModel(row domain.ReleaseEvent) releaseEventModel {
	return releaseEventModel{
		EventID:        row.EventID,
		EscrowID:       row.EscrowID,
		FromStatus:     string(row.FromStatus),
		ToStatus:       string(row.ToStatus),
		Trigger:        row.Trigger,
		Outcome:        row.Outcome,
		DecisionInputs: string(row.DecisionInputs),
		OccurredAt:     row.OccurredAt,
	}
}

func toReleaseEventDomain(m releaseEventModel) domain.ReleaseEvent {
	return domain.ReleaseEvent{
		EventID:        m.EventID,
		EscrowID:       m.EscrowID,
		FromStatus:     domain.Status(m.FromStatus),
		ToStatus:       domain.Status(m.ToStatus),
		Trigger:        m.Trigger,
		Outcome:        m.Outcome,
		DecisionInputs: []byte(m.DecisionInputs),
		OccurredAt:     m.OccurredAt,
	}
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
