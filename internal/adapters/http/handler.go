package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tradeforge/escrow-release-service/internal/application"
	"github.com/tradeforge/escrow-release-service/internal/contracts"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// Handler is the HTTP adapter entrypoint for escrow release use-cases.
type Handler struct {
	service *application.Service
}

func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req contracts.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	actor := actorFromContext(r.Context())
	esc, err := h.service.CreateTransaction(r.Context(), actor, application.CreateTransactionInput{
		JobID:                  req.JobID,
		PayerID:                req.PayerID,
		PayeeID:                req.PayeeID,
		Amount:                 req.Amount,
		Currency:               req.Currency,
		ContractorID:           req.ContractorID,
		ContractorTier:         req.ContractorTier,
		JobCategory:            req.JobCategory,
		JobDescription:         req.JobDescription,
		ContractorDisputeCount: req.ContractorDisputeCount,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "create_transaction", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "transaction created", toTransactionResponse(esc))
}

func (h *Handler) capturePayment(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	esc, err := h.service.CapturePayment(r.Context(), actor, chi.URLParam(r, "escrow_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "capture_payment", err)
		return
	}
	writeSuccess(w, http.StatusOK, "payment captured", toTransactionResponse(esc))
}

func (h *Handler) markJobComplete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	esc, err := h.service.MarkJobComplete(r.Context(), actor, chi.URLParam(r, "escrow_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "mark_job_complete", err)
		return
	}
	writeSuccess(w, http.StatusOK, "job completion recorded", toTransactionResponse(esc))
}

func (h *Handler) verifyPhotos(w http.ResponseWriter, r *http.Request) {
	var req contracts.VerifyPhotosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	actor := actorFromContext(r.Context())
	result, err := h.service.VerifyCompletionPhotos(r.Context(), actor, application.VerifyPhotosInput{
		EscrowID:  chi.URLParam(r, "escrow_id"),
		JobID:     req.JobID,
		PhotoURLs: req.PhotoURLs,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "verify_completion_photos", err)
		return
	}
	writeSuccess(w, http.StatusOK, "photos verified", toVerificationResponse(result))
}

func (h *Handler) fileDispute(w http.ResponseWriter, r *http.Request) {
	var req contracts.DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	actor := actorFromContext(r.Context())
	esc, err := h.service.FileDispute(r.Context(), actor, chi.URLParam(r, "escrow_id"), req.Reason)
	if err != nil {
		writeMappedError(r.Context(), w, "file_dispute", err)
		return
	}
	writeSuccess(w, http.StatusOK, "dispute filed", toTransactionResponse(esc))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req contracts.ResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body", requestIDFromContext(r.Context()))
		return
	}
	actor := actorFromContext(r.Context())
	esc, err := h.service.Resolve(r.Context(), actor, application.ResolveInput{
		EscrowID: chi.URLParam(r, "escrow_id"),
		Outcome:  req.Outcome,
		Notes:    req.Notes,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "resolve", err)
		return
	}
	writeSuccess(w, http.StatusOK, "resolution applied", toTransactionResponse(esc))
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	esc, err := h.service.GetTransaction(r.Context(), chi.URLParam(r, "escrow_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "get_transaction", err)
		return
	}
	writeSuccess(w, http.StatusOK, "transaction", toTransactionResponse(esc))
}

func (h *Handler) autoReleaseDate(w http.ResponseWriter, r *http.Request) {
	escrowID := chi.URLParam(r, "escrow_id")
	at, err := h.service.CalculateAutoReleaseDate(r.Context(), escrowID)
	if err != nil {
		writeMappedError(r.Context(), w, "calculate_auto_release_date", err)
		return
	}
	writeSuccess(w, http.StatusOK, "auto release date", contracts.AutoReleaseDateResponse{
		EscrowID:      escrowID,
		AutoReleaseAt: at,
	})
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	eval, err := h.service.EvaluateAutoRelease(r.Context(), chi.URLParam(r, "escrow_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "evaluate_auto_release", err)
		return
	}
	writeSuccess(w, http.StatusOK, "evaluation", contracts.EvaluationResponse{
		EscrowID: eval.EscrowID,
		Approved: eval.Approved,
		Reason:   eval.Reason,
	})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListReleaseEvents(r.Context(), chi.URLParam(r, "escrow_id"))
	if err != nil {
		writeMappedError(r.Context(), w, "list_release_events", err)
		return
	}
	out := make([]contracts.ReleaseEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toReleaseEventResponse(ev))
	}
	writeSuccess(w, http.StatusOK, "release events", out)
}

func (h *Handler) runSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunSweep(r.Context(), domain.TriggerAPI)
	if err != nil {
		writeMappedError(r.Context(), w, "run_sweep", err)
		return
	}
	writeSuccess(w, http.StatusOK, "sweep completed", contracts.SweepResponse{
		Processed: result.Processed,
		Released:  result.Released,
		Extended:  result.Extended,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
	})
}

func toTransactionResponse(esc domain.EscrowTransaction) contracts.TransactionResponse {
	return contracts.TransactionResponse{
		EscrowID:                esc.EscrowID,
		JobID:                   esc.JobID,
		PayerID:                 esc.PayerID,
		PayeeID:                 esc.PayeeID,
		Amount:                  esc.Amount,
		Currency:                esc.Currency,
		Status:                  string(esc.Status),
		AutoReleaseEnabled:      esc.AutoReleaseEnabled,
		AutoReleaseAt:           esc.AutoReleaseAt,
		RiskHoldExtended:        esc.RiskHoldExtended,
		RiskHoldReason:          esc.RiskHoldReason,
		PhotoVerificationStatus: string(esc.PhotoVerificationStatus),
		PhotoVerificationScore:  esc.PhotoVerificationScore,
		TransferID:              esc.TransferID,
		ReleaseReason:           string(esc.ReleaseReason),
		ReleaseAttemptCount:     esc.ReleaseAttemptCount,
		NextRetryAt:             esc.NextRetryAt,
		CompletedAt:             esc.CompletedAt,
		CreatedAt:               esc.CreatedAt,
	}
}

func toVerificationResponse(result domain.PhotoVerificationResult) contracts.VerificationResponse {
	return contracts.VerificationResponse{
		ResultID:              result.ResultID,
		EscrowID:              result.EscrowID,
		JobID:                 result.JobID,
		VerificationScore:     result.VerificationScore,
		Status:                string(result.Status),
		MatchesJobDescription: result.MatchesJobDescription,
		CompletionIndicators:  result.CompletionIndicators,
		Concerns:              result.Concerns,
		AnalyzerUnavailable:   result.AnalyzerUnavailable,
		AnalyzedAt:            result.AnalyzedAt,
	}
}

func toReleaseEventResponse(ev domain.ReleaseEvent) contracts.ReleaseEventResponse {
	var inputs any
	if len(ev.DecisionInputs) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(ev.DecisionInputs, &decoded); err == nil {
			inputs = decoded
		}
	}
	return contracts.ReleaseEventResponse{
		EventID:        ev.EventID,
		EscrowID:       ev.EscrowID,
		FromStatus:     string(ev.FromStatus),
		ToStatus:       string(ev.ToStatus),
		Trigger:        ev.Trigger,
		Outcome:        ev.Outcome,
		DecisionInputs: inputs,
		OccurredAt:     ev.OccurredAt,
	}
}
