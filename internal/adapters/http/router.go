package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers the escrow release routes and middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ready", nil) })

	r.Route("/escrow/v1", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/transactions", handler.createTransaction)
		r.Get("/transactions/{escrow_id}", handler.getTransaction)
		r.Post("/transactions/{escrow_id}/capture", handler.capturePayment)
		r.Post("/transactions/{escrow_id}/complete", handler.markJobComplete)
		r.Post("/transactions/{escrow_id}/verification", handler.verifyPhotos)
		r.Post("/transactions/{escrow_id}/dispute", handler.fileDispute)
		r.Post("/transactions/{escrow_id}/resolution", handler.resolve)
		r.Get("/transactions/{escrow_id}/release-date", handler.autoReleaseDate)
		r.Get("/transactions/{escrow_id}/evaluation", handler.evaluate)
		r.Get("/transactions/{escrow_id}/events", handler.listEvents)
		r.Post("/sweep", handler.runSweep)
	})

	return r
}
