package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/application"
	"github.com/tradeforge/escrow-release-service/internal/domain"
)

// SweepWorker runs the auto-release sweep on a schedule. Each tick claims due
// transactions and drives them through risk assessment and release.
type SweepWorker struct {
	logger   *slog.Logger
	service  *application.Service
	interval time.Duration
}

func NewSweepWorker(logger *slog.Logger, service *application.Service, interval time.Duration) *SweepWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepWorker{
		logger:   logger,
		service:  service,
		interval: interval,
	}
}

// Run executes the periodic sweep until context cancellation.
func (w *SweepWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.service.RunSweep(ctx, domain.TriggerScheduledSweep); err != nil {
			w.logger.ErrorContext(ctx, "sweep iteration failed",
				"module", "events.sweep_worker",
				"layer", "adapter",
				"operation", "run_sweep",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
