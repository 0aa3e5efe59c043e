package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
)

// Scheduler triggers the configured sources on a fixed interval.
type Scheduler struct {
	trigger  *Trigger
	sources  []string
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler. An interval <= 0 disables it.
func NewScheduler(t *Trigger, sources []string, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{trigger: t, sources: sources, interval: interval, logger: logger}
}

// Run fires one round immediately and then one per interval until ctx is
// cancelled. A round still in flight when the ticker fires delays the next.
// Cancelling ctx stops new rounds; a round already started runs to
// completion before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduler disabled")
		<-ctx.Done()
		return nil
	}

	s.logger.Info("scheduler started", "interval", s.interval, "sources", s.sources)
	ticker := domain.Clock().NewTicker(s.interval)
	defer ticker.Stop()

	runCtx := context.WithoutCancel(ctx)
	s.round(runCtx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.round(runCtx)
		}
	}
}

func (s *Scheduler) round(ctx context.Context) {
	for name, r := range s.trigger.RunMany(ctx, s.sources, nil) {
		if r.Err != nil {
			s.logger.Error("scheduled run failed", "source", name, "error", r.Err)
			continue
		}
		s.logger.Debug("scheduled run done", "source", name, "inserted", r.Tally.Inserted)
	}
}
