package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
)

// Sink is a named notification target.
type Sink struct {
	Name      string
	Publisher domain.Publisher
}

// Fanout publishes every event to each of its sinks. One sink failing does
// not stop delivery to the others.
type Fanout struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFanout creates a Fanout over sinks.
func NewFanout(logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger, metrics: metrics}
}

// Publish delivers to every sink and joins their errors.
func (f *Fanout) Publish(ctx context.Context, event string, payload map[string]any) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publisher.Publish(ctx, event, payload); err != nil {
			f.metrics.PublishErrors.WithLabelValues(s.Name).Inc()
			f.logger.Warn("sink publish failed", "sink", s.Name, "event", event, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
