package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
	"github.com/oklog/ulid/v2"
)

// Job is one run of one source's adapter.
type Job struct {
	Source  domain.Source
	Fetcher domain.Fetcher

	// Category pins the label for every candidate in the run instead of
	// running the categorizer. Empty means categorize.
	Category string

	// Params is the trigger's parameter string, kept in the run ledger.
	Params string
}

// Pipeline runs fetch -> categorize -> dedup -> persist -> notify for a job.
// It holds no per-run state, so concurrent Runs only coordinate through
// the store.
type Pipeline struct {
	store     domain.Store
	gate      *Gate
	publisher domain.Publisher
	geocoder  domain.Geocoder
	recorder  domain.RunRecorder
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithPublisher sets the notification sink for newly stored incidents.
func WithPublisher(p domain.Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithGeocoder enables location enrichment before persistence.
func WithGeocoder(g domain.Geocoder) Option {
	return func(pl *Pipeline) { pl.geocoder = g }
}

// WithRecorder writes a ledger entry for every run.
func WithRecorder(r domain.RunRecorder) Option {
	return func(pl *Pipeline) { pl.recorder = r }
}

// New creates a Pipeline persisting into store.
func New(store domain.Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   store,
		gate:    NewGate(store, logger),
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one ingestion run. Adapter failures are logged and reported
// as an empty run; only a configuration error is returned, so callers can
// tell "nothing new" from "misconfigured".
func (p *Pipeline) Run(ctx context.Context, job Job) (tally domain.Tally, err error) {
	start := time.Now()
	startedAt := domain.Clock().Now()
	runID := ulid.Make().String()
	logger := p.logger.With("run_id", runID, "source", job.Source)
	src := string(job.Source)

	p.metrics.RunsInFlight.Inc()
	defer p.metrics.RunsInFlight.Dec()
	defer func() {
		p.metrics.RunDuration.WithLabelValues(src).Observe(time.Since(start).Seconds())
		p.record(ctx, logger, domain.RunRecord{
			ID:         runID,
			Source:     job.Source,
			Params:     job.Params,
			StartedAt:  startedAt,
			FinishedAt: domain.Clock().Now(),
			Tally:      tally,
			Error:      errString(err),
		})
	}()

	return p.run(ctx, logger, job)
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, job Job) (domain.Tally, error) {
	start := time.Now()
	src := string(job.Source)

	candidates, err := job.Fetcher.Fetch(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotConfigured) {
			p.metrics.ConfigErrors.WithLabelValues(src).Inc()
			logger.Error("source misconfigured", "error", err)
			return domain.Tally{}, err
		}
		p.metrics.FetchErrors.WithLabelValues(src).Inc()
		if len(candidates) == 0 {
			logger.Warn("fetch failed, nothing to ingest", "error", err)
			return domain.Tally{}, nil
		}
		logger.Warn("fetch partially failed, ingesting what was fetched",
			"error", err,
			"candidates", len(candidates),
		)
	}

	tally := domain.Tally{Fetched: len(candidates)}
	p.metrics.CandidatesFetched.WithLabelValues(src).Add(float64(len(candidates)))

	for _, c := range candidates {
		switch p.ingest(ctx, logger, job, c) {
		case outcomeInserted:
			tally.Inserted++
		case outcomeSkipped:
			tally.Skipped++
		case outcomeFailed:
			tally.Failed++
		}
	}

	logger.Info("ingestion run complete",
		"fetched", tally.Fetched,
		"inserted", tally.Inserted,
		"skipped", tally.Skipped,
		"failed", tally.Failed,
		"duration", time.Since(start),
	)
	return tally, nil
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeSkipped
	outcomeFailed
)

// ingest carries one candidate through categorize, dedup and persist.
func (p *Pipeline) ingest(ctx context.Context, logger *slog.Logger, job Job, c domain.Candidate) outcome {
	src := string(job.Source)
	if c.Source == "" {
		c.Source = job.Source
	}

	if job.Category != "" {
		c.Category = job.Category
	} else {
		c.Category = domain.Categorize(c.Title, c.Summary)
	}

	if p.gate.IsDuplicate(ctx, c) {
		p.metrics.Skipped.WithLabelValues(src, "precheck").Inc()
		logger.Debug("duplicate skipped", "url", c.URLOrEmpty())
		return outcomeSkipped
	}

	c, _ = domain.EnrichWithGeocoding(ctx, c, p.geocoder, logger)

	inc, err := p.store.Insert(ctx, c)
	switch {
	case err == nil:
		p.metrics.Inserted.WithLabelValues(src).Inc()
		p.notify(ctx, logger, inc)
		return outcomeInserted

	case errors.Is(err, domain.ErrConflict):
		// Another run stored the same URL between pre-check and insert.
		p.metrics.Skipped.WithLabelValues(src, "conflict").Inc()
		logger.Debug("duplicate skipped on insert", "url", c.URLOrEmpty())
		return outcomeSkipped

	default:
		p.metrics.Failed.WithLabelValues(src).Inc()
		logger.Error("persist failed, dropping candidate",
			"url", c.URLOrEmpty(),
			"title", c.Title,
			"error", err,
		)
		return outcomeFailed
	}
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, r domain.RunRecord) {
	if p.recorder == nil {
		return
	}
	// The run's own context may already be cancelled; the ledger write
	// still has to land.
	ctx = context.WithoutCancel(ctx)
	if err := p.recorder.RecordRun(ctx, r); err != nil {
		logger.Warn("run ledger write failed", "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// notify publishes incident_update. Failures are logged and never affect the run.
func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, inc domain.Incident) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, domain.EventIncidentUpdate, inc.Fields()); err != nil {
		logger.Warn("incident_update publish failed",
			"incident_id", inc.ID,
			"error", err,
		)
	}
}
