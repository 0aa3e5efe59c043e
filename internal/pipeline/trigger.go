package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Params are the trigger's per-run parameters, e.g. city=Chennai.
type Params map[string]string

// String renders params as sorted key=value pairs for the run ledger.
func (p Params) String() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + p[k]
	}
	return strings.Join(parts, "&")
}

// Registration binds a source to its adapter.
type Registration struct {
	// Build returns the fetcher for one run. Missing credentials should
	// surface from Fetch as domain.ErrNotConfigured, not from Build.
	Build func(Params) domain.Fetcher

	// Category pins every candidate's label; empty runs the categorizer.
	Category string
}

// Trigger resolves source names to adapters and runs them through the pipeline.
type Trigger struct {
	pipeline *Pipeline
	sources  map[domain.Source]Registration
}

// NewTrigger creates a Trigger with no sources registered.
func NewTrigger(p *Pipeline) *Trigger {
	return &Trigger{pipeline: p, sources: make(map[domain.Source]Registration)}
}

// Register adds or replaces the adapter for src.
func (t *Trigger) Register(src domain.Source, r Registration) {
	t.sources[src] = r
}

// Sources lists registered source names in sorted order.
func (t *Trigger) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(t.sources))
	for s := range t.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RunIngest runs one ingestion for the named source. It returns an
// *domain.UnknownSourceError for unregistered names and a wrapped
// domain.ErrNotConfigured when the source lacks credentials.
func (t *Trigger) RunIngest(ctx context.Context, name string, params Params) (domain.Tally, error) {
	src, err := domain.ParseSource(name)
	if err != nil {
		return domain.Tally{}, err
	}
	reg, ok := t.sources[src]
	if !ok {
		return domain.Tally{}, &domain.UnknownSourceError{Name: name}
	}
	return t.pipeline.Run(ctx, Job{
		Source:   src,
		Fetcher:  reg.Build(params),
		Category: reg.Category,
		Params:   params.String(),
	})
}

// Result is the outcome of one source's run inside RunMany.
type Result struct {
	Tally domain.Tally
	Err   error
}

// RunMany runs the named sources concurrently. Each run is isolated: one
// source failing never cancels the others. params is keyed by source name
// and may be nil.
func (t *Trigger) RunMany(ctx context.Context, names []string, params map[string]Params) map[string]Result {
	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(names))
		g       errgroup.Group
	)
	for _, name := range names {
		g.Go(func() error {
			tally, err := t.RunIngest(ctx, name, params[name])
			mu.Lock()
			results[name] = Result{Tally: tally, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
