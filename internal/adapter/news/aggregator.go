package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Outlet is one news fetcher inside an Aggregator.
type Outlet interface {
	domain.Fetcher
	Name() string
}

// Aggregator fetches every outlet concurrently and merges the results into
// one batch with no repeated URL. A failing outlet contributes nothing;
// the batch only errors when every outlet failed.
type Aggregator struct {
	outlets []Outlet
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator over outlets. Order matters: when two
// outlets link the same article, the earlier outlet's candidate is kept.
func NewAggregator(logger *slog.Logger, outlets ...Outlet) *Aggregator {
	return &Aggregator{outlets: outlets, logger: logger}
}

// FromConfig builds an Aggregator from the news catalog: sites first, then feeds.
func FromConfig(ns *config.NewsSources, timeout time.Duration, logger *slog.Logger) (*Aggregator, error) {
	client := NewHTTPClient(timeout)
	outlets := make([]Outlet, 0, len(ns.Sites)+len(ns.Feeds))
	for _, sc := range ns.Sites {
		s, err := NewSite(sc, client, logger)
		if err != nil {
			return nil, err
		}
		outlets = append(outlets, s)
	}
	for _, fc := range ns.Feeds {
		outlets = append(outlets, NewFeed(fc, client, logger))
	}
	return NewAggregator(logger, outlets...), nil
}

// Fetch implements domain.Fetcher.
func (a *Aggregator) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	if len(a.outlets) == 0 {
		return nil, nil
	}

	results := make([][]domain.Candidate, len(a.outlets))
	errs := make([]error, len(a.outlets))

	var g errgroup.Group
	for i, o := range a.outlets {
		g.Go(func() error {
			cs, err := o.Fetch(ctx)
			if err != nil {
				a.logger.Warn("news outlet failed", "outlet", o.Name(), "error", err)
				errs[i] = fmt.Errorf("%s: %w", o.Name(), err)
				return nil
			}
			results[i] = cs
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(a.outlets) {
		return nil, errors.Join(errs...)
	}

	return dedupByURL(results...), nil
}

// dedupByURL concatenates batches, keeping the first candidate for each URL.
// Candidates without a URL are always kept.
func dedupByURL(batches ...[]domain.Candidate) []domain.Candidate {
	seen := make(map[string]bool)
	var out []domain.Candidate
	for _, batch := range batches {
		for _, c := range batch {
			if c.HasURL() {
				if seen[*c.URL] {
					continue
				}
				seen[*c.URL] = true
			}
			out = append(out, c)
		}
	}
	return out
}
