package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
)

// URLChecker answers whether an incident with the given URL is already stored.
type URLChecker interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
}

// Gate is the duplicate pre-check run before every insert. It only saves
// wasted inserts; the store's UNIQUE constraint remains the authority.
type Gate struct {
	checker URLChecker
	logger  *slog.Logger
}

// NewGate creates a Gate backed by the store.
func NewGate(checker URLChecker, logger *slog.Logger) *Gate {
	return &Gate{checker: checker, logger: logger}
}

// IsDuplicate reports whether the candidate's URL is already stored.
// Candidates without a URL are never duplicates. A failed lookup is treated
// as "not duplicate" and left for the insert to settle.
func (g *Gate) IsDuplicate(ctx context.Context, c domain.Candidate) bool {
	if !c.HasURL() {
		return false
	}
	exists, err := g.checker.ExistsByURL(ctx, *c.URL)
	if err != nil {
		g.logger.Warn("duplicate pre-check failed, deferring to store constraint",
			"source", c.Source,
			"url", *c.URL,
			"error", err,
		)
		return false
	}
	return exists
}
