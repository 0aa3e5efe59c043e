package news

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/mmcdole/gofeed"
)

// Feed reads one RSS or Atom outlet.
type Feed struct {
	cfg    config.Feed
	client *http.Client
	logger *slog.Logger
}

// NewFeed creates a reader for one configured feed.
func NewFeed(cfg config.Feed, client *http.Client, logger *slog.Logger) *Feed {
	return &Feed{cfg: cfg, client: client, logger: logger.With("outlet", cfg.Name)}
}

// Name returns the outlet name.
func (f *Feed) Name() string { return f.cfg.Name }

// Fetch downloads and parses the feed, keeping at most MaxItems entries.
func (f *Feed) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	body, err := get(ctx, f.client, f.cfg.URL)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.cfg.URL, err)
	}

	var out []domain.Candidate
	for _, item := range feed.Items {
		if len(out) >= f.cfg.MaxItems {
			break
		}
		if c, ok := candidateFromItem(item); ok {
			out = append(out, c)
		}
	}
	f.logger.Debug("feed parsed", "items", len(feed.Items), "kept", len(out))
	return out, nil
}

func candidateFromItem(item *gofeed.Item) (domain.Candidate, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" && strings.HasPrefix(item.GUID, "http") {
		link = item.GUID
	}
	title := collapse(item.Title)
	if link == "" || title == "" {
		return domain.Candidate{}, false
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	var published *time.Time
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		published = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		published = &t
	}

	return domain.Candidate{
		Source:      domain.SourceNews,
		Title:       title,
		Summary:     truncate(htmlText(summary), summaryMaxChars),
		URL:         domain.StringPtr(link),
		PublishedAt: published,
	}, true
}

// htmlText returns the visible text of an HTML fragment.
func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}
