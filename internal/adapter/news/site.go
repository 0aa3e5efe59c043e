package news

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"
)

const (
	summaryParagraphs = 3
	summaryMaxChars   = 1200

	// summaryConcurrency bounds parallel article fetches per site.
	summaryConcurrency = 4
)

// Site scrapes headline links from an outlet's listing pages.
type Site struct {
	cfg    config.Site
	base   *url.URL
	client *http.Client
	logger *slog.Logger
}

// NewSite creates a scraper for one configured outlet.
func NewSite(cfg config.Site, client *http.Client, logger *slog.Logger) (*Site, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("site %q: parse base_url: %w", cfg.Name, err)
	}
	return &Site{
		cfg:    cfg,
		base:   base,
		client: client,
		logger: logger.With("outlet", cfg.Name),
	}, nil
}

// Name returns the outlet name.
func (s *Site) Name() string { return s.cfg.Name }

// Fetch scrapes listing pages in order until MaxItems links are collected.
// Listing failures are tolerated as long as at least one listing succeeds.
// Listings sharing a page are fetched once. PublishedAt is left unset:
// listing pages carry no reliable publish time.
func (s *Site) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	var (
		out       []domain.Candidate
		seen      = make(map[string]bool)
		pages     = make(map[string]page)
		errs      []error
		attempted int
	)

	for _, l := range s.cfg.Listings {
		if len(out) >= s.cfg.MaxItems {
			break
		}
		attempted++
		links, err := s.scrapeListing(ctx, l, pages)
		if err != nil {
			s.logger.Warn("listing scrape failed", "path", l.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		for _, lk := range links {
			if len(out) >= s.cfg.MaxItems {
				break
			}
			if seen[lk.url] {
				continue
			}
			seen[lk.url] = true
			out = append(out, domain.Candidate{
				Source: domain.SourceNews,
				Title:  lk.title,
				URL:    domain.StringPtr(lk.url),
			})
		}
	}

	if attempted > 0 && len(errs) == attempted {
		return nil, fmt.Errorf("site %q: %w", s.cfg.Name, errors.Join(errs...))
	}

	if s.cfg.SummaryEnabled() {
		s.fillSummaries(ctx, out)
	}
	return out, nil
}

// page is one listing GET, kept for the duration of a Fetch.
type page struct {
	body []byte
	err  error
}

type link struct {
	title string
	url   string
}

func (s *Site) scrapeListing(ctx context.Context, l config.Listing, pages map[string]page) ([]link, error) {
	pageURL := s.resolve(l.Path)
	if pageURL == "" {
		return nil, fmt.Errorf("invalid listing path %q", l.Path)
	}
	pg, ok := pages[pageURL]
	if !ok {
		pg.body, pg.err = get(ctx, s.client, pageURL)
		pages[pageURL] = pg
	}
	if pg.err != nil {
		return nil, pg.err
	}
	body := pg.body
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	var links []link
	doc.Find(l.Selector).Each(func(_ int, sel *goquery.Selection) {
		// A selector may match the anchor itself or a block containing one.
		a := sel
		if goquery.NodeName(sel) != "a" {
			a = sel.Find("a[href]").First()
		}
		href, ok := a.Attr("href")
		title := collapse(sel.Text())
		if !ok || title == "" {
			return
		}
		abs := s.resolve(href)
		if abs == "" {
			return
		}
		links = append(links, link{title: title, url: abs})
	})
	return links, nil
}

// resolve turns href into an absolute http(s) URL against the site base,
// or "" when it cannot be used (fragments, javascript:, mailto:).
func (s *Site) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := s.base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// fillSummaries fetches linked articles concurrently. A failed fetch leaves
// the summary empty.
func (s *Site) fillSummaries(ctx context.Context, cs []domain.Candidate) {
	var g errgroup.Group
	g.SetLimit(summaryConcurrency)
	for i := range cs {
		g.Go(func() error {
			summary, err := s.articleSummary(ctx, *cs[i].URL)
			if err != nil {
				s.logger.Debug("article summary unavailable", "url", *cs[i].URL, "error", err)
				return nil
			}
			cs[i].Summary = summary
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Site) articleSummary(ctx context.Context, articleURL string) (string, error) {
	body, err := get(ctx, s.client, articleURL)
	if err != nil {
		return "", err
	}
	return extractSummary(body, articleURL)
}

// extractSummary joins the first few non-empty paragraphs of a page, capped
// at summaryMaxChars. Pages without <p> content fall back to readability.
func extractSummary(body []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}

	var paras []string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if t := collapse(p.Text()); t != "" {
			paras = append(paras, t)
		}
		return len(paras) < summaryParagraphs
	})
	if len(paras) > 0 {
		return truncate(strings.Join(paras, " "), summaryMaxChars), nil
	}

	u, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return truncate(collapse(article.TextContent), summaryMaxChars), nil
}
