// Package social implements the "social" source: recent posts matching
// English and Tamil incident keywords from the X (Twitter) v2 search API.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the recent-search endpoint.
	DefaultBaseURL = "https://api.twitter.com/2/tweets/search/recent"

	statusURLPrefix = "https://twitter.com/i/web/status/"
	maxResults      = 100
	titleMaxChars   = 120
)

// Query is one keyword search.
type Query struct {
	Lang     string
	Keywords []string
}

// String renders the search expression, e.g. "(fire OR flood) lang:en -is:retweet".
func (q Query) String() string {
	return "(" + strings.Join(q.Keywords, " OR ") + ") lang:" + q.Lang + " -is:retweet"
}

// DefaultQueries are the English and Tamil incident keyword searches.
var DefaultQueries = []Query{
	{Lang: "en", Keywords: []string{"fire", "accident", "theft", "emergency", "robbery", "crime", "disaster", "flood", "injury"}},
	{Lang: "ta", Keywords: []string{"தீ", "விபத்து", "கொள்ளை", "அவசர", "குற்றம்", "வெடிப்பு", "தாக்குதல்", "மழை", "காயம்"}},
}

// Client searches recent posts. Requests are paced by a token bucket so
// scheduled runs stay under the API's rate limit.
type Client struct {
	token   string
	baseURL string
	queries []Query
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientOption configures optional Client settings.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithQueries replaces DefaultQueries.
func WithQueries(qs ...Query) ClientOption {
	return func(c *Client) { c.queries = qs }
}

// NewClient creates a social client allowing perMinute requests per minute.
// An empty token is accepted; fetches then fail with domain.ErrNotConfigured.
func NewClient(token string, perMinute int, timeout time.Duration, logger *slog.Logger, opts ...ClientOption) *Client {
	if perMinute <= 0 {
		perMinute = 1
	}
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		queries: DefaultQueries,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), len(DefaultQueries)),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-200 answer from the search API. Rate limiting (429)
// and bad credentials (401) land here.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("social search: %d %s", e.StatusCode, e.Detail)
}

// Fetch implements domain.Fetcher. Each query runs independently; results
// from the queries that succeeded are returned alongside the joined errors
// of those that failed.
func (c *Client) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	if c.token == "" {
		return nil, domain.NotConfigured(domain.SourceSocial, "SOCIAL_BEARER_TOKEN")
	}

	var (
		out  []domain.Candidate
		errs []error
	)
	for _, q := range c.queries {
		cs, err := c.search(ctx, q)
		if err != nil {
			c.logger.Warn("social search failed", "lang", q.Lang, "error", err)
			errs = append(errs, fmt.Errorf("lang %s: %w", q.Lang, err))
			continue
		}
		out = append(out, cs...)
	}
	return out, errors.Join(errs...)
}

type searchResponse struct {
	Data []struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		Lang      string    `json:"lang"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"data"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type problemResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *Client) search(ctx context.Context, q Query) ([]domain.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("query", q.String())
	params.Set("tweet.fields", "created_at,lang,author_id")
	params.Set("max_results", fmt.Sprint(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var p problemResponse
		_ = json.Unmarshal(body, &p)
		detail := p.Detail
		if detail == "" {
			detail = p.Title
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.Candidate, 0, len(sr.Data))
	for _, post := range sr.Data {
		text := strings.TrimSpace(post.Text)
		if post.ID == "" || text == "" {
			continue
		}
		cand := domain.Candidate{
			Source:  domain.SourceSocial,
			Title:   title(text),
			Summary: text,
			URL:     domain.StringPtr(statusURLPrefix + post.ID),
		}
		if !post.CreatedAt.IsZero() {
			t := post.CreatedAt.UTC()
			cand.PublishedAt = &t
		}
		out = append(out, cand)
	}
	return out, nil
}

// title is the post's first line, shortened to titleMaxChars with an ellipsis.
func title(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= titleMaxChars {
		return line
	}
	r := []rune(line)
	return strings.TrimSpace(string(r[:titleMaxChars-1])) + "…"
}
