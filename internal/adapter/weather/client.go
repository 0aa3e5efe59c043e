// Package weather implements the "weather" source: one current-conditions
// snapshot for a named city from the OpenWeather API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
)

// DefaultBaseURL is the OpenWeather current-conditions endpoint.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client calls the OpenWeather current weather API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// ClientOption configures optional Client settings.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a weather client. An empty apiKey is accepted; fetches
// then fail with domain.ErrNotConfigured.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetcher returns a domain.Fetcher producing the snapshot for city.
func (c *Client) Fetcher(city string) domain.Fetcher {
	return domain.FetcherFunc(func(ctx context.Context) ([]domain.Candidate, error) {
		cand, err := c.Current(ctx, city)
		if err != nil {
			return nil, err
		}
		return []domain.Candidate{cand}, nil
	})
}

// currentResponse is the subset of the OpenWeather payload we use.
type currentResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// APIError is a non-200 answer from OpenWeather.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openweather: %d %s", e.StatusCode, e.Message)
}

// Current fetches current conditions for city as a single candidate. The
// candidate has no URL: weather snapshots carry no natural key.
func (c *Client) Current(ctx context.Context, city string) (domain.Candidate, error) {
	if c.apiKey == "" {
		return domain.Candidate{}, domain.NotConfigured(domain.SourceWeather, "OPENWEATHER_API_KEY")
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("read weather response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		_ = json.Unmarshal(body, &er)
		if er.Message == "" {
			er.Message = http.StatusText(resp.StatusCode)
		}
		return domain.Candidate{}, &APIError{StatusCode: resp.StatusCode, Message: er.Message}
	}

	var cr currentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return domain.Candidate{}, fmt.Errorf("decode weather response: %w", err)
	}
	if len(cr.Weather) == 0 {
		return domain.Candidate{}, fmt.Errorf("weather response for %q has no conditions", city)
	}

	cand := domain.Candidate{
		Source:    domain.SourceWeather,
		Title:     city + " weather",
		Summary:   fmt.Sprintf("Weather in %s: %s, %s°C", city, cr.Weather[0].Description, strconv.FormatFloat(cr.Main.Temp, 'f', -1, 64)),
		Location:  city,
		Latitude:  domain.Float64Ptr(cr.Coord.Lat),
		Longitude: domain.Float64Ptr(cr.Coord.Lon),
	}
	if cr.Dt > 0 {
		observed := time.Unix(cr.Dt, 0).UTC()
		cand.PublishedAt = &observed
	}

	c.logger.Debug("weather fetched", "city", city, "conditions", cr.Weather[0].Description)
	return cand, nil
}
