package domain

import (
	"context"
	"time"
)

// Source identifies where an incident record came from.
type Source string

const (
	SourceNews    Source = "news"
	SourceWeather Source = "weather"
	SourceSocial  Source = "social"
	SourceUser    Source = "user"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case SourceNews, SourceWeather, SourceSocial, SourceUser:
		return src, nil
	default:
		return "", &UnknownSourceError{Name: s}
	}
}

// StatusReported is the status every ingested incident starts with.
const StatusReported = "reported"

// EventIncidentUpdate is the notification emitted for each newly stored incident.
const EventIncidentUpdate = "incident_update"

// Candidate is a normalized incident record that has not been stored yet.
// Pointer fields are nullable.
type Candidate struct {
	Source      Source
	Title       string
	Summary     string
	URL         *string
	Location    string
	Latitude    *float64
	Longitude   *float64
	PublishedAt *time.Time
	Category    string
}

// HasURL reports whether the candidate carries a natural key.
func (c Candidate) HasURL() bool {
	return c.URL != nil && *c.URL != ""
}

// URLOrEmpty returns the URL, or "" when absent.
func (c Candidate) URLOrEmpty() string {
	if c.URL == nil {
		return ""
	}
	return *c.URL
}

// Incident is a stored incident. ID, Status, CreatedAt and UpdatedAt are
// assigned by the store.
type Incident struct {
	ID          int64
	Source      Source
	Category    string
	Title       string
	Description string
	URL         *string
	Location    string
	Latitude    *float64
	Longitude   *float64
	PublishedAt *time.Time
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Fields flattens the incident into the key/value payload sent with
// incident_update notifications. Nullable fields map to nil.
func (i Incident) Fields() map[string]any {
	m := map[string]any{
		"id":           i.ID,
		"source":       string(i.Source),
		"category":     i.Category,
		"title":        i.Title,
		"description":  i.Description,
		"url":          nil,
		"location":     i.Location,
		"latitude":     nil,
		"longitude":    nil,
		"published_at": nil,
		"status":       i.Status,
		"created_at":   i.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   i.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if i.URL != nil {
		m["url"] = *i.URL
	}
	if i.Latitude != nil {
		m["latitude"] = *i.Latitude
	}
	if i.Longitude != nil {
		m["longitude"] = *i.Longitude
	}
	if i.PublishedAt != nil {
		m["published_at"] = i.PublishedAt.UTC().Format(time.RFC3339)
	}
	return m
}

// Tally counts the outcome of one ingestion run.
type Tally struct {
	Fetched  int
	Inserted int
	Skipped  int
	Failed   int
}

// Fetcher produces candidates from one external source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Candidate, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]Candidate, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]Candidate, error) { return f(ctx) }

// Store is the persistence port. Insert returns ErrConflict when the
// candidate's URL is already stored.
type Store interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	Insert(ctx context.Context, c Candidate) (Incident, error)
}

// Publisher delivers notifications. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event string, payload map[string]any) error
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
