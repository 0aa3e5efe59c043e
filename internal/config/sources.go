package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_sources.yaml
var DefaultSourcesYAML []byte

// NewsSources lists the news sites to scrape and the RSS outlets to read.
type NewsSources struct {
	Sites []Site `yaml:"sites"`
	Feeds []Feed `yaml:"feeds"`
}

// Site describes a news site scraped through listing pages.
type Site struct {
	Name         string    `yaml:"name"`
	BaseURL      string    `yaml:"base_url"`
	Listings     []Listing `yaml:"listings"`
	MaxItems     int       `yaml:"max_items"`
	FetchSummary *bool     `yaml:"fetch_summary"`
}

// Listing is one page of a site plus the CSS selector matching its headline links.
type Listing struct {
	Path     string `yaml:"path"`
	Selector string `yaml:"selector"`
}

// Feed is an RSS or Atom outlet.
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	MaxItems int    `yaml:"max_items"`
}

// SummaryEnabled reports whether linked articles should be fetched for a summary.
func (s Site) SummaryEnabled() bool {
	return s.FetchSummary == nil || *s.FetchSummary
}

// LoadNewsSources reads the catalog at path, or the embedded default when path is empty.
func LoadNewsSources(path string) (*NewsSources, error) {
	if path == "" {
		return parseNewsSources(DefaultSourcesYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading news sources: %w", err)
	}
	return parseNewsSources(data)
}

func parseNewsSources(data []byte) (*NewsSources, error) {
	var ns NewsSources
	if err := yaml.Unmarshal(data, &ns); err != nil {
		return nil, fmt.Errorf("parsing news sources: %w", err)
	}

	for i := range ns.Sites {
		s := &ns.Sites[i]
		if s.BaseURL == "" {
			return nil, fmt.Errorf("site %q: base_url is required", s.Name)
		}
		if len(s.Listings) == 0 {
			return nil, fmt.Errorf("site %q: at least one listing is required", s.Name)
		}
		for _, l := range s.Listings {
			if l.Selector == "" {
				return nil, fmt.Errorf("site %q: listing %q has no selector", s.Name, l.Path)
			}
		}
		if s.MaxItems <= 0 {
			s.MaxItems = 30
		}
	}
	for i := range ns.Feeds {
		f := &ns.Feeds[i]
		if f.URL == "" {
			return nil, fmt.Errorf("feed %q: url is required", f.Name)
		}
		if f.MaxItems <= 0 {
			f.MaxItems = 20
		}
	}

	return &ns, nil
}
