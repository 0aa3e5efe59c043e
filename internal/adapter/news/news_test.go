package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `<html><body>
<div class="col_l_6"><a href="/city/chennai/fire-at-godown/articleshow/1.cms">  Fire at
  godown in Chennai </a></div>
<div class="col_l_6"><a href="http://127.0.0.1:1/world/flood">Flood alert</a></div>
<div class="col_l_6"><a href="/city/chennai/fire-at-godown/articleshow/1.cms#comments">Fire at godown (comments)</a></div>
<div class="col_l_6"><a href="javascript:void(0)">Subscribe</a></div>
<div class="col_l_6"><a href="/empty"></a></div>
<div class="linktype2"><a href="/india/bus-accident/articleshow/2.cms">Bus accident on highway</a></div>
</body></html>`

const articleHTML = `<html><body>
<p>First paragraph.</p>
<p>   </p>
<p>Second   paragraph.</p>
<p>Third paragraph.</p>
<p>Fourth paragraph is ignored.</p>
</body></html>`

const rssXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>World</title>
<item>
  <title>Earthquake shakes coastal town</title>
  <link>https://feeds.example.com/quake</link>
  <description><![CDATA[<p>A <b>magnitude 6.1</b> tremor.</p>]]></description>
  <pubDate>Mon, 04 May 2026 08:15:00 GMT</pubDate>
</item>
<item>
  <title></title>
  <link>https://feeds.example.com/untitled</link>
</item>
<item>
  <title>Bus accident on highway</title>
  <link>%s/india/bus-accident/articleshow/2.cms</link>
</item>
</channel></rss>`

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var articleHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			articleHits.Add(1)
			fmt.Fprint(w, articleHTML)
			return
		}
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		fmt.Fprint(w, listingHTML)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	var srv *httptest.Server
	mux.HandleFunc("/rss.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, rssXML, srv.URL)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &articleHits
}

func boolPtr(b bool) *bool { return &b }

func testSite(t *testing.T, base string, fetchSummary bool) *Site {
	t.Helper()
	s, err := NewSite(config.Site{
		Name:    "Test Times",
		BaseURL: base,
		Listings: []config.Listing{
			{Path: "/", Selector: "div.col_l_6 a[href]"},
			{Path: "/", Selector: "div.linktype2"},
		},
		MaxItems:     30,
		FetchSummary: boolPtr(fetchSummary),
	}, NewHTTPClient(5*time.Second), slog.Default())
	require.NoError(t, err)
	return s
}

func urls(cs []domain.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URLOrEmpty()
	}
	return out
}

func TestSite_Fetch(t *testing.T) {
	srv, hits := newTestServer(t)
	site := testSite(t, srv.URL, true)

	cs, err := site.Fetch(context.Background())
	require.NoError(t, err)

	want := []string{
		srv.URL + "/city/chennai/fire-at-godown/articleshow/1.cms",
		"http://127.0.0.1:1/world/flood",
		srv.URL + "/india/bus-accident/articleshow/2.cms",
	}
	if diff := cmp.Diff(want, urls(cs)); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Fire at godown in Chennai", cs[0].Title)
	assert.Equal(t, "Bus accident on highway", cs[2].Title)
	for _, c := range cs {
		assert.Equal(t, domain.SourceNews, c.Source)
		assert.Nil(t, c.PublishedAt)
	}
	assert.Equal(t, "First paragraph. Second paragraph. Third paragraph.", cs[0].Summary)
	// The unreachable article keeps an empty summary.
	assert.Empty(t, cs[1].Summary)
	assert.EqualValues(t, 2, hits.Load())
}

func TestSite_FetchWithoutSummaries(t *testing.T) {
	srv, hits := newTestServer(t)
	site := testSite(t, srv.URL, false)

	cs, err := site.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, cs, 3)
	assert.Zero(t, hits.Load())
}

func TestSite_MaxItems(t *testing.T) {
	srv, _ := newTestServer(t)
	site := testSite(t, srv.URL, false)
	site.cfg.MaxItems = 1

	cs, err := site.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, cs, 1)
}

func countingListingServer(t *testing.T) (*httptest.Server, map[string]*atomic.Int64) {
	t.Helper()
	hits := map[string]*atomic.Int64{"/": {}, "/india": {}}
	mux := http.NewServeMux()
	for path, n := range hits {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			n.Add(1)
			fmt.Fprint(w, listingHTML)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, hits
}

func TestSite_SharedListingPageFetchedOnce(t *testing.T) {
	srv, hits := countingListingServer(t)
	site := testSite(t, srv.URL, false)

	cs, err := site.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, cs, 3)
	assert.EqualValues(t, 1, hits["/"].Load())
}

func TestSite_StopsScrapingOnceFull(t *testing.T) {
	srv, hits := countingListingServer(t)
	site, err := NewSite(config.Site{
		Name:    "Test Times",
		BaseURL: srv.URL,
		Listings: []config.Listing{
			{Path: "/", Selector: "div.col_l_6 a[href]"},
			{Path: "/india", Selector: "div.linktype2"},
		},
		MaxItems:     2,
		FetchSummary: boolPtr(false),
	}, NewHTTPClient(5*time.Second), slog.Default())
	require.NoError(t, err)

	cs, err := site.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, cs, 2)
	assert.Zero(t, hits["/india"].Load(), "later listings are skipped once max_items is reached")
}

func TestSite_AllListingsFail(t *testing.T) {
	srv, _ := newTestServer(t)
	site, err := NewSite(config.Site{
		Name:     "Down",
		BaseURL:  srv.URL,
		Listings: []config.Listing{{Path: "/broken", Selector: "a"}},
		MaxItems: 5,
	}, NewHTTPClient(time.Second), slog.Default())
	require.NoError(t, err)

	cs, err := site.Fetch(context.Background())
	require.Error(t, err)
	assert.Empty(t, cs)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestExtractSummary_CapsLength(t *testing.T) {
	long := strings.Repeat("நிலநடுக்கம் ", 200)
	body := []byte("<html><body><p>" + long + "</p></body></html>")

	got, err := extractSummary(body, "https://example.com/a")
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(got)), summaryMaxChars)
	assert.True(t, strings.HasPrefix(got, "நிலநடுக்கம்"))
}

func TestExtractSummary_ReadabilityFallback(t *testing.T) {
	body := []byte(`<html><head><title>Storm</title></head><body>
<article><div>Heavy storm lashes the coast, uprooting trees and cutting power to thousands of homes across the district overnight.</div></article>
</body></html>`)

	got, err := extractSummary(body, "https://example.com/storm")
	require.NoError(t, err)
	assert.Contains(t, got, "Heavy storm lashes the coast")
}

func TestFeed_Fetch(t *testing.T) {
	srv, _ := newTestServer(t)
	feed := NewFeed(config.Feed{Name: "Wire", URL: srv.URL + "/rss.xml", MaxItems: 10}, NewHTTPClient(time.Second), slog.Default())

	cs, err := feed.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, cs, 2)

	quake := cs[0]
	assert.Equal(t, "Earthquake shakes coastal town", quake.Title)
	assert.Equal(t, "A magnitude 6.1 tremor.", quake.Summary)
	assert.Equal(t, "https://feeds.example.com/quake", quake.URLOrEmpty())
	require.NotNil(t, quake.PublishedAt)
	assert.Equal(t, time.Date(2026, 5, 4, 8, 15, 0, 0, time.UTC), *quake.PublishedAt)
}

func TestFeed_NotAFeed(t *testing.T) {
	srv, _ := newTestServer(t)
	feed := NewFeed(config.Feed{Name: "Bad", URL: srv.URL + "/broken", MaxItems: 10}, NewHTTPClient(time.Second), slog.Default())

	_, err := feed.Fetch(context.Background())
	assert.Error(t, err)
}

type stubOutlet struct {
	name string
	cs   []domain.Candidate
	err  error
}

func (s stubOutlet) Name() string { return s.name }
func (s stubOutlet) Fetch(context.Context) ([]domain.Candidate, error) {
	return s.cs, s.err
}

func cand(url string) domain.Candidate {
	return domain.Candidate{Source: domain.SourceNews, Title: url, URL: domain.StringPtr(url)}
}

func TestAggregator_DedupsAcrossOutlets(t *testing.T) {
	agg := NewAggregator(slog.Default(),
		stubOutlet{name: "a", cs: []domain.Candidate{cand("u1"), cand("u2")}},
		stubOutlet{name: "b", err: errors.New("timeout")},
		stubOutlet{name: "c", cs: []domain.Candidate{cand("u2"), cand("u3")}},
	)

	cs, err := agg.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, urls(cs))
}

func TestAggregator_AllOutletsFail(t *testing.T) {
	agg := NewAggregator(slog.Default(),
		stubOutlet{name: "a", err: errors.New("dns")},
		stubOutlet{name: "b", err: errors.New("timeout")},
	)

	cs, err := agg.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: dns")
	assert.Contains(t, err.Error(), "b: timeout")
	assert.Empty(t, cs)
}

func TestAggregator_SameArticleFromSiteAndFeed(t *testing.T) {
	srv, _ := newTestServer(t)
	agg, err := FromConfig(&config.NewsSources{
		Sites: []config.Site{{
			Name:         "Test Times",
			BaseURL:      srv.URL,
			Listings:     []config.Listing{{Path: "/", Selector: "div.linktype2 a[href]"}},
			MaxItems:     10,
			FetchSummary: boolPtr(false),
		}},
		Feeds: []config.Feed{{Name: "Wire", URL: srv.URL + "/rss.xml", MaxItems: 10}},
	}, time.Second, slog.Default())
	require.NoError(t, err)

	cs, err := agg.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/india/bus-accident/articleshow/2.cms",
		"https://feeds.example.com/quake",
	}, urls(cs))
}
