package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sitePages = map[string]string{
	"/": `<html><head><title>Home</title></head><body>
		<nav><a href="/guide">Guide</a></nav>
		<p>Welcome to the site</p>
		<a href="/about#team">About us</a>
		<a href="mailto:team@site.test">Mail</a>
		<a href="https://external.test/x">Partner</a>
		<a href="/files/brochure.pdf">Brochure</a>
		<script>var tracking = 1;</script>
	</body></html>`,
	"/guide": `<html><head><title>The Guide</title></head><body>
		<a href="/deep">Go deeper</a> <a href="/">Home</a>
	</body></html>`,
	"/about": `<html><head><title>About</title></head><body>
		<a href="/guide"><img src="/g.png" alt="Guide image"></a>
	</body></html>`,
	"/deep":   `<html><head><title>Deep</title></head><body><a href="/deeper">Deeper</a></body></html>`,
	"/deeper": `<html><head><title>Deeper</title></head><body>bottom</body></html>`,
}

type siteServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSiteServer(t *testing.T) *siteServer {
	t.Helper()
	s := &siteServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		body, ok := sitePages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *siteServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type countingProgress struct {
	mu      sync.Mutex
	fetched int
	failed  int
}

func (p *countingProgress) IncrementPagesFetched() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched++
}

func (p *countingProgress) IncrementPagesFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed++
}

func byURL(records []linkgraph.PageRecord, url string) (linkgraph.PageRecord, bool) {
	for _, r := range records {
		if r.URL == url {
			return r, true
		}
	}
	return linkgraph.PageRecord{}, false
}

func TestCrawlCollectsSitePages(t *testing.T) {
	site := newSiteServer(t)
	progress := &countingProgress{}

	c, err := NewCrawler(CrawlConfig{
		SeedURL:        site.URL + "/",
		MaxDepth:       2,
		Workers:        2,
		RequestTimeout: 5 * time.Second,
	}, quietLogger(), progress)
	require.NoError(t, err)

	records, err := c.Crawl(context.Background())
	require.NoError(t, err)

	var urls []string
	for _, r := range records {
		urls = append(urls, r.URL)
	}
	assert.Equal(t, []string{site.URL, site.URL + "/about", site.URL + "/deep", site.URL + "/guide"}, urls)

	home, ok := byURL(records, site.URL)
	require.True(t, ok)
	assert.True(t, home.EntryPoint)
	assert.Equal(t, "Home", home.Title)
	assert.Contains(t, home.Content, "Welcome to the site")
	assert.NotContains(t, home.Content, "tracking")
	assert.Len(t, home.Links, 5)
	assert.Contains(t, home.Links, linkgraph.LinkRecord{Target: "mailto:team@site.test", Anchor: "Mail"})
	assert.Contains(t, home.Links, linkgraph.LinkRecord{Target: "https://external.test/x", Anchor: "Partner"})

	about, ok := byURL(records, site.URL+"/about")
	require.True(t, ok)
	assert.False(t, about.EntryPoint)
	assert.Equal(t, []linkgraph.LinkRecord{{Target: site.URL + "/guide", Anchor: "Guide image"}}, about.Links)

	assert.Zero(t, site.hitCount("/deeper"), "beyond max depth")
	assert.Zero(t, site.hitCount("/files/brochure.pdf"), "assets are not fetched")
	assert.Equal(t, 1, site.hitCount("/guide"), "pages are fetched once")
	assert.Equal(t, 4, progress.fetched)
	assert.Zero(t, progress.failed)
}

func TestCrawledRecordsBuildAGraph(t *testing.T) {
	site := newSiteServer(t)

	c, err := NewCrawler(CrawlConfig{SeedURL: site.URL, MaxDepth: 1, RequestsPerSec: 100}, quietLogger(), nil)
	require.NoError(t, err)
	records, err := c.Crawl(context.Background())
	require.NoError(t, err)

	g, err := linkgraph.NewBuilder(quietLogger(), nil).Build(records)
	require.NoError(t, err)

	home, _ := g.Index(site.URL)
	about, ok := g.Index(site.URL + "/about")
	require.True(t, ok)
	assert.True(t, g.HasLink(home, about), "fragment stripped when resolving")
	// mailto, partner site, the brochure and /deep which lies beyond max depth
	assert.Equal(t, 4, g.ExternalLinkCount())
}

func TestNewCrawlerRejectsBadSeed(t *testing.T) {
	_, err := NewCrawler(CrawlConfig{SeedURL: "not a url"}, quietLogger(), nil)
	assert.ErrorContains(t, err, "invalid seed URL")
}

func TestCrawlHonoursCancellation(t *testing.T) {
	site := newSiteServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := NewCrawler(CrawlConfig{SeedURL: site.URL, MaxDepth: 3}, quietLogger(), nil)
	require.NoError(t, err)

	_, err = c.Crawl(ctx)
	assert.Error(t, err)
}
