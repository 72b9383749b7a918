package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// CrawlConfig holds the crawler parameters
type CrawlConfig struct {
	SeedURL        string
	MaxDepth       int // clicks from the seed page
	MaxPages       int // 0 means unlimited
	Workers        int
	RequestTimeout time.Duration
	Delay          time.Duration
	RequestsPerSec float64 // 0 disables the global rate limit
	UserAgent      string
}

// ProgressRecorder receives fetch outcomes
type ProgressRecorder interface {
	IncrementPagesFetched()
	IncrementPagesFailed()
}

// Crawler collects page records from one site, following internal links only
type Crawler struct {
	cfg      CrawlConfig
	seed     string
	hosts    []string
	log      logrus.FieldLogger
	progress ProgressRecorder

	mu    sync.Mutex
	pages map[string]linkgraph.PageRecord
}

// NewCrawler creates a crawler for the seed's site
func NewCrawler(cfg CrawlConfig, log logrus.FieldLogger, progress ProgressRecorder) (*Crawler, error) {
	seed, err := linkgraph.NormalizeURL(cfg.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Crawler{
		cfg:      cfg,
		seed:     seed,
		hosts:    siteHosts(linkgraph.Host(seed)),
		log:      log.WithField("component", "crawler"),
		progress: progress,
		pages:    make(map[string]linkgraph.PageRecord),
	}, nil
}

// newCollector configures an async colly collector bounded to the site
func (c *Crawler) newCollector(ctx context.Context) (*colly.Collector, error) {
	options := []colly.CollectorOption{
		colly.Async(true),
		colly.MaxDepth(c.cfg.MaxDepth + 1), // colly counts the seed as depth 1
		colly.AllowedDomains(c.hosts...),
		colly.StdlibContext(ctx),
	}
	if c.cfg.UserAgent != "" {
		options = append(options, colly.UserAgent(c.cfg.UserAgent))
	}
	if c.cfg.MaxPages > 0 {
		options = append(options, colly.MaxRequests(uint32(c.cfg.MaxPages)))
	}

	collector := colly.NewCollector(options...)
	collector.SetRequestTimeout(c.cfg.RequestTimeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Workers,
		Delay:       c.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("failed to set crawl limits: %w", err)
	}

	if c.cfg.RequestsPerSec > 0 {
		limiter := rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSec), c.cfg.Workers)
		collector.OnRequest(func(r *colly.Request) {
			if err := limiter.Wait(ctx); err != nil {
				r.Abort()
			}
		})
	}

	collector.OnHTML("html", c.handlePage)

	collector.OnResponse(func(r *colly.Response) {
		c.log.Debugf("Fetched %s (depth=%d, status=%d)", r.Request.URL, r.Request.Depth-1, r.StatusCode)
		if c.progress != nil {
			c.progress.IncrementPagesFetched()
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Request != nil {
			c.log.Warnf("Fetch failed for %s: %v (status: %d)", r.Request.URL, err, r.StatusCode)
		} else {
			c.log.Warnf("Fetch failed: %v", err)
		}
		if c.progress != nil {
			c.progress.IncrementPagesFailed()
		}
	})

	return collector, nil
}

// Crawl fetches the site breadth-first from the seed and returns its pages sorted by URL.
// The seed page is flagged as the entry point.
func (c *Crawler) Crawl(ctx context.Context) ([]linkgraph.PageRecord, error) {
	collector, err := c.newCollector(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Infof("Crawling %s (max depth %d, %d workers)", c.seed, c.cfg.MaxDepth, c.cfg.Workers)
	start := time.Now()

	if err := collector.Visit(c.seed); err != nil {
		return nil, fmt.Errorf("failed to visit seed %s: %w", c.seed, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl aborted: %w", err)
	}

	records := c.records()
	c.log.Infof("Crawl finished: %d pages in %s", len(records), time.Since(start).Round(time.Millisecond))
	return records, nil
}

// handlePage turns one fetched HTML document into a page record and schedules its internal links
func (c *Crawler) handlePage(e *colly.HTMLElement) {
	pageURL, err := linkgraph.NormalizeURL(e.Request.URL.String())
	if err != nil {
		c.log.Debugf("Skipping page with unusable URL %s: %v", e.Request.URL, err)
		return
	}

	body := e.DOM.Find("body")
	rec := linkgraph.PageRecord{
		URL:        pageURL,
		Title:      collapse(e.DOM.Find("head > title").First().Text()),
		Content:    SelectionText(body),
		EntryPoint: e.Request.Depth == 1,
	}

	body.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		target := e.Request.AbsoluteURL(href)
		if target == "" {
			target = href
		}
		rec.Links = append(rec.Links, linkgraph.LinkRecord{Target: target, Anchor: anchorText(a)})

		if !shouldFollow(target, c.hosts) {
			return
		}
		if err := e.Request.Visit(target); err != nil && !isExpectedVisitError(err) {
			c.log.Debugf("Not following %s: %v", target, err)
		}
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.pages[pageURL]; !seen {
		c.pages[pageURL] = rec
	}
}

// anchorText is the link text, or the alt text of a linked image
func anchorText(a *goquery.Selection) string {
	if text := SelectionText(a); text != "" {
		return text
	}
	return collapse(a.Find("img[alt]").First().AttrOr("alt", ""))
}

func isExpectedVisitError(err error) bool {
	var alreadyVisited *colly.AlreadyVisitedError
	return errors.As(err, &alreadyVisited) ||
		errors.Is(err, colly.ErrMaxDepth) ||
		errors.Is(err, colly.ErrMaxRequests) ||
		errors.Is(err, colly.ErrForbiddenDomain)
}

func (c *Crawler) records() []linkgraph.PageRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]linkgraph.PageRecord, 0, len(c.pages))
	for _, rec := range c.pages {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].URL < records[j].URL
	})
	return records
}
