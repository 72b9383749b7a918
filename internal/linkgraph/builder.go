package linkgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alvmarrod/link-weaver/internal/diagnostic"
	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

var validImportance = map[string]bool{"A": true, "B": true, "C": true}

// Builder turns raw page records into a validated Graph
type Builder struct {
	log   logrus.FieldLogger
	diags *diagnostic.Collector
}

// NewBuilder creates a graph builder reporting non-fatal problems to diags
func NewBuilder(log logrus.FieldLogger, diags *diagnostic.Collector) *Builder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Builder{
		log:   log.WithField("component", "linkgraph"),
		diags: diags,
	}
}

type pendingPage struct {
	record int
	page   Page
	links  []LinkRecord
}

// Build validates records and assembles the immutable graph.
// Bad records are skipped, never fatal; ErrEmptyDataset is returned when nothing survives.
func (b *Builder) Build(records []PageRecord) (*Graph, error) {
	pending := make(map[string]*pendingPage, len(records))

	for i, rec := range records {
		if strings.TrimSpace(rec.URL) == "" {
			b.ingestionError(i, "", "missing required field: url")
			continue
		}

		pageURL, err := NormalizeURL(rec.URL)
		if err != nil {
			b.ingestionError(i, rec.URL, err.Error())
			continue
		}

		importance := strings.ToUpper(strings.TrimSpace(rec.Importance))
		if importance != "" && !validImportance[importance] {
			b.ingestionError(i, pageURL, fmt.Sprintf("invalid importance %q ignored (allowed: A, B, C)", rec.Importance))
			importance = ""
		}

		title := strings.TrimSpace(rec.Title)

		// Keep the first occurrence of a URL
		if existing, exists := pending[pageURL]; exists {
			if existing.page.Title != title || existing.page.Content != rec.Content {
				b.integrityWarning(pageURL, fmt.Sprintf("duplicate url in record %d with conflicting content; first occurrence (record %d) kept", i, existing.record))
			} else {
				b.log.Debugf("Duplicate record %d for %s ignored", i, pageURL)
			}
			continue
		}

		pending[pageURL] = &pendingPage{
			record: i,
			page: Page{
				URL:        pageURL,
				Title:      title,
				Content:    rec.Content,
				EntryPoint: rec.EntryPoint,
				Importance: importance,
			},
			links: rec.Links,
		}
	}

	if len(pending) == 0 {
		return nil, diagnostic.ErrEmptyDataset
	}

	urls := make([]string, 0, len(pending))
	for u := range pending {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	g := &Graph{
		pages:   make([]Page, len(urls)),
		index:   make(map[string]int, len(urls)),
		linksTo: make([][]int, len(urls)),
		out:     make([][]int, len(urls)),
		in:      make([][]int, len(urls)),
		edges:   make(map[edgeKey]struct{}),
	}
	for i, u := range urls {
		g.index[u] = i
	}

	seenLinks := make(map[string]struct{})
	for i, u := range urls {
		pp := pending[u]
		page := pp.page

		for pos, lr := range pp.links {
			target, err := ResolveURL(page.URL, lr.Target)
			if err != nil {
				if errors.Is(err, ErrUnsupportedScheme) {
					page.External = append(page.External, Link{Source: page.URL, Target: strings.TrimSpace(lr.Target), Anchor: strings.TrimSpace(lr.Anchor), Position: pos})
					g.external++
					continue
				}
				b.ingestionError(pp.record, page.URL, fmt.Sprintf("link %d dropped: %v", pos, err))
				continue
			}

			link := Link{Source: page.URL, Target: target, Anchor: strings.TrimSpace(lr.Anchor), Position: pos}

			if target == page.URL {
				b.integrityWarning(page.URL, fmt.Sprintf("self-loop link %d (anchor %q) dropped", pos, link.Anchor))
				continue
			}

			j, internal := g.index[target]
			if !internal {
				page.External = append(page.External, link)
				g.external++
				continue
			}

			key := page.URL + "\x00" + target + "\x00" + NormalizeAnchor(link.Anchor)
			if _, dup := seenLinks[key]; dup {
				b.log.Debugf("Duplicate link %s -> %s (%q) collapsed", page.URL, target, link.Anchor)
				continue
			}
			seenLinks[key] = struct{}{}

			g.links = append(g.links, link)
			k := edgeKey{i, j}
			if _, exists := g.edges[k]; !exists {
				g.edges[k] = struct{}{}
				g.out[i] = append(g.out[i], j)
				g.in[j] = append(g.in[j], i)
			}
		}

		g.pages[i] = page
	}

	sort.SliceStable(g.links, func(a, c int) bool {
		la, lc := g.links[a], g.links[c]
		if la.Source != lc.Source {
			return la.Source < lc.Source
		}
		if la.Target != lc.Target {
			return la.Target < lc.Target
		}
		return NormalizeAnchor(la.Anchor) < NormalizeAnchor(lc.Anchor)
	})
	for pos, l := range g.links {
		j := g.index[l.Target]
		g.linksTo[j] = append(g.linksTo[j], pos)
	}
	for i := range g.out {
		sort.Ints(g.out[i])
		sort.Ints(g.in[i])
	}

	g.snapshotID = fingerprint(g)

	b.log.Infof("Graph built: %d pages, %d internal links, %d external links (%d records in)",
		len(g.pages), len(g.links), g.external, len(records))

	return g, nil
}

func (b *Builder) ingestionError(record int, url, reason string) {
	err := &diagnostic.IngestionError{Record: record, URL: url, Reason: reason}
	b.log.Warn(err.Error())
	b.diags.Record(err)
}

func (b *Builder) integrityWarning(url, reason string) {
	w := &diagnostic.GraphIntegrityWarning{URL: url, Reason: reason}
	b.log.Warn(w.Error())
	b.diags.Record(w)
}

// fingerprint hashes pages and internal links in their canonical order
func fingerprint(g *Graph) string {
	d := xxhash.New()
	for _, p := range g.pages {
		d.WriteString(p.URL)
		d.WriteString("\x00")
		d.WriteString(p.Title)
		d.WriteString("\x00")
		d.WriteString(p.Content)
		d.WriteString("\x01")
	}
	for _, l := range g.links {
		d.WriteString(l.Source)
		d.WriteString("\x00")
		d.WriteString(l.Target)
		d.WriteString("\x00")
		d.WriteString(NormalizeAnchor(l.Anchor))
		d.WriteString("\x01")
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
