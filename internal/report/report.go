package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alvmarrod/link-weaver/internal/diagnostic"
	"github.com/alvmarrod/link-weaver/internal/graphmetrics"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/alvmarrod/link-weaver/internal/opportunity"
)

// Gap statuses, most severe first
const (
	GapOrphan       = "CRITICAL: Orphan Page"
	GapUnreachable  = "High: Unreachable"
	GapUnderLinked  = "High: Under-Linked"
	GapPoorAnchors  = "Medium: Poor Anchors"
	GapDeepPage     = "Medium: Deep Page"
	GapHealthy      = "Healthy"
	unreachableName = "unreachable"
)

// Options tune the page audit
type Options struct {
	DeepPageDepth int // pages deeper than this are flagged
}

// DefaultOptions flags pages deeper than three clicks
func DefaultOptions() Options {
	return Options{DeepPageDepth: 3}
}

// Meta describes one generation; it is not part of the comparable payload
type Meta struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Version     string    `json:"version"`
}

// DepthBucket counts pages at one click depth
type DepthBucket struct {
	Depth int    `json:"depth"` // -1 for unreachable pages
	Label string `json:"label"`
	Pages int    `json:"pages"`
}

// Summary holds graph-level metrics
type Summary struct {
	SnapshotID          string        `json:"snapshot_id"`
	PageCount           int           `json:"page_count"`
	InternalLinkCount   int           `json:"internal_link_count"`
	ExternalLinkCount   int           `json:"external_link_count"`
	EntryPoints         []string      `json:"entry_points"`
	OrphanURLs          []string      `json:"orphan_urls"`
	UnreachableURLs     []string      `json:"unreachable_urls"`
	DepthHistogram      []DepthBucket `json:"depth_histogram"`
	AuthorityConverged  bool          `json:"authority_converged"`
	AuthorityIterations int           `json:"authority_iterations"`
	OpportunityCount    int           `json:"opportunity_count"`
}

// PageSummary is one row of the page audit
type PageSummary struct {
	URL            string  `json:"url"`
	Importance     string  `json:"importance,omitempty"`
	Depth          int     `json:"depth"`
	Inbound        int     `json:"inbound_links"`
	Outbound       int     `json:"outbound_links"`
	External       int     `json:"external_links"`
	Authority      float64 `json:"authority"`
	EntryPoint     bool    `json:"entry_point"`
	Orphan         bool    `json:"orphan"`
	Unreachable    bool    `json:"unreachable"`
	GenericAnchors bool    `json:"generic_anchors"`
	GapStatus      string  `json:"gap_status"`
}

// AnchorFix proposes a descriptive replacement for a generic anchor on an existing link
type AnchorFix struct {
	PageToEdit      string `json:"page_to_edit"`
	Destination     string `json:"destination_page"`
	CurrentAnchor   string `json:"current_anchor"`
	SuggestedAnchor string `json:"suggested_anchor"`
}

// Report is the immutable result of one pipeline run
type Report struct {
	Meta          Meta                      `json:"-"`
	Summary       Summary                   `json:"summary"`
	Pages         []PageSummary             `json:"pages"`
	Opportunities []opportunity.Opportunity `json:"opportunities"`
	AnchorFixes   []AnchorFix               `json:"anchor_fixes"`
	Diagnostics   []diagnostic.Entry        `json:"diagnostics"`
}

// Generate aggregates graph, metrics and opportunities into a report.
// It only counts, groups and sorts; identical inputs give identical payloads.
func Generate(g *linkgraph.Graph, m *graphmetrics.Metrics, opps []opportunity.Opportunity, diags []diagnostic.Entry, opts Options) *Report {
	if opts.DeepPageDepth <= 0 {
		opts = DefaultOptions()
	}

	r := &Report{
		Summary: Summary{
			SnapshotID:          g.SnapshotID(),
			PageCount:           g.Len(),
			InternalLinkCount:   g.LinkCount(),
			ExternalLinkCount:   g.ExternalLinkCount(),
			EntryPoints:         []string{},
			OrphanURLs:          []string{},
			UnreachableURLs:     []string{},
			AuthorityConverged:  m.Converged,
			AuthorityIterations: m.Iterations,
			OpportunityCount:    len(opps),
		},
		Pages:         make([]PageSummary, 0, g.Len()),
		Opportunities: make([]opportunity.Opportunity, len(opps)),
		AnchorFixes:   []AnchorFix{},
		Diagnostics:   append([]diagnostic.Entry{}, diags...),
	}

	for i, o := range opps {
		o.Tags = append([]string{}, o.Tags...)
		r.Opportunities[i] = o
	}

	for _, ep := range m.EntryPoints {
		r.Summary.EntryPoints = append(r.Summary.EntryPoints, g.URL(ep))
	}

	depthCounts := make(map[int]int)
	for i := 0; i < g.Len(); i++ {
		pm := m.Pages[i]
		page := g.Page(i)

		if pm.Orphan {
			r.Summary.OrphanURLs = append(r.Summary.OrphanURLs, page.URL)
		}
		if pm.OrphanedByDepth {
			r.Summary.UnreachableURLs = append(r.Summary.UnreachableURLs, page.URL)
		}
		depthCounts[pm.Depth]++

		generic := false
		for _, l := range g.LinksTo(i) {
			if linkgraph.IsGenericAnchor(l.Anchor) {
				generic = true
				break
			}
		}

		summary := PageSummary{
			URL:            page.URL,
			Importance:     page.Importance,
			Depth:          pm.Depth,
			Inbound:        pm.Inbound,
			Outbound:       pm.Outbound,
			External:       len(page.External),
			Authority:      pm.Authority,
			EntryPoint:     pm.IsEntryPoint,
			Orphan:         pm.Orphan,
			Unreachable:    pm.OrphanedByDepth,
			GenericAnchors: generic,
		}
		summary.GapStatus = gapStatus(summary, opts)
		r.Pages = append(r.Pages, summary)
	}

	r.Summary.DepthHistogram = histogram(depthCounts)
	sortPages(r.Pages)
	r.AnchorFixes = anchorFixes(g)

	return r
}

func gapStatus(p PageSummary, opts Options) string {
	priority := p.Importance == "A" || p.Importance == "B"
	switch {
	case p.Orphan && !p.EntryPoint:
		return GapOrphan
	case p.Unreachable:
		return GapUnreachable
	case priority && p.Inbound <= 1:
		return GapUnderLinked
	case priority && p.GenericAnchors:
		return GapPoorAnchors
	case p.Depth > opts.DeepPageDepth:
		return GapDeepPage
	default:
		return GapHealthy
	}
}

// histogram lists depths ascending with unreachable pages last
func histogram(counts map[int]int) []DepthBucket {
	depths := make([]int, 0, len(counts))
	for d := range counts {
		if d != graphmetrics.Unreachable {
			depths = append(depths, d)
		}
	}
	sort.Ints(depths)

	buckets := make([]DepthBucket, 0, len(counts))
	for _, d := range depths {
		buckets = append(buckets, DepthBucket{Depth: d, Label: fmt.Sprintf("%d", d), Pages: counts[d]})
	}
	if n, ok := counts[graphmetrics.Unreachable]; ok {
		buckets = append(buckets, DepthBucket{Depth: graphmetrics.Unreachable, Label: unreachableName, Pages: n})
	}
	return buckets
}

func tierRank(importance string) int {
	switch importance {
	case "A":
		return 0
	case "B":
		return 1
	case "C":
		return 2
	default:
		return 3
	}
}

func sortPages(pages []PageSummary) {
	sort.Slice(pages, func(i, j int) bool {
		ti, tj := tierRank(pages[i].Importance), tierRank(pages[j].Importance)
		if ti != tj {
			return ti < tj
		}
		if pages[i].Authority != pages[j].Authority {
			return pages[i].Authority > pages[j].Authority
		}
		return pages[i].URL < pages[j].URL
	})
}

// anchorFixes lists existing generic anchors pointing at pages not explicitly tiered C
func anchorFixes(g *linkgraph.Graph) []AnchorFix {
	fixes := []AnchorFix{}
	for _, l := range g.Links() {
		if !linkgraph.IsGenericAnchor(l.Anchor) {
			continue
		}
		j, _ := g.Index(l.Target)
		if g.Page(j).Importance == "C" {
			continue
		}

		suggested := linkgraph.SlugPhrase(l.Target)
		if suggested == "" {
			suggested = strings.ToLower(g.Title(j))
		}
		fixes = append(fixes, AnchorFix{
			PageToEdit:      l.Source,
			Destination:     l.Target,
			CurrentAnchor:   l.Anchor,
			SuggestedAnchor: suggested,
		})
	}
	return fixes
}

// Payload returns the comparable JSON body, excluding Meta
func (r *Report) Payload() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// Encode writes meta and payload as one JSON document
func (r *Report) Encode(w io.Writer) error {
	envelope := struct {
		Meta   Meta    `json:"meta"`
		Report *Report `json:"report"`
	}{Meta: r.Meta, Report: r}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteFile exports the report to a JSON file
func (r *Report) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := r.Encode(file); err != nil {
		return err
	}
	return file.Close()
}
