package linkgraph

import (
	"slices"
)

// LinkRecord is one outbound link declaration on an input record
type LinkRecord struct {
	Target string `json:"target"`
	Anchor string `json:"anchor"`
}

// PageRecord is the input contract produced by ingestion
type PageRecord struct {
	URL        string       `json:"url"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	Links      []LinkRecord `json:"links"`
	EntryPoint bool         `json:"entry_point,omitempty"`
	Importance string       `json:"importance,omitempty"` // A, B or C
}

// Page is a validated node of the link graph
type Page struct {
	URL        string
	Title      string
	Content    string
	EntryPoint bool
	Importance string
	External   []Link // links whose target is outside the page set
}

// Link is a directed link between two pages.
// Position is the index of the link within the source record.
type Link struct {
	Source   string
	Target   string
	Anchor   string
	Position int
}

type edgeKey struct {
	from, to int
}

// Graph is an immutable snapshot of the internal link structure.
// Pages are indexed in ascending URL order; every accessor returns copies.
type Graph struct {
	pages      []Page
	index      map[string]int
	links      []Link  // internal links sorted by source, target, anchor
	linksTo    [][]int // page index -> positions in links
	out        [][]int // distinct targets, ascending
	in         [][]int // distinct sources, ascending
	edges      map[edgeKey]struct{}
	external   int
	snapshotID string
}

// Len returns the number of pages
func (g *Graph) Len() int {
	return len(g.pages)
}

// Page returns a copy of the page at index i
func (g *Graph) Page(i int) Page {
	p := g.pages[i]
	p.External = slices.Clone(p.External)
	return p
}

// URL returns the normalized URL of the page at index i
func (g *Graph) URL(i int) string {
	return g.pages[i].URL
}

// Title returns the title of the page at index i
func (g *Graph) Title(i int) string {
	return g.pages[i].Title
}

// Content returns the raw content of the page at index i
func (g *Graph) Content(i int) string {
	return g.pages[i].Content
}

// Index looks up a page by normalized URL
func (g *Graph) Index(url string) (int, bool) {
	i, ok := g.index[url]
	return i, ok
}

// Links returns a copy of all internal links
func (g *Graph) Links() []Link {
	return slices.Clone(g.links)
}

// LinksTo returns the internal links pointing at page i
func (g *Graph) LinksTo(i int) []Link {
	result := make([]Link, 0, len(g.linksTo[i]))
	for _, pos := range g.linksTo[i] {
		result = append(result, g.links[pos])
	}
	return result
}

// LinkCount returns the number of internal edges
func (g *Graph) LinkCount() int {
	return len(g.links)
}

// ExternalLinkCount returns the number of external or unresolved links retained on pages
func (g *Graph) ExternalLinkCount() int {
	return g.external
}

// Out returns the distinct internal targets of page i in ascending index order
func (g *Graph) Out(i int) []int {
	return slices.Clone(g.out[i])
}

// In returns the distinct internal sources linking to page i in ascending index order
func (g *Graph) In(i int) []int {
	return slices.Clone(g.in[i])
}

// OutDegree returns the number of distinct internal targets of page i
func (g *Graph) OutDegree(i int) int {
	return len(g.out[i])
}

// InDegree returns the number of distinct internal sources of page i
func (g *Graph) InDegree(i int) int {
	return len(g.in[i])
}

// HasLink reports whether an internal link from -> to exists
func (g *Graph) HasLink(from, to int) bool {
	_, ok := g.edges[edgeKey{from, to}]
	return ok
}

// SnapshotID fingerprints the page and edge set this graph was built from
func (g *Graph) SnapshotID() string {
	return g.snapshotID
}
