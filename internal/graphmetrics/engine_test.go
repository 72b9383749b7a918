package graphmetrics

import (
	"io"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/diagnostic"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// page builds a record on site.test linking to the given slugs
func page(slug string, targets ...string) linkgraph.PageRecord {
	rec := linkgraph.PageRecord{URL: "https://site.test/" + slug, Title: slug}
	for _, t := range targets {
		rec.Links = append(rec.Links, linkgraph.LinkRecord{Target: "/" + t, Anchor: t})
	}
	return rec
}

func buildGraph(t *testing.T, records ...linkgraph.PageRecord) *linkgraph.Graph {
	t.Helper()
	g, err := linkgraph.NewBuilder(quietLogger(), nil).Build(records)
	require.NoError(t, err)
	return g
}

func idx(t *testing.T, g *linkgraph.Graph, slug string) int {
	t.Helper()
	i, ok := g.Index("https://site.test/" + slug)
	require.True(t, ok, slug)
	return i
}

func sum(m *Metrics) float64 {
	var total float64
	for _, p := range m.Pages {
		total += p.Authority
	}
	return total
}

func TestChainScenario(t *testing.T) {
	g := buildGraph(t, page("a", "b"), page("b", "c"), page("c"))
	m := NewEngine(DefaultConfig(), quietLogger(), nil).Compute(g)

	a, b, c := idx(t, g, "a"), idx(t, g, "b"), idx(t, g, "c")

	assert.True(t, m.Pages[a].Orphan)
	assert.False(t, m.Pages[b].Orphan)
	assert.False(t, m.Pages[c].Orphan, "c has an inbound link from b")

	assert.Equal(t, []int{a}, m.EntryPoints)
	assert.Equal(t, 0, m.Pages[a].Depth)
	assert.Equal(t, 1, m.Pages[b].Depth)
	assert.Equal(t, 2, m.Pages[c].Depth)

	assert.True(t, m.Converged)
	assert.Greater(t, m.Authority(c), m.Authority(a))
	assert.Greater(t, m.Authority(b), m.Authority(a))
	assert.InDelta(t, 1.0, sum(m), 1e-9)
}

func TestSinkMassIsRedistributed(t *testing.T) {
	// d is a sink, a and b feed it
	g := buildGraph(t, page("a", "d"), page("b", "d"), page("d"))
	m := NewEngine(DefaultConfig(), quietLogger(), nil).Compute(g)

	assert.InDelta(t, 1.0, sum(m), 1e-9)
	for _, p := range m.Pages {
		assert.GreaterOrEqual(t, p.Authority, 0.0)
		assert.LessOrEqual(t, p.Authority, 1.0)
	}
	assert.Greater(t, m.Authority(idx(t, g, "d")), m.Authority(idx(t, g, "a")))
}

func TestOrphanIndependentOfDepth(t *testing.T) {
	// x is configured as entry point; y is unreachable but has an inbound link from z,
	// z is unreachable and has no inbound links
	g := buildGraph(t, page("x"), page("y"), page("z", "y"))
	cfg := DefaultConfig()
	cfg.EntryPoints = []string{"https://site.test/x"}
	m := NewEngine(cfg, quietLogger(), nil).Compute(g)

	x, y, z := idx(t, g, "x"), idx(t, g, "y"), idx(t, g, "z")
	assert.True(t, m.Pages[x].Orphan, "entry point with no inbound links is still an orphan")
	assert.False(t, m.Pages[y].Orphan)
	assert.True(t, m.Pages[y].OrphanedByDepth)
	assert.Equal(t, Unreachable, m.Pages[y].Depth)
	assert.True(t, m.Pages[z].Orphan)
	assert.True(t, m.Pages[z].OrphanedByDepth)
}

func TestEntryPointResolution(t *testing.T) {
	t.Run("flagged records", func(t *testing.T) {
		home := page("home", "a")
		home.EntryPoint = true
		g := buildGraph(t, home, page("a", "home"), page("lonely"))
		m := NewEngine(DefaultConfig(), quietLogger(), nil).Compute(g)
		assert.Equal(t, []int{idx(t, g, "home")}, m.EntryPoints)
		assert.Equal(t, Unreachable, m.Pages[idx(t, g, "lonely")].Depth)
	})

	t.Run("fully cyclic graph falls back to first page", func(t *testing.T) {
		g := buildGraph(t, page("a", "b"), page("b", "a"))
		m := NewEngine(DefaultConfig(), quietLogger(), nil).Compute(g)
		assert.Equal(t, []int{0}, m.EntryPoints)
		assert.Equal(t, 1, m.Pages[1].Depth)
	})

	t.Run("unknown configured entry point is ignored", func(t *testing.T) {
		g := buildGraph(t, page("a", "b"), page("b"))
		cfg := DefaultConfig()
		cfg.EntryPoints = []string{"https://elsewhere.test", "::bad"}
		m := NewEngine(cfg, quietLogger(), nil).Compute(g)
		assert.Equal(t, []int{idx(t, g, "a")}, m.EntryPoints)
	})
}

func TestNonConvergenceIsFlaggedNotFatal(t *testing.T) {
	g := buildGraph(t, page("a", "b"), page("b", "c"), page("c", "a", "b"))
	diags := diagnostic.NewCollector()
	cfg := DefaultConfig()
	cfg.Policy = EpsilonPolicy{Epsilon: 0, MaxIterations: 2}

	m := NewEngine(cfg, quietLogger(), diags).Compute(g)

	assert.False(t, m.Converged)
	assert.Equal(t, 2, m.Iterations)
	assert.InDelta(t, 1.0, sum(m), 1e-9)
	assert.Equal(t, 1, diags.CountByKind()[diagnostic.KindConvergence])
}

type countingPolicy struct {
	calls  int
	stopAt int
}

func (p *countingPolicy) Check(iteration int, _ float64) (bool, bool) {
	p.calls++
	return iteration >= p.stopAt, true
}

func TestInjectedPolicyControlsLoop(t *testing.T) {
	g := buildGraph(t, page("a", "b"), page("b"))
	policy := &countingPolicy{stopAt: 7}
	cfg := DefaultConfig()
	cfg.Policy = policy

	m := NewEngine(cfg, quietLogger(), nil).Compute(g)
	assert.Equal(t, 7, policy.calls)
	assert.Equal(t, 7, m.Iterations)
	assert.True(t, m.Converged)
}

func TestAuthorityIsReproducible(t *testing.T) {
	records := []linkgraph.PageRecord{
		page("a", "b", "c"), page("b", "c", "d"), page("c", "a"), page("d"), page("e", "a", "d"),
	}
	g := buildGraph(t, records...)
	first := NewEngine(DefaultConfig(), quietLogger(), nil).Compute(g)
	second := NewEngine(DefaultConfig(), quietLogger(), nil).Compute(g)

	require.Len(t, second.Pages, len(first.Pages))
	for i := range first.Pages {
		assert.Equal(t, first.Pages[i].Authority, second.Pages[i].Authority, "page %d", i)
	}
}

func TestEpsilonPolicy(t *testing.T) {
	p := EpsilonPolicy{Epsilon: 1e-6, MaxIterations: 3}

	stop, converged := p.Check(1, 1e-7)
	assert.True(t, stop)
	assert.True(t, converged)

	stop, _ = p.Check(2, 0.5)
	assert.False(t, stop)

	stop, converged = p.Check(3, 0.5)
	assert.True(t, stop)
	assert.False(t, converged)
}
