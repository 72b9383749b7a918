package graphmetrics

import (
	"math"
	"sort"

	"github.com/alvmarrod/link-weaver/internal/diagnostic"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/sirupsen/logrus"
)

// Unreachable is the depth of pages no entry point can reach
const Unreachable = -1

// iterationCeiling bounds propagation even when a custom policy never stops
const iterationCeiling = 10000

// Config holds the metrics engine parameters
type Config struct {
	Damping     float64
	EntryPoints []string // normalized URLs; empty means auto-detect
	Policy      ConvergencePolicy
}

// DefaultConfig returns damping 0.85 with the default convergence policy
func DefaultConfig() Config {
	return Config{Damping: 0.85, Policy: DefaultPolicy()}
}

// PageMetrics holds the per-page results, indexed like the graph
type PageMetrics struct {
	Depth            int
	Inbound          int
	Outbound         int
	Authority        float64
	Orphan           bool // zero inbound internal links
	OrphanedByDepth  bool // unreachable from every entry point
	IsEntryPoint     bool
	InboundLinkCount int // inbound edges including distinct anchors
}

// Metrics is the result of one Compute call
type Metrics struct {
	Pages       []PageMetrics
	EntryPoints []int
	Converged   bool
	Iterations  int
	FinalDelta  float64
}

// Authority returns the authority of page i
func (m *Metrics) Authority(i int) float64 {
	return m.Pages[i].Authority
}

// Engine computes depth, degree, orphan and authority metrics
type Engine struct {
	cfg   Config
	log   logrus.FieldLogger
	diags *diagnostic.Collector
}

// NewEngine creates a metrics engine, filling zero-valued config fields with defaults
func NewEngine(cfg Config, log logrus.FieldLogger, diags *diagnostic.Collector) *Engine {
	if cfg.Damping <= 0 || cfg.Damping >= 1 {
		cfg.Damping = DefaultConfig().Damping
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		cfg:   cfg,
		log:   log.WithField("component", "graphmetrics"),
		diags: diags,
	}
}

// Compute runs every metric over g. It never fails: a non-converged
// authority vector is still returned, flagged with Converged=false.
func (e *Engine) Compute(g *linkgraph.Graph) *Metrics {
	n := g.Len()
	m := &Metrics{Pages: make([]PageMetrics, n)}

	for i := 0; i < n; i++ {
		pm := &m.Pages[i]
		pm.Inbound = g.InDegree(i)
		pm.Outbound = g.OutDegree(i)
		pm.Orphan = pm.Inbound == 0
		pm.InboundLinkCount = len(g.LinksTo(i))
	}

	m.EntryPoints = e.resolveEntryPoints(g)
	for _, ep := range m.EntryPoints {
		m.Pages[ep].IsEntryPoint = true
	}

	depths := Depths(g, m.EntryPoints)
	for i, d := range depths {
		m.Pages[i].Depth = d
		m.Pages[i].OrphanedByDepth = d == Unreachable
	}

	scores, iterations, delta, converged := e.authority(g)
	for i, s := range scores {
		m.Pages[i].Authority = s
	}
	m.Iterations = iterations
	m.FinalDelta = delta
	m.Converged = converged

	if !converged {
		w := &diagnostic.ConvergenceWarning{Iterations: iterations, Delta: delta}
		e.log.Warn(w.Error())
		e.diags.Record(w)
	}

	e.log.Infof("Metrics computed: %d pages, %d entry points, authority converged=%t after %d iterations",
		n, len(m.EntryPoints), converged, iterations)

	return m
}

// resolveEntryPoints picks configured URLs, else flagged records, else roots,
// else the first page so that a fully cyclic site still gets depths.
func (e *Engine) resolveEntryPoints(g *linkgraph.Graph) []int {
	var result []int
	seen := make(map[int]bool)

	for _, u := range e.cfg.EntryPoints {
		normalized, err := linkgraph.NormalizeURL(u)
		if err != nil {
			e.log.Warnf("Ignoring invalid entry point %q: %v", u, err)
			continue
		}
		i, ok := g.Index(normalized)
		if !ok {
			e.log.Warnf("Entry point %s is not in the page set", normalized)
			continue
		}
		if !seen[i] {
			seen[i] = true
			result = append(result, i)
		}
	}
	if len(result) > 0 {
		sort.Ints(result)
		return result
	}

	for i := 0; i < g.Len(); i++ {
		if g.Page(i).EntryPoint {
			result = append(result, i)
		}
	}
	if len(result) > 0 {
		return result
	}

	for i := 0; i < g.Len(); i++ {
		if g.InDegree(i) == 0 {
			result = append(result, i)
		}
	}
	if len(result) > 0 {
		return result
	}

	e.log.Warnf("No entry points or root pages found, using %s", g.URL(0))
	return []int{0}
}

// Depths runs a multi-source breadth-first search from entries.
// Pages that cannot be reached get Unreachable.
func Depths(g *linkgraph.Graph, entries []int) []int {
	depth := make([]int, g.Len())
	for i := range depth {
		depth[i] = Unreachable
	}

	queue := make([]int, 0, g.Len())
	for _, ep := range entries {
		if depth[ep] == Unreachable {
			depth[ep] = 0
			queue = append(queue, ep)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.Out(current) {
			if depth[next] == Unreachable {
				depth[next] = depth[current] + 1
				queue = append(queue, next)
			}
		}
	}
	return depth
}

// authority propagates scores in fixed index order so results are bit-for-bit reproducible
func (e *Engine) authority(g *linkgraph.Graph) ([]float64, int, float64, bool) {
	n := g.Len()
	if n == 0 {
		return nil, 0, 0, true
	}

	d := e.cfg.Damping
	nf := float64(n)

	out := make([][]int, n)
	for i := 0; i < n; i++ {
		out[i] = g.Out(i)
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / nf
	}
	next := make([]float64, n)

	var (
		iteration int
		delta     float64
	)
	for {
		iteration++

		// Sinks hand their damped mass to every page
		var sinkMass float64
		for i := 0; i < n; i++ {
			if len(out[i]) == 0 {
				sinkMass += scores[i]
			}
		}
		base := (1-d)/nf + d*sinkMass/nf
		for i := range next {
			next[i] = base
		}

		for i := 0; i < n; i++ {
			if len(out[i]) == 0 {
				continue
			}
			share := d * scores[i] / float64(len(out[i]))
			for _, j := range out[i] {
				next[j] += share
			}
		}

		// Stochastic normalization absorbs floating point drift
		var total float64
		for _, s := range next {
			total += s
		}
		delta = 0
		for i := range next {
			next[i] /= total
			delta += math.Abs(next[i] - scores[i])
		}

		scores, next = next, scores

		if stop, converged := e.cfg.Policy.Check(iteration, delta); stop {
			return scores, iteration, delta, converged
		}
		if iteration >= iterationCeiling {
			return scores, iteration, delta, false
		}
	}
}
