package opportunity

import (
	"sort"

	"github.com/alvmarrod/link-weaver/internal/graphmetrics"
	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/alvmarrod/link-weaver/internal/similarity"
	"github.com/sirupsen/logrus"
)

// Rationale tags attached to opportunities
const (
	TagHighSimilarity     = "high similarity"
	TagModerateSimilarity = "moderate similarity"
	TagLowAuthority       = "low target authority"
	TagOrphanTarget       = "orphan target"
	TagDeepTarget         = "deep target"
	TagUnreachableTarget  = "unreachable target"
	TagPriorityTarget     = "priority target"
	TagRepeatedAnchor     = "repeated anchor"
)

// Weights of the composite score; they are expected to sum to 1
type Weights struct {
	Similarity float64 `json:"similarity"`
	Authority  float64 `json:"authority"`
	Anchor     float64 `json:"anchor"`
}

// Config holds the detector parameters
type Config struct {
	Weights             Weights
	MaxPerSource        int
	AnchorReuseLimit    int     // sources allowed per (target, anchor) before the penalty applies
	AnchorPenaltyFactor float64 // anchor diversity value of a saturated anchor
	AnchorMaxWords      int
	HighSimilarity      float64 // similarity at or above this is tagged high
	DeepPageDepth       int     // targets deeper than this are tagged deep
}

// DefaultConfig returns the detector defaults
func DefaultConfig() Config {
	return Config{
		Weights:             Weights{Similarity: 0.6, Authority: 0.25, Anchor: 0.15},
		MaxPerSource:        5,
		AnchorReuseLimit:    3,
		AnchorPenaltyFactor: 0.25,
		AnchorMaxWords:      3,
		HighSimilarity:      0.5,
		DeepPageDepth:       3,
	}
}

// Opportunity is a proposed internal link that does not exist yet
type Opportunity struct {
	Source          string   `json:"source_url"`
	Target          string   `json:"target_url"`
	Anchor          string   `json:"suggested_anchor"`
	Score           float64  `json:"score"`
	Similarity      float64  `json:"similarity"`
	TargetAuthority float64  `json:"target_authority"`
	Tags            []string `json:"rationale"`
}

// Detector ranks linking opportunities from similarity, authority and link absence
type Detector struct {
	cfg Config
	log logrus.FieldLogger
}

// NewDetector creates a detector, filling unset limits with defaults
func NewDetector(cfg Config, log logrus.FieldLogger) *Detector {
	def := DefaultConfig()
	if cfg.MaxPerSource <= 0 {
		cfg.MaxPerSource = def.MaxPerSource
	}
	if cfg.AnchorReuseLimit <= 0 {
		cfg.AnchorReuseLimit = def.AnchorReuseLimit
	}
	if cfg.AnchorMaxWords <= 0 {
		cfg.AnchorMaxWords = def.AnchorMaxWords
	}
	if cfg.HighSimilarity <= 0 {
		cfg.HighSimilarity = def.HighSimilarity
	}
	if cfg.DeepPageDepth <= 0 {
		cfg.DeepPageDepth = def.DeepPageDepth
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Detector{cfg: cfg, log: log.WithField("component", "opportunity")}
}

type candidate struct {
	source, target int
	similarity     float64
	base           float64
}

// Detect turns retained similarity pairs into ranked opportunities.
//
// Candidates are ranked by base score (similarity and authority terms only) and the
// per-source cap keeps the best of each source. Anchors are then assigned to the kept
// candidates in the same order, so only opportunities that reach the result count
// towards anchor reuse. The result is totally ordered by score desc, target authority
// asc, source URL, target URL.
func (d *Detector) Detect(g *linkgraph.Graph, m *graphmetrics.Metrics, idx *similarity.Index) []Opportunity {
	w := d.cfg.Weights
	n := g.Len()

	var candidates []candidate
	for _, p := range idx.Pairs() {
		a, okA := g.Index(p.A)
		b, okB := g.Index(p.B)
		if !okA || !okB {
			d.log.Debugf("Similarity pair %s / %s is not in the graph, skipped", p.A, p.B)
			continue
		}
		for _, dir := range [2][2]int{{a, b}, {b, a}} {
			src, tgt := dir[0], dir[1]
			if src == tgt || g.HasLink(src, tgt) {
				continue
			}
			candidates = append(candidates, candidate{
				source:     src,
				target:     tgt,
				similarity: p.Score,
				base:       w.Similarity*p.Score + w.Authority*(1-m.Authority(tgt)),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.base != cj.base {
			return ci.base > cj.base
		}
		ai, aj := m.Authority(ci.target), m.Authority(cj.target)
		if ai != aj {
			return ai < aj
		}
		if ci.source != cj.source {
			return g.URL(ci.source) < g.URL(cj.source)
		}
		return g.URL(ci.target) < g.URL(cj.target)
	})

	variants := make(map[int][]string)
	usage := make(map[int]map[string]int)
	perSource := make(map[int]int)
	result := make([]Opportunity, 0, len(candidates))
	capped, penalized := 0, 0

	for _, c := range candidates {
		if perSource[c.source] >= d.cfg.MaxPerSource {
			capped++
			continue
		}
		perSource[c.source]++

		anchors, ok := variants[c.target]
		if !ok {
			anchors = anchorVariants(g.Title(c.target), g.URL(c.target), d.cfg.AnchorMaxWords)
			variants[c.target] = anchors
			usage[c.target] = make(map[string]int)
		}

		anchor, repeated := "", false
		for _, a := range anchors {
			if usage[c.target][a] < d.cfg.AnchorReuseLimit {
				anchor = a
				break
			}
		}
		if anchor == "" {
			anchor, repeated = anchors[0], true
			penalized++
		}
		usage[c.target][anchor]++

		diversity := 1.0
		if repeated {
			diversity = d.cfg.AnchorPenaltyFactor
		}

		result = append(result, Opportunity{
			Source:          g.URL(c.source),
			Target:          g.URL(c.target),
			Anchor:          anchor,
			Score:           c.base + w.Anchor*diversity,
			Similarity:      c.similarity,
			TargetAuthority: m.Authority(c.target),
			Tags:            d.tags(g, m, c, n, repeated),
		})
	}

	sortOpportunities(result)

	d.log.Infof("Opportunities detected: %d kept from %d candidates (%d over per-source cap, %d repeated anchors)",
		len(result), len(candidates), capped, penalized)

	return result
}

func (d *Detector) tags(g *linkgraph.Graph, m *graphmetrics.Metrics, c candidate, n int, repeated bool) []string {
	var tags []string
	if c.similarity >= d.cfg.HighSimilarity {
		tags = append(tags, TagHighSimilarity)
	} else {
		tags = append(tags, TagModerateSimilarity)
	}

	target := m.Pages[c.target]
	if target.Authority < 1/float64(n) {
		tags = append(tags, TagLowAuthority)
	}
	if target.Orphan {
		tags = append(tags, TagOrphanTarget)
	}
	switch {
	case target.Depth == graphmetrics.Unreachable:
		tags = append(tags, TagUnreachableTarget)
	case target.Depth > d.cfg.DeepPageDepth:
		tags = append(tags, TagDeepTarget)
	}
	if imp := g.Page(c.target).Importance; imp == "A" || imp == "B" {
		tags = append(tags, TagPriorityTarget)
	}
	if repeated {
		tags = append(tags, TagRepeatedAnchor)
	}
	return tags
}

// sortOpportunities applies the total ranking order
func sortOpportunities(opps []Opportunity) {
	sort.Slice(opps, func(i, j int) bool {
		oi, oj := opps[i], opps[j]
		if oi.Score != oj.Score {
			return oi.Score > oj.Score
		}
		if oi.TargetAuthority != oj.TargetAuthority {
			return oi.TargetAuthority < oj.TargetAuthority
		}
		if oi.Source != oj.Source {
			return oi.Source < oj.Source
		}
		return oi.Target < oj.Target
	})
}
