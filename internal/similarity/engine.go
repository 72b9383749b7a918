package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config holds the similarity engine parameters
type Config struct {
	Threshold float64  // pairs below this score are discarded
	TopK      int      // blocking terms per page
	UseIDF    bool     // weight term frequencies by inverse document frequency
	StopWords []string // nil means DefaultStopWords
	Workers   int      // parallel pair evaluators; 0 means GOMAXPROCS
}

// DefaultConfig returns threshold 0.2, top-10 blocking and TF-IDF weighting
func DefaultConfig() Config {
	return Config{
		Threshold: 0.2,
		TopK:      10,
		UseIDF:    true,
		StopWords: DefaultStopWords(),
	}
}

// Pair is a retained similarity between two pages; A sorts before B
type Pair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// Index is the sparse set of retained pairs
type Index struct {
	pairs      []Pair
	lookup     map[[2]string]float64
	candidates int
}

// NewIndex builds an index from pairs, canonicalizing their order
func NewIndex(pairs []Pair) *Index {
	idx := &Index{
		pairs:  make([]Pair, 0, len(pairs)),
		lookup: make(map[[2]string]float64, len(pairs)),
	}
	for _, p := range pairs {
		if p.A == p.B {
			continue
		}
		if p.B < p.A {
			p.A, p.B = p.B, p.A
		}
		key := [2]string{p.A, p.B}
		if _, dup := idx.lookup[key]; dup {
			continue
		}
		idx.lookup[key] = p.Score
		idx.pairs = append(idx.pairs, p)
	}
	sort.Slice(idx.pairs, func(i, j int) bool {
		if idx.pairs[i].A != idx.pairs[j].A {
			return idx.pairs[i].A < idx.pairs[j].A
		}
		return idx.pairs[i].B < idx.pairs[j].B
	})
	idx.candidates = len(idx.pairs)
	return idx
}

// Pairs returns a copy of the retained pairs in canonical order
func (x *Index) Pairs() []Pair {
	out := make([]Pair, len(x.pairs))
	copy(out, x.pairs)
	return out
}

// Len returns the number of retained pairs
func (x *Index) Len() int {
	return len(x.pairs)
}

// Score returns the similarity of a and b in either order, 0 when not retained
func (x *Index) Score(a, b string) float64 {
	if b < a {
		a, b = b, a
	}
	return x.lookup[[2]string{a, b}]
}

// CandidatesEvaluated returns how many pairs survived blocking and were scored exactly
func (x *Index) CandidatesEvaluated() int {
	return x.candidates
}

// Engine computes pairwise page similarity bounded by top-k blocking
type Engine struct {
	cfg Config
	tok *Tokenizer
	log logrus.FieldLogger
}

// NewEngine creates a similarity engine
func NewEngine(cfg Config, log logrus.FieldLogger) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.StopWords == nil {
		cfg.StopWords = DefaultStopWords()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		cfg: cfg,
		tok: NewTokenizer(cfg.StopWords),
		log: log.WithField("component", "similarity"),
	}
}

// Corpus vectorizes g with this engine's tokenizer and weighting
func (e *Engine) Corpus(g *linkgraph.Graph) *Corpus {
	return BuildCorpus(g, e.tok, e.cfg.UseIDF, e.cfg.TopK)
}

// Compute returns every blocked candidate pair scoring at least the threshold.
// Candidate pairs are split into contiguous chunks, one per worker; each worker
// writes only its own result slice and the slices are concatenated in order.
func (e *Engine) Compute(ctx context.Context, g *linkgraph.Graph) (*Index, error) {
	corpus := e.Corpus(g)
	candidates := corpus.CandidatePairs()

	empty := 0
	for i := 0; i < corpus.Len(); i++ {
		if corpus.Empty(i) {
			empty++
		}
	}
	if empty > 0 {
		e.log.Infof("%d pages have no terms after tokenization and will not match anything", empty)
	}

	total := g.Len() * (g.Len() - 1) / 2
	e.log.Infof("Blocking kept %d of %d possible pairs (top-%d terms)", len(candidates), total, e.cfg.TopK)

	workers := e.cfg.Workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers == 0 {
		idx := NewIndex(nil)
		idx.candidates = 0
		return idx, nil
	}

	chunk := (len(candidates) + workers - 1) / workers
	results := make([][]Pair, workers)

	group, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(candidates) {
			break
		}
		end := min(start+chunk, len(candidates))

		group.Go(func() error {
			var local []Pair
			for k, pair := range candidates[start:end] {
				if k%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				score := corpus.Cosine(pair[0], pair[1])
				if score >= e.cfg.Threshold && score > 0 {
					local = append(local, Pair{A: g.URL(pair[0]), B: g.URL(pair[1]), Score: score})
				}
			}
			results[w] = local
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("similarity evaluation aborted: %w", err)
	}

	var merged []Pair
	for _, r := range results {
		merged = append(merged, r...)
	}

	idx := NewIndex(merged)
	idx.candidates = len(candidates)

	e.log.Infof("Similarity computed: %d pairs at or above %.2f", idx.Len(), e.cfg.Threshold)
	return idx, nil
}
