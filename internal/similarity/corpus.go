package similarity

import (
	"math"
	"sort"

	"github.com/alvmarrod/link-weaver/internal/linkgraph"
)

type termWeight struct {
	term   int
	weight float64
}

type vector struct {
	terms []termWeight // ascending term id
	norm  float64
	top   []int // top-k term ids by weight
}

// Corpus holds one weighted term vector per graph page.
// It is built once per run and only read afterwards.
type Corpus struct {
	vocab   []string // term id -> term, ascending
	vectors []vector
}

// BuildCorpus tokenizes the title and content of every page of g into TF (or TF-IDF)
// vectors and records each page's topK highest-weight terms for blocking.
func BuildCorpus(g *linkgraph.Graph, tok *Tokenizer, useIDF bool, topK int) *Corpus {
	n := g.Len()
	counts := make([]map[string]int, n)
	df := make(map[string]int)

	for i := 0; i < n; i++ {
		tf := make(map[string]int)
		// A page without usable content has an empty vector; its title alone never matches
		content := tok.Tokens(g.Content(i))
		if len(content) > 0 {
			for _, token := range append(tok.Tokens(g.Title(i)), content...) {
				tf[token]++
			}
		}
		for term := range tf {
			df[term]++
		}
		counts[i] = tf
	}

	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)
	ids := make(map[string]int, len(vocab))
	for id, term := range vocab {
		ids[term] = id
	}

	c := &Corpus{vocab: vocab, vectors: make([]vector, n)}
	for i, tf := range counts {
		terms := make([]termWeight, 0, len(tf))
		for term, count := range tf {
			w := float64(count)
			if useIDF {
				w *= math.Log(float64(1+n)/float64(1+df[term])) + 1
			}
			terms = append(terms, termWeight{term: ids[term], weight: w})
		}
		sort.Slice(terms, func(a, b int) bool { return terms[a].term < terms[b].term })

		var sq float64
		for _, tw := range terms {
			sq += tw.weight * tw.weight
		}

		c.vectors[i] = vector{terms: terms, norm: math.Sqrt(sq), top: topTerms(terms, topK)}
	}
	return c
}

// topTerms picks the k highest weights, ties broken by term order
func topTerms(terms []termWeight, k int) []int {
	ranked := make([]termWeight, len(terms))
	copy(ranked, terms)
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].weight != ranked[b].weight {
			return ranked[a].weight > ranked[b].weight
		}
		return ranked[a].term < ranked[b].term
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	top := make([]int, len(ranked))
	for i, tw := range ranked {
		top[i] = tw.term
	}
	sort.Ints(top)
	return top
}

// Len returns the number of page vectors
func (c *Corpus) Len() int {
	return len(c.vectors)
}

// Empty reports whether page i has no terms after tokenization
func (c *Corpus) Empty(i int) bool {
	return len(c.vectors[i].terms) == 0
}

// TopTerms returns page i's blocking terms in term order
func (c *Corpus) TopTerms(i int) []string {
	out := make([]string, len(c.vectors[i].top))
	for k, id := range c.vectors[i].top {
		out[k] = c.vocab[id]
	}
	return out
}

// Cosine computes the exact cosine similarity of pages i and j.
// Terms are merged in id order, which makes Cosine(i, j) == Cosine(j, i) exactly.
func (c *Corpus) Cosine(i, j int) float64 {
	a, b := c.vectors[i], c.vectors[j]
	if a.norm == 0 || b.norm == 0 {
		return 0
	}

	var dot float64
	x, y := 0, 0
	for x < len(a.terms) && y < len(b.terms) {
		switch {
		case a.terms[x].term == b.terms[y].term:
			dot += a.terms[x].weight * b.terms[y].weight
			x++
			y++
		case a.terms[x].term < b.terms[y].term:
			x++
		default:
			y++
		}
	}

	sim := dot / (a.norm * b.norm)
	if sim > 1 {
		sim = 1
	}
	return sim
}

// CandidatePairs returns every pair (i < j) whose top-k term sets intersect, ascending.
// Pairs outside this set are assumed to fall below the threshold; that assumption
// can miss a truly similar pair whose overlap lies only in low-weight terms.
func (c *Corpus) CandidatePairs() [][2]int {
	postings := make(map[int][]int)
	for i, v := range c.vectors {
		for _, term := range v.top {
			postings[term] = append(postings[term], i)
		}
	}

	seen := make(map[[2]int]struct{})
	for _, pages := range postings {
		for x := 0; x < len(pages); x++ {
			for y := x + 1; y < len(pages); y++ {
				seen[[2]int{pages[x], pages[y]}] = struct{}{}
			}
		}
	}

	pairs := make([][2]int, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a][0] != pairs[b][0] {
			return pairs[a][0] < pairs[b][0]
		}
		return pairs[a][1] < pairs[b][1]
	})
	return pairs
}
