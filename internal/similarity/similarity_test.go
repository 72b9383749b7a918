package similarity

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func graphOf(t *testing.T, contents map[string]string) *linkgraph.Graph {
	t.Helper()
	var records []linkgraph.PageRecord
	for slug, content := range contents {
		records = append(records, linkgraph.PageRecord{URL: "https://site.test/" + slug, Content: content})
	}
	g, err := linkgraph.NewBuilder(quietLogger(), nil).Build(records)
	require.NoError(t, err)
	return g
}

func url(slug string) string {
	return "https://site.test/" + slug
}

func TestTokenizer(t *testing.T) {
	tok := NewTokenizer(DefaultStopWords())

	tokens := tok.Tokens("The Café's  internal-linking guide, for 2024: SEO & Links! x")
	assert.Equal(t, []string{"cafe", "internal", "linking", "guide", "seo", "links"}, tokens)

	assert.Empty(t, tok.Tokens(""))
	assert.Empty(t, tok.Tokens("the and of 123 !!"))

	custom := NewTokenizer([]string{"Guide"})
	assert.Equal(t, []string{"the", "best"}, custom.Tokens("the guide best"))
}

func TestSimilarityIsSymmetricAndBounded(t *testing.T) {
	g := graphOf(t, map[string]string{
		"a": "internal linking strategy for content hubs and topic clusters",
		"b": "topic clusters improve internal linking across content hubs",
		"c": "recipe for sourdough bread with a long fermentation",
		"d": "",
	})
	engine := NewEngine(DefaultConfig(), quietLogger())
	corpus := engine.Corpus(g)

	for i := 0; i < g.Len(); i++ {
		for j := 0; j < g.Len(); j++ {
			assert.Equal(t, corpus.Cosine(i, j), corpus.Cosine(j, i))
			assert.GreaterOrEqual(t, corpus.Cosine(i, j), 0.0)
			assert.LessOrEqual(t, corpus.Cosine(i, j), 1.0)
		}
	}

	idx, err := engine.Compute(context.Background(), g)
	require.NoError(t, err)

	assert.Greater(t, idx.Score(url("a"), url("b")), 0.2)
	assert.Equal(t, idx.Score(url("a"), url("b")), idx.Score(url("b"), url("a")))
	assert.Zero(t, idx.Score(url("a"), url("c")))

	for _, p := range idx.Pairs() {
		assert.Less(t, p.A, p.B)
		assert.GreaterOrEqual(t, p.Score, 0.2)
	}
}

func TestEmptyContentNeverMatches(t *testing.T) {
	g := graphOf(t, map[string]string{
		"a": "the of and",
		"b": "",
		"c": "the of and",
	})
	engine := NewEngine(DefaultConfig(), quietLogger())
	corpus := engine.Corpus(g)
	for i := 0; i < g.Len(); i++ {
		assert.True(t, corpus.Empty(i))
		assert.Zero(t, corpus.Cosine(0, i))
	}

	idx, err := engine.Compute(context.Background(), g)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
}

func TestTitleAloneNeverMatches(t *testing.T) {
	title := "Sourdough Bread Fermentation Guide"
	g, err := linkgraph.NewBuilder(quietLogger(), nil).Build([]linkgraph.PageRecord{
		{URL: url("a"), Title: title, Content: ""},
		{URL: url("b"), Title: title, Content: "   "},
		{URL: url("c"), Title: title, Content: "sourdough starter feeding schedule"},
	})
	require.NoError(t, err)

	engine := NewEngine(DefaultConfig(), quietLogger())
	corpus := engine.Corpus(g)
	assert.True(t, corpus.Empty(0))
	assert.True(t, corpus.Empty(1))
	assert.False(t, corpus.Empty(2))

	idx, err := engine.Compute(context.Background(), g)
	require.NoError(t, err)
	assert.Zero(t, idx.Len())
	assert.Zero(t, idx.Score(url("a"), url("b")))
	assert.Zero(t, idx.Score(url("a"), url("c")))
}

// Two pages sharing many low-frequency terms but with disjoint top-k terms.
// Exact cosine is well above the threshold, yet blocking never evaluates the pair.
func TestBlockingAcceptsFalseNegative(t *testing.T) {
	var shared []string
	for i := 0; i < 20; i++ {
		shared = append(shared, fmt.Sprintf("shared%02d", i))
	}
	tail := strings.Join(shared, " ")
	g := graphOf(t, map[string]string{
		"e": "alpha alpha alpha beta beta beta " + tail,
		"f": "gamma gamma gamma delta delta delta " + tail,
	})

	cfg := DefaultConfig()
	cfg.TopK = 2
	cfg.UseIDF = false
	engine := NewEngine(cfg, quietLogger())

	corpus := engine.Corpus(g)
	assert.Equal(t, []string{"alpha", "beta"}, corpus.TopTerms(0))
	assert.Equal(t, []string{"delta", "gamma"}, corpus.TopTerms(1))

	exact := corpus.Cosine(0, 1)
	assert.InDelta(t, 20.0/38.0, exact, 1e-12)
	assert.Greater(t, exact, cfg.Threshold)

	assert.Empty(t, corpus.CandidatePairs())
	idx, err := engine.Compute(context.Background(), g)
	require.NoError(t, err)
	assert.Zero(t, idx.Score(url("e"), url("f")), "pair with no shared top-k term is skipped")

	// A wider block recovers it
	cfg.TopK = 10
	idx, err = NewEngine(cfg, quietLogger()).Compute(context.Background(), g)
	require.NoError(t, err)
	assert.InDelta(t, exact, idx.Score(url("e"), url("f")), 1e-12)
}

func TestComputeIsDeterministicAcrossWorkerCounts(t *testing.T) {
	defer goleak.VerifyNone(t)

	contents := make(map[string]string)
	topics := []string{"linking", "authority", "crawl", "anchor", "orphan", "sitemap"}
	for i := 0; i < 30; i++ {
		contents[fmt.Sprintf("p%02d", i)] = fmt.Sprintf("%s %s %s guide %s",
			topics[i%len(topics)], topics[(i+1)%len(topics)], topics[(i*2)%len(topics)], topics[i%4])
	}
	g := graphOf(t, contents)

	cfg := DefaultConfig()
	cfg.Workers = 1
	single, err := NewEngine(cfg, quietLogger()).Compute(context.Background(), g)
	require.NoError(t, err)

	cfg.Workers = 7
	parallel, err := NewEngine(cfg, quietLogger()).Compute(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, single.Pairs(), parallel.Pairs())
	assert.Equal(t, single.CandidatesEvaluated(), parallel.CandidatesEvaluated())
}

func TestComputeHonoursCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := graphOf(t, map[string]string{
		"a": "shared topic words",
		"b": "shared topic words",
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(DefaultConfig(), quietLogger()).Compute(ctx, g)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewIndexCanonicalizes(t *testing.T) {
	idx := NewIndex([]Pair{
		{A: "b", B: "a", Score: 0.5},
		{A: "a", B: "b", Score: 0.9},
		{A: "c", B: "c", Score: 1},
	})
	require.Equal(t, 1, idx.Len())
	assert.Equal(t, Pair{A: "a", B: "b", Score: 0.5}, idx.Pairs()[0])
	assert.Equal(t, 0.5, idx.Score("b", "a"))
}
