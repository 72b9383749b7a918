package opportunity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alvmarrod/link-weaver/internal/linkgraph"
	"github.com/alvmarrod/link-weaver/internal/similarity"
)

const (
	longAnchorWords = 6
	maxAnchorLen    = 60
)

// Words that make an anchor vague without adding topical meaning
var genericWords = map[string]bool{
	"software": true,
	"solution": true,
	"platform": true,
	"tool":     true,
	"system":   true,
	"for":      true,
	"and":      true,
	"with":     true,
	"the":      true,
	"a":        true,
	"an":       true,
}

// titleWords folds a title into lower-case words, keeping letters and digits only
func titleWords(title string) []string {
	return strings.FieldsFunc(similarity.Fold(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// primaryKeyword keeps the first maxWords meaningful, distinct words of a title
func primaryKeyword(title string, maxWords int) string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range titleWords(title) {
		if genericWords[w] || utf8.RuneCountInString(w) <= 2 || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
		if len(words) == maxWords {
			break
		}
	}
	return strings.Join(words, " ")
}

// titlePhrase keeps up to longAnchorWords distinct words, cut at a word boundary
func titlePhrase(title string) string {
	seen := make(map[string]bool)
	var b strings.Builder
	count := 0
	for _, w := range titleWords(title) {
		if seen[w] {
			continue
		}
		seen[w] = true
		if b.Len() > 0 && b.Len()+1+len(w) > maxAnchorLen {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		count++
		if count == longAnchorWords {
			break
		}
	}
	phrase := b.String()
	if len(phrase) > maxAnchorLen {
		cut := maxAnchorLen
		for cut > 0 && !utf8.RuneStart(phrase[cut]) {
			cut--
		}
		phrase = phrase[:cut]
	}
	return phrase
}

// anchorVariants lists candidate anchors for a target, best first, without duplicates.
// It never returns an empty list.
func anchorVariants(title, targetURL string, maxWords int) []string {
	candidates := []string{
		primaryKeyword(title, maxWords),
		titlePhrase(title),
		linkgraph.SlugPhrase(targetURL),
	}

	var variants []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		variants = append(variants, c)
	}

	if len(variants) == 0 {
		variants = append(variants, linkgraph.Host(targetURL))
	}
	return variants
}
