package search

import (
	"html"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripPolicy = bluemonday.StrictPolicy()

// StripHTML removes all markup from s and decodes entities. Catalog
// descriptions arrive as rendered HTML.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// fold lowercases s and strips diacritics, so "Café" and "cafe" index alike.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokenize splits s into folded terms on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Stem reduces an English term to its stem ("running" -> "run"). Stop words
// are stemmed too; nothing is discarded.
func Stem(term string) string {
	if term == "" {
		return term
	}
	return english.Stem(term, true)
}

func analyze(s string) []string {
	tokens := Tokenize(s)
	for i, tok := range tokens {
		tokens[i] = Stem(tok)
	}
	return tokens
}
