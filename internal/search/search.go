package search

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Hit is one matching document. Doc is its position in the indexed records.
type Hit struct {
	Doc   int
	Score float64
}

const (
	prefixWeight = 0.375
	fuzzyWeight  = 0.45
)

// Search ranks documents against query. Each query term matches indexed
// terms exactly, by prefix, or within the fuzzy edit distance; relaxed
// matches count for less. Hits are ordered by score, then by doc. An empty
// query yields no hits.
func (idx *Index) Search(query string) []Hit {
	tokens := Tokenize(query)
	if len(tokens) == 0 || idx.docs == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for _, tok := range tokens {
		matches := idx.expand(tok)
		// fixed order keeps float sums, and so ties, reproducible
		terms := make([]string, 0, len(matches))
		for term := range matches {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			idx.accumulate(scores, term, matches[term])
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		if score > 0 {
			hits = append(hits, Hit{Doc: doc, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Doc < hits[j].Doc
	})
	return hits
}

// expand maps one query token to the indexed terms it matches and the weight
// each match carries. The best weight wins when a term matches several ways.
func (idx *Index) expand(tok string) map[string]float64 {
	stem := Stem(tok)
	matches := make(map[string]float64)
	put := func(term string, w float64) {
		if w > matches[term] {
			matches[term] = w
		}
	}

	if _, ok := idx.postings[stem]; ok {
		put(stem, 1)
	}

	if idx.opts.Prefix {
		for _, q := range uniq(stem, tok) {
			idx.eachPrefixed(q, func(term string) {
				if term == q {
					return
				}
				ql := float64(utf8.RuneCountInString(q))
				dist := float64(utf8.RuneCountInString(term)) - ql
				put(term, prefixWeight*ql/(ql+0.3*dist))
			})
		}
	}

	if maxDist := maxEdits(stem, idx.opts.Fuzzy); maxDist > 0 {
		ql := utf8.RuneCountInString(stem)
		for _, term := range idx.terms {
			tl := utf8.RuneCountInString(term)
			if abs(tl-ql) > maxDist || term == stem {
				continue
			}
			d := levenshtein.ComputeDistance(stem, term)
			if d <= maxDist {
				put(term, fuzzyWeight*float64(ql)/float64(ql+d))
			}
		}
	}

	return matches
}

func (idx *Index) eachPrefixed(prefix string, fn func(string)) {
	i := sort.SearchStrings(idx.terms, prefix)
	for ; i < len(idx.terms) && strings.HasPrefix(idx.terms[i], prefix); i++ {
		fn(idx.terms[i])
	}
}

func (idx *Index) accumulate(scores map[int]float64, term string, weight float64) {
	postings := idx.postings[term]

	var df [numFields]int
	for _, p := range postings {
		df[p.field]++
	}
	for _, p := range postings {
		scores[p.doc] += idx.opts.boost(p.field) * weight * idx.bm25(p, df[p.field])
	}
}

// maxEdits is round(fuzzy * len(term)).
func maxEdits(term string, fuzzy float64) int {
	if fuzzy <= 0 {
		return 0
	}
	return int(math.Round(fuzzy * float64(utf8.RuneCountInString(term))))
}

func uniq(a, b string) []string {
	if a == b {
		return []string{a}
	}
	return []string{a, b}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
