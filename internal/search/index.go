package search

import (
	"math"
	"sort"

	"github.com/wpnas/wpnas/internal/plugins"
)

type Field int

const (
	FieldName Field = iota
	FieldIdentifier
	FieldTags
	FieldDescription

	numFields
)

func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldIdentifier:
		return "identifier"
	case FieldTags:
		return "tags"
	case FieldDescription:
		return "description"
	default:
		return "unknown"
	}
}

type Options struct {
	Boost map[Field]float64
	// Fuzzy is the edit distance allowed per query term, as a fraction of
	// the term length. Zero disables fuzzy matching.
	Fuzzy  float64
	Prefix bool
}

func DefaultOptions() Options {
	return Options{
		Boost: map[Field]float64{
			FieldName:        5,
			FieldIdentifier:  3,
			FieldTags:        2,
			FieldDescription: 1,
		},
		Fuzzy:  0.2,
		Prefix: true,
	}
}

func (o Options) boost(f Field) float64 {
	if b, ok := o.Boost[f]; ok {
		return b
	}
	return 1
}

type posting struct {
	doc   int
	field Field
	tf    int
}

// Index is an inverted index over a fixed set of records. It is never
// updated; a changed catalog gets a new Index.
type Index struct {
	opts     Options
	postings map[string][]posting
	terms    []string
	docs     int
	fieldLen [][numFields]int
	avgLen   [numFields]float64
}

// NewIndex indexes name, plugin file, tags and description of each record.
// Doc numbers in hits are positions in records.
func NewIndex(records []plugins.Record, opts Options) *Index {
	idx := &Index{
		opts:     opts,
		postings: make(map[string][]posting),
		docs:     len(records),
		fieldLen: make([][numFields]int, len(records)),
	}

	var totals [numFields]int
	for doc, rec := range records {
		fields := [numFields][]string{
			FieldName:        analyze(rec.Name),
			FieldIdentifier:  analyze(rec.PluginFile + " " + rec.Slug),
			FieldTags:        analyzeAll(rec.Tags),
			FieldDescription: analyze(StripHTML(rec.Description)),
		}

		for f, tokens := range fields {
			idx.fieldLen[doc][f] = len(tokens)
			totals[f] += len(tokens)

			tf := make(map[string]int, len(tokens))
			for _, tok := range tokens {
				tf[tok]++
			}
			for term, n := range tf {
				idx.postings[term] = append(idx.postings[term], posting{doc: doc, field: Field(f), tf: n})
			}
		}
	}

	if idx.docs > 0 {
		for f := range totals {
			idx.avgLen[f] = float64(totals[f]) / float64(idx.docs)
		}
	}

	idx.terms = make([]string, 0, len(idx.postings))
	for term := range idx.postings {
		idx.terms = append(idx.terms, term)
	}
	sort.Strings(idx.terms)
	return idx
}

func analyzeAll(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, analyze(v)...)
	}
	return out
}

func (idx *Index) Len() int { return idx.docs }

// Terms reports the number of distinct indexed terms.
func (idx *Index) Terms() int { return len(idx.terms) }

const (
	bm25K = 1.2
	bm25B = 0.7
	bm25D = 0.5
)

// bm25 scores one posting. df counts the docs holding the term in that field.
func (idx *Index) bm25(p posting, df int) float64 {
	n := float64(idx.docs)
	idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))

	avg := idx.avgLen[p.field]
	norm := 1.0
	if avg > 0 {
		norm = 1 - bm25B + bm25B*float64(idx.fieldLen[p.doc][p.field])/avg
	}
	tf := float64(p.tf)
	return idf * (bm25D + tf*(bm25K+1)/(tf+bm25K*norm))
}
