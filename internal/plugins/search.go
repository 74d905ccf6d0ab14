package plugins

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

type suggestSource struct {
	records []Record
	key     func(Record) string
}

func (s suggestSource) String(i int) string { return s.key(s.records[i]) }
func (s suggestSource) Len() int            { return len(s.records) }

// Suggest returns up to limit records whose slug or name fuzzily matches
// query, best first. It backs "did you mean" hints for unknown slugs.
func Suggest(query string, records []Record, limit int) []Record {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" || len(records) == 0 {
		return nil
	}

	matches := fuzzy.FindFrom(query, suggestSource{
		records: records,
		key: func(r Record) string {
			return strings.ToLower(r.Slug + " " + r.Name)
		},
	})

	var results []Record
	for _, m := range matches {
		results = append(results, records[m.Index])
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results
}

// FindBySlug returns the first record with the given slug.
func FindBySlug(slug string, records []Record) (Record, bool) {
	for _, r := range records {
		if r.Slug == slug {
			return r, true
		}
	}
	return Record{}, false
}

// FindByID returns the record keyed by the plugin file id.
func FindByID(id string, records []Record) (Record, bool) {
	for _, r := range records {
		if r.PluginFile == id {
			return r, true
		}
	}
	return Record{}, false
}
