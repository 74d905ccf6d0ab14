package dataview

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/search"
)

// Result is the visible window of a view plus pagination over the whole
// filtered set.
type Result struct {
	Items      []plugins.Record `json:"items"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
	Page       int              `json:"page"`
	Ranked     bool             `json:"ranked"`
}

// HasMore reports whether another page can be revealed.
func (r Result) HasMore() bool { return r.Page < r.TotalPages }

// Apply runs hits (or, when not searching, all records) through filters,
// sort and pagination. The window is always rows [0, page*perPage) so each
// page extends the previous one.
func Apply(records []plugins.Record, hits []search.Hit, view View, fields Fields) Result {
	view = view.normalized()

	var items []plugins.Record
	ranked := view.Searching()
	if ranked {
		items = make([]plugins.Record, 0, len(hits))
		for _, h := range hits {
			if h.Doc < 0 || h.Doc >= len(records) || h.Score <= 0 {
				continue
			}
			rec := records[h.Doc]
			rec.Score = h.Score
			items = append(items, rec)
		}
	} else {
		items = make([]plugins.Record, len(records))
		copy(items, records)
		for i := range items {
			items[i].Score = 0
		}
	}

	items = applyFilters(items, view.Filters, fields)

	s := view.Sort
	if ranked && !view.SortExplicit {
		s = RelevanceSort
	}
	sortRecords(items, s, fields)

	total := len(items)
	pages := total / view.PerPage
	if total%view.PerPage != 0 {
		pages++
	}
	end := total
	// page*perPage can overflow for huge pages; those show everything anyway
	if view.Page < pages {
		end = view.Page * view.PerPage
	}

	return Result{
		Items:      items[:end],
		TotalItems: total,
		TotalPages: pages,
		Page:       view.Page,
		Ranked:     ranked,
	}
}

func applyFilters(items []plugins.Record, filters []Filter, fields Fields) []plugins.Record {
	var preds []func(plugins.Record) bool
	for _, f := range filters {
		field, ok := fields.Get(f.Field)
		if !ok {
			log.Debug("ignoring filter on unknown field", "field", f.Field)
			continue
		}
		pred, ok := predicate(f, field)
		if !ok {
			log.Debug("ignoring unsupported filter", "field", f.Field, "operator", f.Operator)
			continue
		}
		preds = append(preds, pred)
	}
	if len(preds) == 0 {
		return items
	}

	out := items[:0]
	for _, rec := range items {
		keep := true
		for _, pred := range preds {
			if !pred(rec) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out
}

func sortRecords(items []plugins.Record, s Sort, fields Fields) {
	if s.IsZero() {
		return
	}
	field, ok := fields.Get(s.Field)
	if !ok || !field.EnableSorting {
		return
	}

	keys := make([]any, len(items))
	for i, rec := range items {
		keys[i] = field.Value(rec)
	}
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}

	desc := s.Direction == Desc
	sort.SliceStable(order, func(i, j int) bool {
		a, b := keys[order[i]], keys[order[j]]
		c, ok := compareAny(a, b)
		if !ok {
			// values that cannot be compared go last, in either direction
			return sortable(a) && !sortable(b)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	sorted := make([]plugins.Record, len(items))
	for i, idx := range order {
		sorted[i] = items[idx]
	}
	copy(items, sorted)
}

func compareOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func sortable(v any) bool {
	switch v.(type) {
	case string, float64, int, time.Time:
		return true
	}
	return false
}

// compareAny orders two values of the same supported type. Strings compare
// case-insensitively. ok is false for nil or mismatched values.
func compareAny(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return compareOrdered(strings.ToLower(av), strings.ToLower(bv)), true
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return compareOrdered(av, bv), true
		}
	case int:
		if bv, ok := b.(int); ok {
			return compareOrdered(av, bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	}
	return 0, false
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
