package dataview

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wpnas/wpnas/internal/plugins"
)

type Operator string

const (
	OpIs       Operator = "is"
	OpIsNot    Operator = "isNot"
	OpIsAny    Operator = "isAny"
	OpIsNone   Operator = "isNone"
	OpBefore   Operator = "before"
	OpAfter    Operator = "after"
	OpBetween  Operator = "between"
	OpContains Operator = "contains"
)

var operators = map[string]Operator{
	"is": OpIs, "isnot": OpIsNot, "isany": OpIsAny, "isnone": OpIsNone,
	"before": OpBefore, "after": OpAfter, "between": OpBetween, "contains": OpContains,
}

// Filter is one predicate. Value is a string for single-value operators and
// a list for isAny, isNone and between.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// ParseFilter reads "field:operator:value". List values are comma separated.
func ParseFilter(s string) (Filter, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return Filter{}, fmt.Errorf("invalid filter %q, want field:operator:value", s)
	}
	op, ok := operators[strings.ToLower(parts[1])]
	if !ok {
		return Filter{}, fmt.Errorf("unknown filter operator %q", parts[1])
	}

	f := Filter{Field: parts[0], Operator: op, Value: parts[2]}
	switch op {
	case OpIsAny, OpIsNone, OpBetween:
		var list []any
		for _, v := range strings.Split(parts[2], ",") {
			list = append(list, strings.TrimSpace(v))
		}
		if op == OpBetween && len(list) != 2 {
			return Filter{}, fmt.Errorf("between needs two values, got %q", parts[2])
		}
		f.Value = list
	}
	return f, nil
}

// predicate compiles f against field. ok is false when the filter cannot
// apply to the field and should be skipped.
func predicate(f Filter, field Field) (func(plugins.Record) bool, bool) {
	if !field.FilterBy {
		return nil, false
	}
	read := field.Value

	switch f.Operator {
	case OpIs, OpIsNot:
		want := normalize(scalar(f.Value))
		negate := f.Operator == OpIsNot
		return func(r plugins.Record) bool {
			if tags, ok := tagValues(field, r); ok {
				for _, t := range tags {
					if normalize(t) == want {
						return !negate
					}
				}
				return negate
			}
			return (normalize(text(read(r))) == want) != negate
		}, true

	case OpIsAny, OpIsNone:
		set := make(map[string]struct{})
		for _, v := range list(f.Value) {
			set[normalize(v)] = struct{}{}
		}
		negate := f.Operator == OpIsNone
		return func(r plugins.Record) bool {
			if tags, ok := tagValues(field, r); ok {
				for _, t := range tags {
					if _, hit := set[normalize(t)]; hit {
						return !negate
					}
				}
				return negate
			}
			_, hit := set[normalize(text(read(r)))]
			return hit != negate
		}, true

	case OpContains:
		needle := normalize(scalar(f.Value))
		return func(r plugins.Record) bool {
			return strings.Contains(normalize(text(read(r))), needle)
		}, true

	case OpBefore, OpAfter:
		bound, ok := parseBound(field.Type, scalar(f.Value))
		if !ok {
			return nil, false
		}
		after := f.Operator == OpAfter
		return func(r plugins.Record) bool {
			c, ok := compareAny(read(r), bound)
			if !ok {
				return false
			}
			if after {
				return c > 0
			}
			return c < 0
		}, true

	case OpBetween:
		vals := list(f.Value)
		if len(vals) != 2 {
			return nil, false
		}
		lo, okLo := parseBound(field.Type, vals[0])
		hi, okHi := parseBound(field.Type, vals[1])
		if !okLo || !okHi {
			return nil, false
		}
		return func(r plugins.Record) bool {
			v := read(r)
			c1, ok1 := compareAny(v, lo)
			c2, ok2 := compareAny(v, hi)
			return ok1 && ok2 && c1 >= 0 && c2 <= 0
		}, true
	}
	return nil, false
}

// tagValues lets list operators match any element of a multi-valued field.
func tagValues(field Field, r plugins.Record) ([]string, bool) {
	if v, ok := field.Value(r).([]string); ok {
		return v, true
	}
	return nil, false
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func text(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case time.Time:
		return tv.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case []string:
		return strings.Join(tv, ",")
	default:
		return fmt.Sprint(tv)
	}
}

func scalar(v any) string {
	if l, ok := v.([]any); ok && len(l) > 0 {
		return text(l[0])
	}
	if l, ok := v.([]string); ok && len(l) > 0 {
		return l[0]
	}
	return text(v)
}

func list(v any) []string {
	switch tv := v.(type) {
	case []string:
		return tv
	case []any:
		out := make([]string, 0, len(tv))
		for _, e := range tv {
			out = append(out, text(e))
		}
		return out
	case nil:
		return nil
	default:
		return []string{text(tv)}
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseBound(t FieldType, s string) (any, bool) {
	s = strings.TrimSpace(s)
	switch t {
	case TypeDate:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return nil, false
	case TypeNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return s, true
	}
}
