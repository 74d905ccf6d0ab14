package dataview

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/wpnas/wpnas/internal/config"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

type Sort struct {
	Field     string    `json:"field,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

func (s Sort) IsZero() bool { return s.Field == "" }

// RelevanceSort is applied whenever a new search starts.
var RelevanceSort = Sort{Field: FieldRelevance, Direction: Desc}

type Layout struct {
	PrimaryField string `json:"primaryField,omitempty"`
	EnableMoving bool   `json:"enableMoving"`
}

// View is the query a browser holds: search text, sort, filters and the
// page cursor, plus display settings that are persisted but do not affect
// the rows.
type View struct {
	Type           string   `json:"type"`
	Search         string   `json:"search"`
	Sort           Sort     `json:"sort"`
	Filters        []Filter `json:"filters"`
	Page           int      `json:"page"`
	PerPage        int      `json:"perPage"`
	Layout         Layout   `json:"layout"`
	Density        string   `json:"density,omitempty"`
	Fields         []string `json:"fields"`
	InfiniteScroll bool     `json:"infiniteScrollEnabled"`

	// SortExplicit keeps Sort in effect while searching instead of ranking
	// by relevance.
	SortExplicit bool `json:"sortExplicit,omitempty"`
}

func DefaultView() View {
	return View{
		Type:           "table",
		Page:           1,
		PerPage:        config.DefaultPerPage,
		Filters:        []Filter{},
		Layout:         Layout{PrimaryField: FieldName},
		Fields:         []string{FieldVersion, FieldUpdatedDate, FieldAuthor, FieldStatus, FieldActions},
		InfiniteScroll: true,
	}
}

func (v View) Searching() bool { return strings.TrimSpace(v.Search) != "" }

// Equal is structural equality.
func (v View) Equal(o View) bool { return reflect.DeepEqual(v.normalized(), o.normalized()) }

func (v View) normalized() View {
	if v.Page < 1 {
		v.Page = 1
	}
	if v.PerPage < 1 {
		v.PerPage = config.DefaultPerPage
	}
	if len(v.Filters) == 0 {
		v.Filters = nil
	}
	if len(v.Fields) == 0 {
		v.Fields = nil
	}
	return v
}

// Preferences is the persisted subset of a View. Search text, filters and
// the page cursor are never saved.
type Preferences struct {
	Type    string `json:"type"`
	PerPage int    `json:"perPage"`
	Layout  Layout `json:"layout"`
	Sort    Sort   `json:"sort"`
	Density string `json:"density,omitempty"`
}

func (v View) Preferences() Preferences {
	return Preferences{
		Type:    v.Type,
		PerPage: v.PerPage,
		Layout:  v.Layout,
		Sort:    v.Sort,
		Density: v.Density,
	}
}

// WithPreferences overlays saved preferences onto v. Zero values are ignored.
func (v View) WithPreferences(p Preferences) View {
	if p.Type != "" {
		v.Type = p.Type
	}
	if p.PerPage > 0 {
		v.PerPage = p.PerPage
	}
	if p.Layout != (Layout{}) {
		v.Layout = p.Layout
	}
	if !p.Sort.IsZero() {
		v.Sort = p.Sort
	}
	if p.Density != "" {
		v.Density = p.Density
	}
	return v
}

// ParseSort reads "field" or "field:asc|desc".
func ParseSort(s string) (Sort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Sort{}, nil
	}
	field, dir, found := strings.Cut(s, ":")
	out := Sort{Field: strings.TrimSpace(field), Direction: Asc}
	if found {
		switch Direction(strings.ToLower(strings.TrimSpace(dir))) {
		case Asc:
		case Desc:
			out.Direction = Desc
		default:
			return Sort{}, fmt.Errorf("invalid sort direction %q", dir)
		}
	}
	if out.Field == "" {
		return Sort{}, fmt.Errorf("invalid sort %q", s)
	}
	return out, nil
}
