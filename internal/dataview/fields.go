package dataview

import (
	"strings"
	"time"

	"github.com/wpnas/wpnas/internal/plugins"
)

const (
	FieldRelevance   = "relevance"
	FieldName        = "name"
	FieldDescription = "description"
	FieldVersion     = "version"
	FieldUpdatedDate = "updated_date"
	FieldAuthor      = "author"
	FieldTags        = "tags"
	FieldStatus      = "status"
	FieldActions     = "actions"
)

type FieldType string

const (
	TypeText   FieldType = "text"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
	TypeEnum   FieldType = "enum"
)

// Field describes one column: how to read it from a record and whether it
// can be sorted and filtered on. Value returns nil when the record has no
// value; nils sort last.
type Field struct {
	ID            string
	Label         string
	Type          FieldType
	Value         func(plugins.Record) any
	EnableSorting bool
	FilterBy      bool
	Hidden        bool
	Elements      []string
}

type Fields []Field

func (fs Fields) Get(id string) (Field, bool) {
	for _, f := range fs {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func DefaultFields() Fields {
	return Fields{
		{
			ID:            FieldRelevance,
			Label:         "Relevance",
			Type:          TypeNumber,
			Value:         func(r plugins.Record) any { return r.Score },
			EnableSorting: true,
			Hidden:        true,
		},
		{
			ID:            FieldName,
			Label:         "Name",
			Type:          TypeText,
			Value:         func(r plugins.Record) any { return r.Name },
			EnableSorting: true,
			FilterBy:      true,
		},
		{
			ID:       FieldDescription,
			Label:    "Description",
			Type:     TypeText,
			Value:    func(r plugins.Record) any { return r.Description },
			FilterBy: true,
		},
		{
			ID:       FieldVersion,
			Label:    "Version",
			Type:     TypeText,
			Value:    func(r plugins.Record) any { return r.Version },
			FilterBy: true,
		},
		{
			ID:    FieldUpdatedDate,
			Label: "Last Updated",
			Type:  TypeDate,
			Value: func(r plugins.Record) any {
				if r.LastModified == nil {
					return nil
				}
				return *r.LastModified
			},
			EnableSorting: true,
			FilterBy:      true,
		},
		{
			ID:    FieldAuthor,
			Label: "Author",
			Type:  TypeText,
			Value: func(r plugins.Record) any {
				if strings.TrimSpace(r.Author) == "" {
					return nil
				}
				return r.Author
			},
			EnableSorting: true,
			FilterBy:      true,
		},
		{
			ID:    FieldTags,
			Label: "Tags",
			Type:  TypeText,
			Value: func(r plugins.Record) any {
				if len(r.Tags) == 0 {
					return nil
				}
				return r.Tags
			},
			FilterBy: true,
		},
		{
			ID:            FieldStatus,
			Label:         "Status",
			Type:          TypeEnum,
			Value: func(r plugins.Record) any {
				if r.Status == plugins.StatusNetworkActive {
					return string(plugins.StatusActive)
				}
				return string(r.Status)
			},
			EnableSorting: true,
			FilterBy:      true,
			Elements: []string{
				string(plugins.StatusNotInstalled),
				string(plugins.StatusInactive),
				string(plugins.StatusActive),
			},
		},
		{
			ID:       FieldActions,
			Label:    "Actions",
			Type:     TypeEnum,
			Value:    func(r plugins.Record) any { return string(r.Action()) },
			FilterBy: true,
			Elements: []string{
				string(plugins.ActionInstall),
				string(plugins.ActionUpdate),
				string(plugins.ActionActivate),
				string(plugins.ActionNone),
			},
		},
	}
}

// Display renders a field value for a text table.
func Display(f Field, r plugins.Record) string {
	switch f.ID {
	case FieldStatus:
		return r.Status.Label()
	case FieldActions:
		return r.Action().Label()
	case FieldDescription:
		return r.Description
	}
	switch v := f.Value(r).(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02")
	case []string:
		return strings.Join(v, ", ")
	case float64:
		return formatScore(v)
	default:
		return ""
	}
}
