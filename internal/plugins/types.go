package plugins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusNotInstalled  Status = "not_installed"
	StatusInactive      Status = "inactive"
	StatusActive        Status = "active"
	StatusNetworkActive Status = "network-active"
)

func (s Status) Label() string {
	switch s {
	case StatusActive, StatusNetworkActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	default:
		return "Not Installed"
	}
}

// Tags decodes either a JSON array of strings or an object whose values are
// strings. Object values are ordered by key so decoding is deterministic.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}

	switch data[0] {
	case '[':
		var list []any
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		*t = flattenTags(list)
		return nil
	case '{':
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]any, 0, len(keys))
		for _, k := range keys {
			values = append(values, m[k])
		}
		*t = flattenTags(values)
		return nil
	default:
		// a bare string or number is tolerated as one tag
		var single any
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		*t = flattenTags([]any{single})
		return nil
	}
}

func flattenTags(values []any) Tags {
	out := make(Tags, 0, len(values))
	for _, v := range values {
		switch tv := v.(type) {
		case string:
			if s := strings.TrimSpace(tv); s != "" {
				out = append(out, s)
			}
		case float64:
			out = append(out, strconv.FormatFloat(tv, 'f', -1, 64))
		}
	}
	return out
}

// Timestamp accepts RFC3339, "2006-01-02 15:04:05", "2006-01-02" or unix
// seconds. Anything else decodes to the zero value rather than failing the
// whole catalog.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '"' {
		if secs, err := strconv.ParseInt(string(data), 10, 64); err == nil && secs > 0 {
			ts.Time = time.Unix(secs, 0).UTC()
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.Time = t
			return nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		ts.Time = time.Unix(secs, 0).UTC()
	}
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time.Format(time.RFC3339))
}

// RawRemotePlugin is one entry of the remote catalog as served by
// GET /wpnas-kit/v1/plugins.
type RawRemotePlugin struct {
	Slug         string    `json:"slug"`
	Plugin       string    `json:"plugin"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Version      string    `json:"version"`
	Author       string    `json:"author"`
	Tags         Tags      `json:"tags,omitempty"`
	PluginURI    string    `json:"plugin_uri,omitempty"`
	AuthorURI    string    `json:"author_uri,omitempty"`
	FileModified Timestamp `json:"plugin_file_modified,omitempty"`
}

// RawLocalPlugin is one entry of GET /wp/v2/plugins.
type RawLocalPlugin struct {
	Plugin  string `json:"plugin"`
	Status  Status `json:"status"`
	Version string `json:"version"`
	Name    string `json:"name,omitempty"`
}

// Record is one plugin's merged remote and local state.
type Record struct {
	Slug         string     `json:"slug"`
	PluginFile   string     `json:"plugin"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Author       string     `json:"author"`
	Version      string     `json:"version"`
	Tags         []string   `json:"tags"`
	HomepageURL  string     `json:"homepage_url,omitempty"`
	Status       Status     `json:"status"`
	LocalVersion *string    `json:"local_version,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`

	// Score is the relevance of the last search; zero when not searching.
	Score float64 `json:"score,omitempty"`
}

// ID is the identifier records are keyed by: the plugin file.
func (r Record) ID() string { return r.PluginFile }

func (r Record) Installed() bool { return r.Status != StatusNotInstalled && r.Status != "" }

// InstalledVersion returns the locally installed version, or "" when absent.
func (r Record) InstalledVersion() string {
	if r.LocalVersion == nil {
		return ""
	}
	return *r.LocalVersion
}

func (r Record) HasUpdate() bool {
	local := r.InstalledVersion()
	return r.Installed() && local != "" && r.Version != "" &&
		CompareVersions(local, r.Version) < 0
}

type Action string

const (
	ActionInstall  Action = "install"
	ActionUpdate   Action = "update"
	ActionActivate Action = "activate"
	ActionNone     Action = "none"
)

func (a Action) Label() string {
	switch a {
	case ActionInstall:
		return "Install"
	case ActionUpdate:
		return "Update"
	case ActionActivate:
		return "Activate"
	default:
		return "Up to Date"
	}
}

// Action is the single action offered for the record: install when absent,
// update when the catalog is newer, activate when inactive.
func (r Record) Action() Action {
	switch {
	case !r.Installed():
		return ActionInstall
	case r.HasUpdate():
		return ActionUpdate
	case r.Status == StatusInactive:
		return ActionActivate
	default:
		return ActionNone
	}
}

// FaviconURL derives a favicon from the homepage host, or "" when there is no
// usable homepage.
func (r Record) FaviconURL() string {
	if r.HomepageURL == "" {
		return ""
	}
	u, err := url.Parse(r.HomepageURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return "https://www.google.com/s2/favicons?domain=" + url.QueryEscape(u.Hostname()) + "&sz=32"
}

// CatalogURL is the public catalog page for the record under base.
func (r Record) CatalogURL(base string) string {
	if base == "" || r.Slug == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(r.Slug) + "/"
}
