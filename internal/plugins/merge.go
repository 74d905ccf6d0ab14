package plugins

import (
	"strings"

	"github.com/wpnas/wpnas/internal/log"
)

// Merge annotates the remote catalog with local installation state. Remote
// entries without a plugin file identifier are dropped, as are repeats of an
// identifier or slug already seen. Plugins that exist only locally are not
// surfaced.
func Merge(remote []RawRemotePlugin, local []RawLocalPlugin) []Record {
	localMap := make(map[string]RawLocalPlugin, len(local))
	for _, lp := range local {
		if lp.Plugin == "" {
			continue
		}
		localMap[fileKey(lp.Plugin)] = lp
	}

	seen := make(map[string]struct{}, len(remote))
	seenSlug := make(map[string]struct{}, len(remote))
	records := make([]Record, 0, len(remote))
	dropped := 0

	for _, rp := range remote {
		id := strings.TrimSpace(rp.Plugin)
		if id == "" {
			dropped++
			continue
		}
		if _, dup := seen[id]; dup {
			dropped++
			continue
		}
		if rp.Slug != "" {
			if _, dup := seenSlug[rp.Slug]; dup {
				dropped++
				continue
			}
			seenSlug[rp.Slug] = struct{}{}
		}
		seen[id] = struct{}{}

		rec := newRecord(rp, id)
		if lp, ok := localMap[fileKey(id)]; ok {
			status := lp.Status
			if status == "" || status == StatusNotInstalled {
				status = StatusInactive
			}
			version := lp.Version
			rec.Status = status
			rec.LocalVersion = &version
		} else {
			rec.Status = StatusNotInstalled
			rec.LocalVersion = nil
		}

		records = append(records, rec)
	}

	if dropped > 0 {
		log.Debug("dropped catalog entries", "count", dropped)
	}
	return records
}

func newRecord(rp RawRemotePlugin, id string) Record {
	rec := Record{
		Slug:        rp.Slug,
		PluginFile:  id,
		Name:        rp.Name,
		Description: rp.Description,
		Author:      rp.Author,
		Version:     rp.Version,
		Tags:        append([]string(nil), rp.Tags...),
		HomepageURL: rp.PluginURI,
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if rec.HomepageURL == "" {
		rec.HomepageURL = rp.AuthorURI
	}
	if !rp.FileModified.IsZero() {
		t := rp.FileModified.Time
		rec.LastModified = &t
	}
	return rec
}

// fileKey lets the REST form "dir/file" match the file form "dir/file.php".
func fileKey(id string) string {
	return strings.TrimSuffix(strings.TrimSpace(id), ".php")
}
