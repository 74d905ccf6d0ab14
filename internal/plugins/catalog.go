package plugins

import "sync"

// Catalog holds the merged records. Every mutation bumps Generation so
// consumers can tell when derived data (search index, views) is stale.
type Catalog struct {
	mu         sync.RWMutex
	records    []Record
	index      map[string]int
	generation uint64
}

func NewCatalog(records []Record) *Catalog {
	c := &Catalog{}
	c.Replace(records)
	return c
}

func (c *Catalog) Replace(records []Record) {
	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.PluginFile] = i
	}

	c.mu.Lock()
	c.records = records
	c.index = index
	c.generation++
	c.mu.Unlock()
}

// Snapshot returns the records and the generation they belong to. The slice
// must not be modified.
func (c *Catalog) Snapshot() ([]Record, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records, c.generation
}

func (c *Catalog) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Record(nil), c.records...)
}

func (c *Catalog) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

func (c *Catalog) Get(id string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return Record{}, false
	}
	return c.records[i], true
}

func (c *Catalog) BySlug(slug string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return FindBySlug(slug, c.records)
}

// Patch sets the local state of one record. An empty localVersion together
// with StatusNotInstalled clears the local version. The records slice is
// copied so earlier snapshots stay unchanged.
func (c *Catalog) Patch(id string, status Status, localVersion string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return false
	}

	records := append([]Record(nil), c.records...)
	rec := records[i]
	rec.Status = status
	if status == StatusNotInstalled {
		rec.LocalVersion = nil
	} else {
		v := localVersion
		rec.LocalVersion = &v
	}
	records[i] = rec

	c.records = records
	c.generation++
	return true
}
