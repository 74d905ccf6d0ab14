package dataview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/prefs"
)

const saveTimeout = 5 * time.Second

// Controller holds the current view for one browser session and applies the
// interaction rules: a new search ranks by relevance, a changed search or
// sort returns to page 1, and every change persists the display preferences
// in the background.
type Controller struct {
	engine *Engine
	store  prefs.Store
	base   View

	mu      sync.Mutex
	view    View
	loading bool

	saveMu   sync.Mutex
	saveSeq  uint64
	savedSeq uint64
	saves    sync.WaitGroup
}

// NewController starts at base, normally DefaultView with the configured
// page size. store may be nil.
func NewController(engine *Engine, store prefs.Store, base View) *Controller {
	base = base.normalized()
	return &Controller{engine: engine, store: store, base: base, view: base}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Controller) Fields() Fields { return c.engine.Fields() }

func (c *Controller) Result() Result {
	return c.engine.Query(c.View())
}

// SetView replaces the view and returns its result.
func (c *Controller) SetView(next View) Result {
	c.mu.Lock()
	prev := c.view

	if next.Search != prev.Search && next.Searching() && !next.SortExplicit {
		next.Sort = RelevanceSort
	}
	if next.Search != prev.Search || next.Sort != prev.Sort {
		next.Page = 1
	}
	next = next.normalized()
	c.view = next
	c.mu.Unlock()

	c.persist(next.Preferences())
	return c.engine.Query(next)
}

// LoadMore reveals the next page. It does nothing while a load is in flight
// or when the last page is already visible, and reports whether the page
// advanced.
func (c *Controller) LoadMore() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.engine.Query(c.view)
	if c.loading || c.view.Page >= res.TotalPages {
		return res, false
	}

	c.loading = true
	c.view.Page++
	res = c.engine.Query(c.view)
	c.loading = false
	return res, true
}

// Reset returns to the base view.
func (c *Controller) Reset() Result {
	c.mu.Lock()
	c.view = c.base
	next := c.view
	c.mu.Unlock()

	c.persist(next.Preferences())
	return c.engine.Query(next)
}

// Restore overlays saved preferences onto the current view. A missing entry
// is not an error.
func (c *Controller) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	raw, ok, err := c.store.Get(ctx, prefs.Scope, prefs.ViewKey)
	if err != nil {
		return fmt.Errorf("failed to read view preferences: %w", err)
	}
	if !ok {
		return nil
	}

	var p Preferences
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode view preferences: %w", err)
	}

	c.mu.Lock()
	c.view = c.view.WithPreferences(p).normalized()
	c.mu.Unlock()
	return nil
}

func (c *Controller) persist(p Preferences) {
	if c.store == nil {
		return
	}

	c.saveMu.Lock()
	c.saveSeq++
	seq := c.saveSeq
	c.saveMu.Unlock()

	c.saves.Add(1)
	go func() {
		defer c.saves.Done()

		c.saveMu.Lock()
		defer c.saveMu.Unlock()
		if seq < c.savedSeq {
			return
		}
		c.savedSeq = seq

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := c.store.Set(ctx, prefs.Scope, prefs.ViewKey, p); err != nil {
			log.Warn("failed to save view preferences", "err", err)
		}
	}()
}

// Wait blocks until background preference saves finish.
func (c *Controller) Wait() { c.saves.Wait() }
