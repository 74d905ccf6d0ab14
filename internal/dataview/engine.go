package dataview

import (
	"sync"

	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/search"
)

// Source yields the current records and a generation that changes whenever
// they do. *plugins.Catalog implements it.
type Source interface {
	Snapshot() ([]plugins.Record, uint64)
}

// Engine evaluates views against a Source. The search index is rebuilt only
// when the generation moves, and the last result is reused while neither the
// generation nor the view changes. Returned items are shared and must not be
// modified.
type Engine struct {
	src    Source
	fields Fields
	opts   search.Options

	mu          sync.Mutex
	index       *search.Index
	indexGen    uint64
	indexBuilds int

	hasResult bool
	resultGen uint64
	lastView  View
	last      Result
}

func NewEngine(src Source, fields Fields, opts search.Options) *Engine {
	if fields == nil {
		fields = DefaultFields()
	}
	return &Engine{src: src, fields: fields, opts: opts}
}

func (e *Engine) Fields() Fields { return e.fields }

func (e *Engine) Query(view View) Result {
	records, gen := e.src.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasResult && e.resultGen == gen && e.lastView.Equal(view) {
		return e.last
	}

	var hits []search.Hit
	if view.Searching() {
		hits = e.indexFor(records, gen).Search(view.Search)
	}

	res := Apply(records, hits, view, e.fields)
	e.hasResult = true
	e.resultGen = gen
	e.lastView = view
	e.last = res
	return res
}

func (e *Engine) indexFor(records []plugins.Record, gen uint64) *search.Index {
	if e.index == nil || e.indexGen != gen {
		e.index = search.NewIndex(records, e.opts)
		e.indexGen = gen
		e.indexBuilds++
		log.Debug("search index built", "docs", e.index.Len(), "terms", e.index.Terms(), "generation", gen)
	}
	return e.index
}

// IndexBuilds counts index rebuilds.
func (e *Engine) IndexBuilds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexBuilds
}
