package plugins

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wpnas/wpnas/internal/errdefs"
	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/notify"
)

const (
	MsgLoadFailed       = "Failed to load plugins."
	MsgInstalled        = "Plugin installed successfully!"
	MsgActivated        = "Plugin activated successfully!"
	MsgInstallFailed    = "Installation failed."
	MsgActivationFailed = "Activation failed."
)

// Backend is the remote side the manager talks to.
type Backend interface {
	Catalog(ctx context.Context) ([]RawRemotePlugin, error)
	LocalPlugins(ctx context.Context) ([]RawLocalPlugin, error)
	Install(ctx context.Context, slug string) error
	Activate(ctx context.Context, pluginFile string) error
}

// Manager owns the catalog and runs install/activate actions against the
// backend. At most one action runs per plugin at a time.
type Manager struct {
	backend Backend
	catalog *Catalog
	sink    notify.Sink

	mu   sync.Mutex
	busy map[string]struct{}
}

func NewManager(backend Backend, sink notify.Sink) *Manager {
	if sink == nil {
		sink = notify.Discard{}
	}
	return &Manager{
		backend: backend,
		catalog: NewCatalog(nil),
		sink:    sink,
		busy:    make(map[string]struct{}),
	}
}

func (m *Manager) Catalog() *Catalog { return m.catalog }

// Load fetches the remote catalog and the local plugin list concurrently and
// replaces the catalog with their merge. A local status failure is treated as
// "nothing installed"; a catalog failure leaves the catalog empty.
func (m *Manager) Load(ctx context.Context) error {
	var (
		remote []RawRemotePlugin
		local  []RawLocalPlugin
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		remote, err = m.backend.Catalog(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		local, err = m.backend.LocalPlugins(gctx)
		if err != nil {
			log.Warn("local plugin status unavailable", "err", err)
			local = nil
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		m.catalog.Replace(nil)
		m.sink.Notify(notify.StatusError, MsgLoadFailed)
		return errdefs.NewFetchError("failed to load catalog", err)
	}

	records := Merge(remote, local)
	m.catalog.Replace(records)
	log.Debug("catalog loaded", "records", len(records), "installed", len(local))
	return nil
}

// Busy reports whether an action is running for the plugin id.
func (m *Manager) Busy(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.busy[id]
	return ok
}

// BusySet returns the ids with an action in flight.
func (m *Manager) BusySet() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.busy))
	for id := range m.busy {
		out[id] = true
	}
	return out
}

func (m *Manager) acquire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.busy[id]; ok {
		return false
	}
	m.busy[id] = struct{}{}
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.busy, id)
	m.mu.Unlock()
}

// Install installs the plugin with the given slug and refreshes its local
// state. When the refresh fails the record is marked inactive at the catalog
// version, which is what a fresh install yields.
func (m *Manager) Install(ctx context.Context, slug string) error {
	rec, ok := m.catalog.BySlug(slug)
	if !ok {
		return errdefs.Wrap(errdefs.ErrTypeNotFound, "unknown plugin "+slug, nil)
	}
	id := rec.ID()

	if !m.acquire(id) {
		return errdefs.ErrBusy
	}
	defer m.release(id)

	if err := m.backend.Install(ctx, slug); err != nil {
		msg := errdefs.UserMessage(err, MsgInstallFailed)
		m.sink.Notify(notify.StatusError, msg)
		log.Error("install failed", "slug", slug, "err", err)
		return errdefs.NewInstallError(msg, err)
	}

	m.sink.Notify(notify.StatusSuccess, MsgInstalled)
	m.refreshOne(ctx, rec)
	return nil
}

func (m *Manager) refreshOne(ctx context.Context, rec Record) {
	local, err := m.backend.LocalPlugins(ctx)
	if err != nil {
		log.Warn("post-install refresh failed", "plugin", rec.ID(), "err", err)
		m.catalog.Patch(rec.ID(), StatusInactive, rec.Version)
		return
	}
	for _, lp := range local {
		if fileKey(lp.Plugin) == fileKey(rec.ID()) {
			status := lp.Status
			if status == "" || status == StatusNotInstalled {
				status = StatusInactive
			}
			m.catalog.Patch(rec.ID(), status, lp.Version)
			return
		}
	}
	m.catalog.Patch(rec.ID(), StatusInactive, rec.Version)
}

// Activate activates the plugin with the given plugin file.
func (m *Manager) Activate(ctx context.Context, pluginFile string) error {
	rec, ok := m.catalog.Get(pluginFile)
	if !ok {
		return errdefs.Wrap(errdefs.ErrTypeNotFound, "unknown plugin "+pluginFile, nil)
	}

	if !m.acquire(pluginFile) {
		return errdefs.ErrBusy
	}
	defer m.release(pluginFile)

	if err := m.backend.Activate(ctx, pluginFile); err != nil {
		msg := errdefs.UserMessage(err, MsgActivationFailed)
		m.sink.Notify(notify.StatusError, msg)
		log.Error("activate failed", "plugin", pluginFile, "err", err)
		return errdefs.NewActivateError(msg, err)
	}

	version := rec.InstalledVersion()
	if version == "" {
		version = rec.Version
	}
	m.catalog.Patch(pluginFile, StatusActive, version)
	m.sink.Notify(notify.StatusSuccess, MsgActivated)
	return nil
}
