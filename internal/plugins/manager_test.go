package plugins

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpnas/wpnas/internal/errdefs"
	"github.com/wpnas/wpnas/internal/notify"
)

type serverErr struct{ msg string }

func (e serverErr) Error() string         { return "server: " + e.msg }
func (e serverErr) ServerMessage() string { return e.msg }

type fakeBackend struct {
	mu sync.Mutex

	remote    []RawRemotePlugin
	remoteErr error
	local     []RawLocalPlugin
	localErr  error

	installErr  error
	activateErr error
	installed   []string
	activated   []string

	// installGate blocks Install until closed when set.
	installGate chan struct{}
	// afterInstall replaces local once an install succeeds.
	afterInstall []RawLocalPlugin
}

func (f *fakeBackend) Catalog(ctx context.Context) ([]RawRemotePlugin, error) {
	return f.remote, f.remoteErr
}

func (f *fakeBackend) LocalPlugins(ctx context.Context) ([]RawLocalPlugin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local, f.localErr
}

func (f *fakeBackend) Install(ctx context.Context, slug string) error {
	if f.installGate != nil {
		<-f.installGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installErr != nil {
		return f.installErr
	}
	f.installed = append(f.installed, slug)
	if f.afterInstall != nil {
		f.local = f.afterInstall
	}
	return nil
}

func (f *fakeBackend) Activate(ctx context.Context, pluginFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr
	}
	f.activated = append(f.activated, pluginFile)
	return nil
}

func sampleRemote() []RawRemotePlugin {
	return []RawRemotePlugin{
		{Slug: "foo", Plugin: "foo/foo.php", Name: "Foo", Version: "1.2.0"},
		{Slug: "bar", Plugin: "bar/bar.php", Name: "Bar", Version: "2.0.0"},
	}
}

func messages(s *notify.Store) []string {
	var out []string
	for _, n := range s.List() {
		out = append(out, n.Message)
	}
	return out
}

func TestManager_Load(t *testing.T) {
	t.Run("merges both fetches", func(t *testing.T) {
		b := &fakeBackend{
			remote: sampleRemote(),
			local:  []RawLocalPlugin{{Plugin: "foo/foo.php", Status: StatusInactive, Version: "1.0.0"}},
		}
		m := NewManager(b, nil)
		require.NoError(t, m.Load(context.Background()))

		rec, ok := m.Catalog().Get("foo/foo.php")
		require.True(t, ok)
		assert.Equal(t, StatusInactive, rec.Status)
		assert.Equal(t, 2, m.Catalog().Len())
	})

	t.Run("local failure degrades to nothing installed", func(t *testing.T) {
		b := &fakeBackend{remote: sampleRemote(), localErr: errors.New("forbidden")}
		sink := notify.NewStore(0)
		m := NewManager(b, sink)
		require.NoError(t, m.Load(context.Background()))

		for _, r := range m.Catalog().Records() {
			assert.Equal(t, StatusNotInstalled, r.Status)
		}
		assert.Empty(t, sink.List())
	})

	t.Run("catalog failure leaves catalog empty and notifies", func(t *testing.T) {
		b := &fakeBackend{remoteErr: errors.New("timeout")}
		sink := notify.NewStore(0)
		m := NewManager(b, sink)

		err := m.Load(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errdefs.ErrFetch)
		assert.Equal(t, 0, m.Catalog().Len())
		assert.Equal(t, []string{MsgLoadFailed}, messages(sink))
	})

	t.Run("each load bumps generation", func(t *testing.T) {
		m := NewManager(&fakeBackend{remote: sampleRemote()}, nil)
		before := m.Catalog().Generation()
		require.NoError(t, m.Load(context.Background()))
		assert.Greater(t, m.Catalog().Generation(), before)
	})
}

func TestManager_Install(t *testing.T) {
	t.Run("success refreshes local state", func(t *testing.T) {
		b := &fakeBackend{
			remote:       sampleRemote(),
			afterInstall: []RawLocalPlugin{{Plugin: "bar/bar.php", Status: StatusInactive, Version: "2.0.0"}},
		}
		sink := notify.NewStore(0)
		m := NewManager(b, sink)
		require.NoError(t, m.Load(context.Background()))

		require.NoError(t, m.Install(context.Background(), "bar"))

		rec, _ := m.Catalog().Get("bar/bar.php")
		assert.Equal(t, StatusInactive, rec.Status)
		assert.Equal(t, "2.0.0", rec.InstalledVersion())
		assert.Equal(t, ActionActivate, rec.Action())
		assert.Equal(t, []string{MsgInstalled}, messages(sink))
		assert.False(t, m.Busy("bar/bar.php"))
	})

	t.Run("refresh failure still patches record", func(t *testing.T) {
		b := &fakeBackend{remote: sampleRemote()}
		m := NewManager(b, nil)
		require.NoError(t, m.Load(context.Background()))
		b.localErr = errors.New("gone")

		require.NoError(t, m.Install(context.Background(), "foo"))

		rec, _ := m.Catalog().Get("foo/foo.php")
		assert.Equal(t, StatusInactive, rec.Status)
		assert.Equal(t, "1.2.0", rec.InstalledVersion())
	})

	t.Run("failure uses server message and leaves record", func(t *testing.T) {
		b := &fakeBackend{remote: sampleRemote(), installErr: serverErr{"Destination folder already exists."}}
		sink := notify.NewStore(0)
		m := NewManager(b, sink)
		require.NoError(t, m.Load(context.Background()))

		err := m.Install(context.Background(), "foo")
		require.Error(t, err)
		assert.ErrorIs(t, err, errdefs.ErrInstall)
		assert.Equal(t, []string{"Destination folder already exists."}, messages(sink))

		rec, _ := m.Catalog().Get("foo/foo.php")
		assert.Equal(t, StatusNotInstalled, rec.Status)
		assert.False(t, m.Busy("foo/foo.php"))
	})

	t.Run("failure without server message uses fallback", func(t *testing.T) {
		b := &fakeBackend{remote: sampleRemote(), installErr: errors.New("reset by peer")}
		sink := notify.NewStore(0)
		m := NewManager(b, sink)
		require.NoError(t, m.Load(context.Background()))

		require.Error(t, m.Install(context.Background(), "foo"))
		assert.Equal(t, []string{MsgInstallFailed}, messages(sink))
	})

	t.Run("unknown slug", func(t *testing.T) {
		m := NewManager(&fakeBackend{remote: sampleRemote()}, nil)
		require.NoError(t, m.Load(context.Background()))
		assert.ErrorIs(t, m.Install(context.Background(), "nope"), errdefs.ErrNotFound)
	})

	t.Run("repeat while busy is rejected", func(t *testing.T) {
		gate := make(chan struct{})
		b := &fakeBackend{remote: sampleRemote(), installGate: gate}
		m := NewManager(b, nil)
		require.NoError(t, m.Load(context.Background()))

		done := make(chan error, 1)
		go func() { done <- m.Install(context.Background(), "foo") }()

		require.Eventually(t, func() bool { return m.Busy("foo/foo.php") }, timeout, tick)
		assert.ErrorIs(t, m.Install(context.Background(), "foo"), errdefs.ErrBusy)

		// other records are not blocked
		assert.NoError(t, m.Activate(context.Background(), "bar/bar.php"))

		close(gate)
		require.NoError(t, <-done)
		assert.Equal(t, []string{"foo"}, b.installed)
	})
}

func TestManager_Activate(t *testing.T) {
	t.Run("success patches to active", func(t *testing.T) {
		b := &fakeBackend{
			remote: sampleRemote(),
			local:  []RawLocalPlugin{{Plugin: "foo/foo.php", Status: StatusInactive, Version: "1.2.0"}},
		}
		sink := notify.NewStore(0)
		m := NewManager(b, sink)
		require.NoError(t, m.Load(context.Background()))
		gen := m.Catalog().Generation()

		require.NoError(t, m.Activate(context.Background(), "foo/foo.php"))

		rec, _ := m.Catalog().Get("foo/foo.php")
		assert.Equal(t, StatusActive, rec.Status)
		assert.Equal(t, "1.2.0", rec.InstalledVersion())
		assert.Equal(t, gen+1, m.Catalog().Generation())
		assert.Equal(t, []string{MsgActivated}, messages(sink))

		other, _ := m.Catalog().Get("bar/bar.php")
		assert.Equal(t, StatusNotInstalled, other.Status)
	})

	t.Run("failure notifies fallback", func(t *testing.T) {
		b := &fakeBackend{remote: sampleRemote(), activateErr: errors.New("boom")}
		sink := notify.NewStore(0)
		m := NewManager(b, sink)
		require.NoError(t, m.Load(context.Background()))

		err := m.Activate(context.Background(), "foo/foo.php")
		assert.ErrorIs(t, err, errdefs.ErrActivate)
		assert.Equal(t, []string{MsgActivationFailed}, messages(sink))
	})
}
