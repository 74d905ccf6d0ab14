package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpnas/wpnas/internal/dataview"
	"github.com/wpnas/wpnas/internal/notify"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/prefs"
	"github.com/wpnas/wpnas/internal/search"
)

type fakeBackend struct {
	mu     sync.Mutex
	remote []plugins.RawRemotePlugin
	local  []plugins.RawLocalPlugin
}

func (f *fakeBackend) Catalog(context.Context) ([]plugins.RawRemotePlugin, error) {
	return f.remote, nil
}

func (f *fakeBackend) LocalPlugins(context.Context) ([]plugins.RawLocalPlugin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local, nil
}

func (f *fakeBackend) Install(_ context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = append(f.local, plugins.RawLocalPlugin{Plugin: slug + "/" + slug + ".php", Status: plugins.StatusInactive, Version: "1.0.0"})
	return nil
}

func (f *fakeBackend) Activate(context.Context, string) error { return nil }

func remoteCatalog(n int) []plugins.RawRemotePlugin {
	out := make([]plugins.RawRemotePlugin, n)
	for i := range out {
		slug := fmt.Sprintf("plugin-%02d", i)
		out[i] = plugins.RawRemotePlugin{
			Slug:    slug,
			Plugin:  slug + "/" + slug + ".php",
			Name:    fmt.Sprintf("Plugin %02d", i),
			Version: "1.0.0",
		}
	}
	return out
}

func newTestModel(t *testing.T, n int) (Model, *notify.Store) {
	t.Helper()

	remote := remoteCatalog(n)
	if n > 7 {
		remote[7].Name = "Image Optimizer"
	}
	notices := notify.NewStore(0)
	manager := plugins.NewManager(&fakeBackend{remote: remote}, notices)
	require.NoError(t, manager.Load(context.Background()))

	engine := dataview.NewEngine(manager.Catalog(), dataview.DefaultFields(), search.DefaultOptions())
	controller := dataview.NewController(engine, prefs.NewMemoryStore(), dataview.DefaultView())
	t.Cleanup(controller.Wait)

	m := NewModel(Options{
		Manager:     manager,
		Controller:  controller,
		Notices:     notices,
		CatalogBase: "https://club.test/plugins/",
		SkipLoad:    true,
	})
	m.copyFn = func(string) error { return nil }

	next, _ := m.Update(catalogLoadedMsg{})
	return next.(Model), notices
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "end":
		return tea.KeyMsg{Type: tea.KeyEnd}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

// run executes cmd, expanding batches, and returns every message produced.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func TestModel_Loads(t *testing.T) {
	m, _ := newTestModel(t, 5)
	assert.Equal(t, StateBrowsing, m.state)
	assert.Len(t, m.result.Items, 5)
	assert.Contains(t, m.View(), "Plugin 00")
	assert.Contains(t, m.View(), "5 plugins")
}

func TestModel_InfiniteScroll(t *testing.T) {
	m, _ := newTestModel(t, 45)
	require.Len(t, m.result.Items, 20)

	m = press(m, "end")
	assert.Len(t, m.result.Items, 40)
	assert.Equal(t, 2, m.result.Page)

	m = press(m, "end")
	assert.Len(t, m.result.Items, 45)
	assert.False(t, m.result.HasMore())

	m = press(m, "end")
	assert.Len(t, m.result.Items, 45)
}

func TestModel_Search(t *testing.T) {
	m, _ := newTestModel(t, 10)

	m = press(m, "/")
	assert.Equal(t, StateSearching, m.state)
	for _, r := range "image" {
		m = press(m, string(r))
	}
	require.NotEmpty(t, m.result.Items)
	assert.Equal(t, "plugin-07", m.result.Items[0].Slug)
	assert.Equal(t, dataview.RelevanceSort, m.controller.View().Sort)

	m = press(m, "enter")
	assert.Equal(t, StateBrowsing, m.state)

	m = press(m, "esc")
	assert.False(t, m.controller.View().Searching())
	assert.Len(t, m.result.Items, 10)
}

func TestModel_Sort(t *testing.T) {
	m, _ := newTestModel(t, 3)

	m = press(m, "s")
	assert.Equal(t, dataview.Sort{Field: dataview.FieldName, Direction: dataview.Asc}, m.controller.View().Sort)
	m = press(m, "S")
	assert.Equal(t, dataview.Desc, m.controller.View().Sort.Direction)
	assert.Equal(t, "plugin-02", m.result.Items[0].Slug)

	m = press(m, "r")
	assert.True(t, m.controller.View().Sort.IsZero())
}

func TestModel_InstallAction(t *testing.T) {
	m, notices := newTestModel(t, 3)
	m = press(m, "down")
	require.Equal(t, 1, m.cursor)

	next, cmd := m.Update(key("enter"))
	m = next.(Model)
	assert.True(t, m.pending["plugin-01/plugin-01.php"])
	assert.Contains(t, m.View(), "Working")

	var done *actionDoneMsg
	for _, msg := range run(cmd) {
		if d, ok := msg.(actionDoneMsg); ok {
			done = &d
		}
	}
	require.NotNil(t, done)
	require.NoError(t, done.err)

	next, _ = m.Update(*done)
	m = next.(Model)
	assert.Empty(t, m.pending)
	assert.Equal(t, plugins.StatusInactive, m.result.Items[1].Status)
	assert.Equal(t, plugins.ActionActivate, m.result.Items[1].Action())

	list := notices.List()
	require.Len(t, list, 1)
	assert.Equal(t, plugins.MsgInstalled, list[0].Message)
}

func TestModel_Snackbar(t *testing.T) {
	m, _ := newTestModel(t, 1)

	n := notify.Notice{ID: "n1", Status: notify.StatusSuccess, Message: "Plugin installed successfully!"}
	next, _ := m.Update(noticeMsg{notice: n})
	m = next.(Model)
	assert.Contains(t, m.View(), "Plugin installed successfully!")

	next, _ = m.Update(dismissNoticeMsg{id: "other"})
	m = next.(Model)
	require.NotNil(t, m.snack)

	next, _ = m.Update(dismissNoticeMsg{id: "n1"})
	m = next.(Model)
	assert.Nil(t, m.snack)
}

func TestModel_CopyURL(t *testing.T) {
	m, _ := newTestModel(t, 2)

	var copied string
	m.copyFn = func(s string) error {
		copied = s
		return nil
	}

	_, cmd := m.Update(key("y"))
	msgs := run(cmd)
	require.Len(t, msgs, 1)
	assert.Equal(t, "https://club.test/plugins/plugin-00/", copied)
	assert.Equal(t, clipboardMsg{text: copied}, msgs[0])
}

func TestCell(t *testing.T) {
	assert.Equal(t, "abc  ", cell("abc", 5))
	assert.Equal(t, "abcd…", cell("abcdefgh", 5))
	assert.Equal(t, 6, runewidth.StringWidth(cell("日本語テキスト", 6)))
	assert.False(t, strings.Contains(cell("a\nb", 4), "\n"))
}
