// Package tui is the interactive catalog browser.
package tui

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wpnas/wpnas/internal/dataview"
	"github.com/wpnas/wpnas/internal/log"
	"github.com/wpnas/wpnas/internal/notify"
	"github.com/wpnas/wpnas/internal/plugins"
)

const (
	snackDuration = 4 * time.Second
	actionTimeout = 5 * time.Minute
)

type Options struct {
	Manager    *plugins.Manager
	Controller *dataview.Controller
	Notices    *notify.Store
	// CatalogBase is the public catalog site; `y` copies the plugin page
	// under it, falling back to the plugin homepage.
	CatalogBase string
	Version     string
	// SkipLoad starts browsing the catalog as it is instead of fetching.
	SkipLoad bool
}

type Model struct {
	state   ApplicationState
	version string
	styles  Styles

	manager     *plugins.Manager
	controller  *dataview.Controller
	notices     <-chan notify.Notice
	store       *notify.Store
	catalogBase string
	skipLoad    bool

	spinner spinner.Model
	search  textinput.Model

	result  dataview.Result
	cursor  int
	offset  int
	pending map[string]bool
	snack   *notify.Notice
	err     error

	width  int
	height int

	// copyFn is swapped in tests so they never touch the system clipboard.
	copyFn func(string) error
}

func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	styles := NewStyles(PurpleTheme())
	s.Style = styles.SpinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Search plugins"
	ti.Prompt = "/ "
	ti.CharLimit = 128

	m := Model{
		state:       StateLoading,
		version:     opts.Version,
		styles:      styles,
		manager:     opts.Manager,
		controller:  opts.Controller,
		store:       opts.Notices,
		catalogBase: opts.CatalogBase,
		skipLoad:    opts.SkipLoad,
		spinner:     s,
		search:      ti,
		pending:     make(map[string]bool),
		width:       100,
		height:      30,
		copyFn:      clipboard.WriteAll,
	}
	if opts.Notices != nil {
		m.notices = opts.Notices.Subscribe(16)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCatalog(false), m.listenForNotices())
}

func (m Model) loadCatalog(reload bool) tea.Cmd {
	manager, controller, skip := m.manager, m.controller, m.skipLoad && !reload
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := controller.Restore(ctx); err != nil {
			log.Warn("could not restore view preferences", "err", err)
		}
		if skip {
			return catalogLoadedMsg{}
		}
		return catalogLoadedMsg{err: manager.Load(ctx)}
	}
}

func (m Model) listenForNotices() tea.Cmd {
	if m.notices == nil {
		return nil
	}
	ch := m.notices
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{notice: n}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.search.Width = max(msg.Width-10, 10)
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if !m.spinning() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case catalogLoadedMsg:
		if msg.err != nil && m.manager.Catalog().Len() == 0 {
			m.err = msg.err
		} else {
			m.err = nil
		}
		if m.state == StateLoading {
			m.state = StateBrowsing
		}
		m.result = m.controller.Result()
		m.clampCursor()
		return m, nil

	case actionDoneMsg:
		delete(m.pending, msg.id)
		m.result = m.controller.Result()
		m.clampCursor()
		return m, nil

	case noticeMsg:
		n := msg.notice
		m.snack = &n
		id := n.ID
		return m, tea.Batch(
			m.listenForNotices(),
			tea.Tick(snackDuration, func(time.Time) tea.Msg { return dismissNoticeMsg{id: id} }),
		)

	case dismissNoticeMsg:
		if m.snack != nil && m.snack.ID == msg.id {
			if m.store != nil {
				m.store.Dismiss(msg.id)
			}
			m.snack = nil
		}
		return m, nil

	case clipboardMsg:
		if msg.err != nil {
			m.pushNotice(notify.StatusError, "Could not copy to clipboard.")
		} else {
			m.pushNotice(notify.StatusInfo, "Copied "+msg.text)
		}
		return m, nil
	}

	switch m.state {
	case StateSearching:
		return m.updateSearchingState(msg)
	case StateBrowsing, StateError:
		return m.updateBrowsingState(msg)
	default:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}
}

func (m Model) View() string {
	switch m.state {
	case StateLoading:
		return m.viewLoading()
	default:
		return m.viewBrowse()
	}
}

// spinning reports whether anything on screen still animates.
func (m Model) spinning() bool {
	if m.state == StateLoading || len(m.pending) > 0 {
		return true
	}
	return m.manager != nil && len(m.manager.BusySet()) > 0
}

func (m *Model) pushNotice(status notify.Status, message string) {
	if m.store != nil {
		m.store.Notify(status, message)
		return
	}
	m.snack = &notify.Notice{Status: status, Message: message, Type: notify.TypeSnackbar}
}

func (m Model) busy(r plugins.Record) bool {
	return m.pending[r.ID()] || m.manager.Busy(r.ID())
}

func (m Model) selected() (plugins.Record, bool) {
	if m.cursor < 0 || m.cursor >= len(m.result.Items) {
		return plugins.Record{}, false
	}
	return m.result.Items[m.cursor], true
}

func (m *Model) clampCursor() {
	n := len(m.result.Items)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	rows := m.tableRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}
