package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/wpnas/wpnas/internal/dataview"
	"github.com/wpnas/wpnas/internal/notify"
	"github.com/wpnas/wpnas/internal/plugins"
	"github.com/wpnas/wpnas/internal/search"
)

// chrome is the number of lines around the table: banner, search line,
// header, detail pane, snackbar and help.
const chrome = 11

func (m Model) tableRows() int {
	return max(m.height-chrome, 3)
}

func (m Model) viewLoading() string {
	var b strings.Builder
	b.WriteString(m.renderBanner())
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.styles.Normal.Render("Loading plugins...")))
	return b.String()
}

func (m Model) updateBrowsingState(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.result.Items)-1 {
			m.cursor++
		}
		m.maybeLoadMore()
	case "pgdown", "ctrl+d":
		m.cursor = min(m.cursor+m.tableRows(), max(len(m.result.Items)-1, 0))
		m.maybeLoadMore()
	case "pgup", "ctrl+u":
		m.cursor = max(m.cursor-m.tableRows(), 0)
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(m.result.Items)-1, 0)
		m.maybeLoadMore()
	case "/":
		m.state = StateSearching
		m.search.SetValue(m.controller.View().Search)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "esc":
		if m.controller.View().Searching() {
			m.applySearch("")
		}
	case "s":
		m.cycleSort()
	case "S":
		m.toggleDirection()
	case "r":
		m.result = m.controller.Reset()
		m.search.SetValue("")
		m.cursor = 0
	case "R":
		m.state = StateLoading
		return m, tea.Batch(m.spinner.Tick, m.loadCatalog(true))
	case "enter", "i":
		return m.runAction()
	case "y":
		return m, m.copySelected()
	case "x":
		if m.snack != nil {
			id := m.snack.ID
			return m, func() tea.Msg { return dismissNoticeMsg{id: id} }
		}
	}

	m.clampCursor()
	return m, nil
}

func (m Model) updateSearchingState(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter", "esc", "tab":
			m.state = StateBrowsing
			m.search.Blur()
			return m, nil
		case "down", "up":
			m.state = StateBrowsing
			m.search.Blur()
			return m.updateBrowsingState(msg)
		}
	}

	prev := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != prev {
		m.applySearch(m.search.Value())
	}
	return m, cmd
}

func (m *Model) applySearch(q string) {
	view := m.controller.View()
	view.Search = q
	view.SortExplicit = false
	m.result = m.controller.SetView(view)
	m.cursor = 0
	m.offset = 0
}

// maybeLoadMore reveals the next page once the cursor sits on the last row.
func (m *Model) maybeLoadMore() {
	if !m.controller.View().InfiniteScroll {
		return
	}
	if m.cursor < len(m.result.Items)-1 || !m.result.HasMore() {
		return
	}
	if res, ok := m.controller.LoadMore(); ok {
		m.result = res
	}
}

func (m Model) sortableFields() []dataview.Field {
	var out []dataview.Field
	for _, f := range m.controller.Fields() {
		if !f.EnableSorting {
			continue
		}
		if f.ID == dataview.FieldRelevance && !m.controller.View().Searching() {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (m *Model) cycleSort() {
	fields := m.sortableFields()
	if len(fields) == 0 {
		return
	}
	view := m.controller.View()
	next := 0
	for i, f := range fields {
		if f.ID == view.Sort.Field {
			next = (i + 1) % len(fields)
			break
		}
	}
	dir := dataview.Asc
	if fields[next].ID == dataview.FieldRelevance {
		dir = dataview.Desc
	}
	view.Sort = dataview.Sort{Field: fields[next].ID, Direction: dir}
	view.SortExplicit = view.Searching()
	m.result = m.controller.SetView(view)
	m.cursor = 0
}

func (m *Model) toggleDirection() {
	view := m.controller.View()
	if view.Sort.IsZero() {
		view.Sort = dataview.Sort{Field: dataview.FieldName, Direction: dataview.Asc}
	} else if view.Sort.Direction == dataview.Desc {
		view.Sort.Direction = dataview.Asc
	} else {
		view.Sort.Direction = dataview.Desc
	}
	view.SortExplicit = view.Searching()
	m.result = m.controller.SetView(view)
	m.cursor = 0
}

func (m Model) runAction() (tea.Model, tea.Cmd) {
	rec, ok := m.selected()
	if !ok || m.busy(rec) {
		return m, nil
	}

	manager := m.manager
	var run func(ctx context.Context) error
	switch rec.Action() {
	case plugins.ActionInstall, plugins.ActionUpdate:
		slug := rec.Slug
		run = func(ctx context.Context) error { return manager.Install(ctx, slug) }
	case plugins.ActionActivate:
		file := rec.PluginFile
		run = func(ctx context.Context) error { return manager.Activate(ctx, file) }
	default:
		return m, nil
	}

	id := rec.ID()
	m.pending[id] = true
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{id: id, err: run(ctx)}
	})
}

func (m Model) copySelected() tea.Cmd {
	rec, ok := m.selected()
	if !ok {
		return nil
	}
	text := rec.CatalogURL(m.catalogBase)
	if text == "" {
		text = rec.HomepageURL
	}
	if text == "" {
		return nil
	}
	copyFn := m.copyFn
	return func() tea.Msg {
		return clipboardMsg{text: text, err: copyFn(text)}
	}
}

func (m Model) viewBrowse() string {
	var b strings.Builder

	b.WriteString(m.renderBanner())
	b.WriteString("\n")
	b.WriteString(m.renderSearchLine())
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(m.styles.Error.Render("✗ " + plugins.MsgLoadFailed + " Press R to retry."))
		b.WriteString("\n")
	} else if len(m.result.Items) == 0 {
		b.WriteString(m.styles.Subtle.Render("  No plugins found."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderTable())
		b.WriteString(m.renderDetail())
	}

	b.WriteString("\n")
	if m.snack != nil {
		b.WriteString(m.renderSnackbar(*m.snack))
		b.WriteString("\n")
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderSearchLine() string {
	view := m.controller.View()
	var parts []string
	if m.state == StateSearching {
		parts = append(parts, m.search.View())
	} else if view.Searching() {
		parts = append(parts, m.styles.Normal.Render("/ "+view.Search))
	}

	status := fmt.Sprintf("%d plugins", m.result.TotalItems)
	if m.result.TotalPages > 1 {
		status += fmt.Sprintf(" · page %d of %d", m.result.Page, m.result.TotalPages)
	}
	if !view.Sort.IsZero() {
		status += fmt.Sprintf(" · sort %s %s", view.Sort.Field, view.Sort.Direction)
	}
	parts = append(parts, m.styles.Subtle.Render(status))
	return " " + strings.Join(parts, "  ")
}

type column struct {
	field dataview.Field
	width int
}

func (m Model) columns() []column {
	fields := m.controller.Fields()
	view := m.controller.View()

	primary := view.Layout.PrimaryField
	if primary == "" {
		primary = dataview.FieldName
	}
	ids := append([]string{primary}, view.Fields...)

	var cols []column
	seen := make(map[string]bool, len(ids))
	fixed := 0
	for _, id := range ids {
		f, ok := fields.Get(id)
		if !ok || seen[id] || (f.Hidden && id != primary) {
			continue
		}
		seen[id] = true
		w := 12
		switch id {
		case dataview.FieldVersion:
			w = 9
		case dataview.FieldUpdatedDate:
			w = 10
		case dataview.FieldAuthor:
			w = 16
		case dataview.FieldStatus:
			w = 14
		case dataview.FieldActions:
			w = 12
		}
		cols = append(cols, column{field: f, width: w})
		if id != primary {
			fixed += w + 1
		}
	}
	if len(cols) > 0 {
		cols[0].width = max(m.width-fixed-4, 16)
	}
	return cols
}

func cell(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func (m Model) renderTable() string {
	var b strings.Builder
	cols := m.columns()

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = cell(c.field.Label, c.width)
	}
	b.WriteString("  " + m.styles.Header.Render(strings.Join(header, " ")))
	b.WriteString("\n")

	end := min(m.offset+m.tableRows(), len(m.result.Items))
	for i := m.offset; i < end; i++ {
		r := m.result.Items[i]
		row := make([]string, len(cols))
		for j, c := range cols {
			if c.field.ID == dataview.FieldActions && m.busy(r) {
				row[j] = m.spinner.View() + " " + cell("Working", c.width-2)
				continue
			}
			row[j] = cell(m.cellValue(c.field, r), c.width)
		}
		line := strings.Join(row, " ")
		if i == m.cursor {
			b.WriteString("▶ " + m.styles.SelectedRow.Render(line))
		} else {
			b.WriteString("  " + m.styles.Normal.Render(line))
		}
		b.WriteString("\n")
	}
	if m.result.HasMore() {
		b.WriteString(m.styles.Subtle.Render(fmt.Sprintf("  … %d more", m.result.TotalItems-len(m.result.Items))))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) cellValue(f dataview.Field, r plugins.Record) string {
	if f.ID == dataview.FieldVersion && r.HasUpdate() {
		return r.InstalledVersion() + "→" + r.Version
	}
	return dataview.Display(f, r)
}

func (m Model) renderDetail() string {
	rec, ok := m.selected()
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	title := m.styles.Bold.Render(rec.Name)
	if rec.HasUpdate() {
		title += " " + m.styles.UpdateBadge.Render("update available")
	}
	b.WriteString(" " + title + "\n")

	desc := search.StripHTML(rec.Description)
	if desc == "" {
		desc = "No description."
	}
	b.WriteString(" " + m.styles.Subtle.Render(runewidth.Truncate(desc, max(m.width-2, 10), "…")) + "\n")

	var meta []string
	if len(rec.Tags) > 0 {
		meta = append(meta, "tags: "+strings.Join(rec.Tags, ", "))
	}
	if rec.HomepageURL != "" {
		meta = append(meta, rec.HomepageURL)
	}
	b.WriteString(" " + m.styles.Subtle.Render(runewidth.Truncate(strings.Join(meta, " · "), max(m.width-2, 10), "…")) + "\n")
	return b.String()
}

func (m Model) renderSnackbar(n notify.Notice) string {
	switch n.Status {
	case notify.StatusSuccess:
		return " " + m.styles.SnackSuccess.Render("✓ "+n.Message)
	case notify.StatusError:
		return " " + m.styles.SnackError.Render("✗ "+n.Message)
	default:
		return " " + m.styles.SnackInfo.Render(n.Message)
	}
}

func (m Model) renderHelp() string {
	keys := []struct{ key, desc string }{
		{"/", "search"}, {"s/S", "sort"}, {"enter", "action"}, {"y", "copy url"},
		{"r", "reset"}, {"R", "reload"}, {"q", "quit"},
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = m.styles.Key.Render(k.key) + " " + m.styles.Subtle.Render(k.desc)
	}
	return " " + strings.Join(parts, "  ")
}
