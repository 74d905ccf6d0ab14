package tui

import "github.com/charmbracelet/lipgloss"

func (m Model) renderBanner() string {
	theme := PurpleTheme()
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color(theme.Primary)).
		Bold(true).
		Padding(0, 1)

	title := style.Render("WPNAS Plugins")
	if m.version == "" {
		return title
	}
	return title + m.styles.Subtle.Render(m.version)
}
