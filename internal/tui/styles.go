package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	activeTabStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("63"))
	inactiveTabStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("252")).Background(lipgloss.Color("237"))
	fileStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	activeFileStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	successStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	faintStyle       = lipgloss.NewStyle().Faint(true)
	paneStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)
