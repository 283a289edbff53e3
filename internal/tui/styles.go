package tui

import "github.com/charmbracelet/lipgloss"

// 256-color palette.
const (
	colorAccent = lipgloss.Color("212")
	colorMuted  = lipgloss.Color("245")
	colorFaint  = lipgloss.Color("241")
	colorOK     = lipgloss.Color("78")
	colorWarn   = lipgloss.Color("214")
	colorError  = lipgloss.Color("196")
	colorPrompt = lipgloss.Color("111")
	colorText   = lipgloss.Color("252")
	colorBar    = lipgloss.Color("236")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorMuted)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)

	successStyle = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	dimStyle     = lipgloss.NewStyle().Foreground(colorFaint)

	queryStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrompt)
	resultStyle = lipgloss.NewStyle().Foreground(colorText)

	statusBarStyle  = lipgloss.NewStyle().Foreground(colorFaint).Background(colorBar).Padding(0, 1)
	statusWarnStyle = statusBarStyle.Foreground(colorWarn)
)
