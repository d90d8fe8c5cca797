package main

import "github.com/charmbracelet/lipgloss"

// Unified color palette
var (
	primaryColor   = lipgloss.Color("109")
	accentColor    = lipgloss.Color("171")
	barBackground  = lipgloss.Color("233")
	mutedColor     = lipgloss.Color("239")
	subtleColor    = lipgloss.Color("244")
	warningColor   = lipgloss.Color("179")
	dangerColor    = lipgloss.Color("167")
	highlightColor = lipgloss.Color("171")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Background(barBackground)

	titleNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Background(barBackground)

	selectedStyle = lipgloss.NewStyle().
			Foreground(highlightColor).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Strikethrough(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	cursorStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	groupStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	countStyle = lipgloss.NewStyle().
			Foreground(subtleColor)

	overdueStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	dueSoonStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(dangerColor)
)
