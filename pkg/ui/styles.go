package ui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	Header        lipgloss.Style
	Title         lipgloss.Style
	Online        lipgloss.Style
	Offline       lipgloss.Style
	Checking      lipgloss.Style
	UserLabel     lipgloss.Style
	UserBody      lipgloss.Style
	AssistantName lipgloss.Style
	Footer        lipgloss.Style
	Context       lipgloss.Style
	Thinking      lipgloss.Style
	ErrorBanner   lipgloss.Style
	Status        lipgloss.Style
	Input         lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Header: lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240")),
		Title:         lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Online:        lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Offline:       lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Checking:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		UserLabel:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		UserBody:      lipgloss.NewStyle().PaddingLeft(2),
		AssistantName: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Footer:        lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("244")),
		Context:       lipgloss.NewStyle().PaddingLeft(2).Italic(true).Foreground(lipgloss.Color("244")),
		Thinking:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		ErrorBanner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		Status: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")),
	}
}
