package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	mutedStyleColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	titleStyleColor = lipgloss.AdaptiveColor{Light: "#071330", Dark: "#F652A0"}
)

func Title(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(titleStyleColor).Render(text)
}

func Muted(text string) string {
	return lipgloss.NewStyle().Foreground(mutedStyleColor).Render(text)
}

// MaxWidth cuts text to width cells, ending it with an ellipsis.
func MaxWidth(text string, width int) string {
	if lipgloss.Width(text) > width && width > 3 {
		runes := []rune(text)
		if len(runes) > width-3 {
			runes = runes[:width-3]
		}
		text = string(runes) + "..."
	}
	return text
}
