package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Rorical/PromptMachine/internal/stream"
)

func PaneStyle(width int, focused bool) lipgloss.Style {
	border := lipgloss.Color("240")
	if focused {
		border = lipgloss.Color("62")
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(width - 4)
}

func StatusStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Background(lipgloss.Color("235")).
		Padding(0, 1).
		Width(width)
}

func TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("141")).
		Bold(true).
		Padding(0, 1)
}

func HintStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Padding(0, 1)
}

func BannerStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true)
}

func AddedStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("114")).
		Background(lipgloss.Color("22"))
}

func RemovedStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("210")).
		Background(lipgloss.Color("52")).
		Strikethrough(true)
}

func SameStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))
}

func ElapsedStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Width(8).
		Align(lipgloss.Right)
}

// SeverityStyle colours a log line by severity.
func SeverityStyle(sev stream.Severity) lipgloss.Style {
	style := lipgloss.NewStyle()
	switch sev {
	case stream.SeverityOK:
		return style.Foreground(lipgloss.Color("114"))
	case stream.SeverityWarn:
		return style.Foreground(lipgloss.Color("214"))
	case stream.SeverityErr:
		return style.Foreground(lipgloss.Color("203")).Bold(true)
	default:
		return style.Foreground(lipgloss.Color("252"))
	}
}
