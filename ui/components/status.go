package components

import (
	"github.com/Rorical/PromptMachine/ui/styles"
)

func RenderStatus(status string, busy bool, spinner string, width int) string {
	statusStyle := styles.StatusStyle(width)

	statusContent := status
	if busy {
		statusContent = spinner + " " + statusContent
	}

	return statusStyle.Render(statusContent)
}

func RenderHints(reviewing bool) string {
	if reviewing {
		return styles.HintStyle().Render("ctrl+y accept  ctrl+n decline  ctrl+x cancel  ctrl+c quit")
	}
	return styles.HintStyle().Render("ctrl+g generate  tab modify  ctrl+x cancel  ctrl+l log/response  ctrl+c quit")
}
