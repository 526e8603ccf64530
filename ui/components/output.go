package components

import (
	"fmt"
	"strings"

	"github.com/tidwall/pretty"

	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/stream"
	"github.com/Rorical/PromptMachine/ui/styles"
)

func RenderLogs(entries []models.LogEntry) string {
	var b strings.Builder

	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		elapsed := entry.Elapsed
		if entry.Source == models.Client {
			elapsed = entry.Time.Format("15:04:05")
		}
		b.WriteString(styles.ElapsedStyle().Render(elapsed))
		b.WriteString(" ")
		b.WriteString(styles.SeverityStyle(entry.Severity).Render(entry.Message))
	}

	return b.String()
}

// RenderResponse shows the parsed JSON of a finished generation, or the raw
// streamed text while it is still arriving.
func RenderResponse(text string, result *stream.ResultEvent, status string, sev stream.Severity, count int) string {
	var b strings.Builder

	if result != nil {
		b.WriteString(styles.SeverityStyle(sev).Render(fmt.Sprintf("Generation #%d: %s", count, status)))
		b.WriteString("\n\n")
		if result.HasParsed() {
			b.Write(pretty.Color(pretty.Pretty(result.Parsed), nil))
			return b.String()
		}
		text = result.Raw
	}
	b.WriteString(text)

	return b.String()
}

func RenderOutput(title, body string, width int) string {
	return styles.TitleStyle().Render(title) + "\n" + styles.PaneStyle(width, false).Render(body)
}
