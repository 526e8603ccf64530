package components

import (
	"fmt"
	"strings"

	"github.com/Rorical/PromptMachine/internal/diff"
	"github.com/Rorical/PromptMachine/ui/styles"
)

// RenderDiff draws an alignment with a one-character gutter per line.
func RenderDiff(lines []diff.Line, banner string, width int) string {
	var b strings.Builder

	added, removed := diff.Stats(lines)
	b.WriteString(styles.BannerStyle().Render(fmt.Sprintf("%s  +%d -%d", banner, added, removed)))
	b.WriteString("\n")

	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		switch line.Kind {
		case diff.Added:
			b.WriteString(styles.AddedStyle().Render("+ " + line.Text))
		case diff.Removed:
			b.WriteString(styles.RemovedStyle().Render("- " + line.Text))
		default:
			b.WriteString(styles.SameStyle().Render("  " + line.Text))
		}
	}

	return styles.PaneStyle(width, true).Render(b.String())
}
