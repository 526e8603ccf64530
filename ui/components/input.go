package components

import (
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/Rorical/PromptMachine/ui/styles"
)

func RenderEditor(editor textarea.Model, focused bool, width int) string {
	return styles.PaneStyle(width, focused).Render(editor.View())
}

func RenderInstruction(input textinput.Model, focused bool, width int) string {
	return styles.PaneStyle(width, focused).Render(input.View())
}
