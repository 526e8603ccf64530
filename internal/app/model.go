package app

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/update"
	"github.com/Rorical/PromptMachine/ui/components"
)

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(
		m.appModel.Spinner.Tick,
		m.dispatcher.ListenForCoreEvents(),
	)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle core events and continue listening
	if coreEvent, ok := msg.(update.CoreEventMsg); ok {
		cmd := update.HandleCoreEvent(&m.appModel, coreEvent)
		return m, tea.Batch(cmd, m.dispatcher.ListenForCoreEvents())
	}

	eventBus := m.dispatcher.GetEventBus()
	cmd := update.HandleUpdateWithEventBus(&m.appModel, msg, eventBus)

	return m, cmd
}

func (m *AppModel) View() string {
	am := &m.appModel
	width := am.Width
	if width == 0 {
		width = 80
	}

	var b strings.Builder

	if am.Reviewing() {
		b.WriteString(components.RenderDiff(am.Overlay, am.Banner, width))
	} else {
		b.WriteString(components.RenderEditor(am.Editor, am.Focus == models.FocusPrompt, width))
	}
	b.WriteString("\n")
	b.WriteString(components.RenderInstruction(am.Instruction, am.Focus == models.FocusInstruction, width))
	b.WriteString("\n")

	title := "Response"
	if am.ShowLogs {
		title = "Activity"
	}
	b.WriteString(components.RenderOutput(title, am.Output.View(), width))
	b.WriteString("\n")
	b.WriteString(components.RenderHints(am.Reviewing()))
	b.WriteString("\n")
	b.WriteString(components.RenderStatus(am.Status, am.Busy(), am.Spinner.View(), width))

	return b.String()
}
