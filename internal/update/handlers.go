package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Rorical/PromptMachine/internal/eventbus"
	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/transport"
	"github.com/Rorical/PromptMachine/ui/components"
)

// HandleKeyMsgWithEventBus handles keyboard input using event bus
func HandleKeyMsgWithEventBus(appModel *models.AppModel, keyMsg tea.KeyMsg, eb *eventbus.EventBus) tea.Cmd {
	switch keyMsg.String() {
	case "ctrl+c":
		return tea.Quit
	case "ctrl+g":
		prompt := appModel.Editor.Value()
		if strings.TrimSpace(prompt) == "" {
			appModel.Status = "Nothing to generate: the prompt is empty"
			return nil
		}
		send(appModel, eb, eventbus.PromptEditedEvent{Text: prompt}, eventbus.GenerateRequestedEvent{})
		return nil
	case "tab":
		toggleFocus(appModel)
		return nil
	case "esc":
		setFocus(appModel, models.FocusPrompt)
		return nil
	case "ctrl+x":
		for _, kind := range []models.Action{models.Generate, models.Modify} {
			if appModel.Actions[kind].State.Active() {
				send(appModel, eb, eventbus.CancelActionEvent{Action: kind})
			}
		}
		return nil
	case "ctrl+y":
		if appModel.Reviewing() {
			send(appModel, eb, eventbus.AcceptChangesEvent{})
		}
		return nil
	case "ctrl+n":
		if appModel.Reviewing() {
			send(appModel, eb, eventbus.DeclineChangesEvent{})
		}
		return nil
	case "ctrl+l":
		appModel.ShowLogs = !appModel.ShowLogs
		refreshOutput(appModel)
		return nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		appModel.Output, cmd = appModel.Output.Update(keyMsg)
		return cmd
	case "enter":
		if appModel.Focus == models.FocusInstruction {
			instruction := strings.TrimSpace(appModel.Instruction.Value())
			if instruction == "" {
				return nil
			}
			send(appModel, eb, eventbus.PromptEditedEvent{Text: appModel.Editor.Value()}, eventbus.ModifyRequestedEvent{Instruction: instruction})
			appModel.Instruction.SetValue("")
			return nil
		}
	}

	var cmd tea.Cmd
	switch appModel.Focus {
	case models.FocusInstruction:
		appModel.Instruction, cmd = appModel.Instruction.Update(keyMsg)
	case models.FocusPrompt:
		// The prompt is read-only while a rewrite is under review.
		if !appModel.Reviewing() {
			appModel.Editor, cmd = appModel.Editor.Update(keyMsg)
		}
	}
	return cmd
}

func send(appModel *models.AppModel, eb *eventbus.EventBus, events ...eventbus.UIEvent) {
	for _, event := range events {
		if err := eb.SendToCore(event); err != nil {
			appModel.Status = "Error sending request: " + err.Error()
			return
		}
	}
}

func toggleFocus(appModel *models.AppModel) {
	if appModel.Focus == models.FocusPrompt {
		setFocus(appModel, models.FocusInstruction)
	} else {
		setFocus(appModel, models.FocusPrompt)
	}
}

func setFocus(appModel *models.AppModel, focus models.Focus) {
	appModel.Focus = focus
	if focus == models.FocusInstruction {
		appModel.Editor.Blur()
		appModel.Instruction.Focus()
		return
	}
	appModel.Instruction.Blur()
	if !appModel.Reviewing() {
		appModel.Editor.Focus()
	}
}

// CoreEventMsg wraps core events for Bubble Tea
type CoreEventMsg struct {
	Event eventbus.CoreEvent
}

// HandleCoreEvent processes events from the core
func HandleCoreEvent(appModel *models.AppModel, coreEventMsg CoreEventMsg) tea.Cmd {
	var cmd tea.Cmd
	switch event := coreEventMsg.Event.(type) {
	case eventbus.ActionStateEvent:
		status := appModel.Actions[event.Action]
		if event.Action == models.Generate && event.State == transport.Sending && event.Retry.Attempt <= 1 {
			appModel.Response = ""
			appModel.Result = nil
			status.Chars = 0
		}
		status.State = event.State
		status.Retry = event.Retry
		appModel.Actions[event.Action] = status
		appModel.Status = statusLine(appModel)
		if event.State == transport.Sending || event.State == transport.Retrying {
			cmd = appModel.Spinner.Tick
		}

	case eventbus.LogEntryEvent:
		appModel.AppendLog(event.Entry)

	case eventbus.DeltaEvent:
		status := appModel.Actions[event.Action]
		status.Chars = event.Chars
		appModel.Actions[event.Action] = status
		if event.Action == models.Generate {
			if appModel.Response == "" {
				appModel.ShowLogs = false
			}
			appModel.Response += event.Text
		}
		appModel.Status = statusLine(appModel)

	case eventbus.GenerationEvent:
		appModel.Result = event.Result
		appModel.ResultStatus = event.Status
		appModel.ResultSeverity = event.Severity
		appModel.Generations = event.Count
		appModel.ShowLogs = false

	case eventbus.ReviewEvent:
		appModel.Editor.SetValue(event.Prompt)
		appModel.Overlay = event.Overlay
		appModel.Banner = event.Banner
		appModel.Depth = event.Depth
		if appModel.Reviewing() {
			appModel.Editor.Blur()
		} else if appModel.Focus == models.FocusPrompt {
			appModel.Editor.Focus()
		}

	case eventbus.ActionFailedEvent:
		appModel.Status = statusLine(appModel)
	}

	refreshOutput(appModel)
	return cmd
}

func statusLine(appModel *models.AppModel) string {
	var parts []string
	for _, kind := range []models.Action{models.Generate, models.Modify} {
		st := appModel.Actions[kind]
		switch st.State {
		case transport.Sending, transport.Streaming:
			part := fmt.Sprintf("%s: %s", kind, st.State)
			if st.Retry.Attempt > 1 {
				part += fmt.Sprintf(" (attempt %d/%d)", st.Retry.Attempt, st.Retry.MaxAttempts)
			}
			if st.Chars > 0 {
				part += fmt.Sprintf(" - %d chars", st.Chars)
			}
			parts = append(parts, part)
		case transport.Retrying:
			parts = append(parts, fmt.Sprintf("%s: retrying in %s (attempt %d/%d)", kind, st.Retry.Delay, st.Retry.Attempt, st.Retry.MaxAttempts))
		case transport.Failed, transport.Cancelled:
			parts = append(parts, fmt.Sprintf("%s: %s", kind, st.State))
		}
	}
	if len(parts) == 0 {
		return "Ready"
	}
	return strings.Join(parts, " | ")
}

func refreshOutput(appModel *models.AppModel) {
	atBottom := appModel.Output.AtBottom()
	if appModel.ShowLogs {
		appModel.Output.SetContent(components.RenderLogs(appModel.Logs))
	} else {
		appModel.Output.SetContent(components.RenderResponse(appModel.Response, appModel.Result,
			appModel.ResultStatus, appModel.ResultSeverity, appModel.Generations))
	}
	if atBottom {
		appModel.Output.GotoBottom()
	}
}

// Layout heights outside the editor and output panes: two pane borders,
// the instruction box, the output title, the hints and the status bar.
const chromeHeight = 11

func HandleWindowSizeMsg(appModel *models.AppModel, sizeMsg tea.WindowSizeMsg) {
	appModel.Width = sizeMsg.Width
	appModel.Height = sizeMsg.Height

	inner := sizeMsg.Width - 6
	if inner < 10 {
		inner = 10
	}
	body := sizeMsg.Height - chromeHeight
	editorHeight := body / 2
	if editorHeight < 3 {
		editorHeight = 3
	}
	outputHeight := body - editorHeight
	if outputHeight < 3 {
		outputHeight = 3
	}

	appModel.Editor.SetWidth(inner)
	appModel.Editor.SetHeight(editorHeight)
	appModel.Instruction.Width = inner - len(appModel.Instruction.Prompt)
	appModel.Output.Width = inner
	appModel.Output.Height = outputHeight
	refreshOutput(appModel)
}
