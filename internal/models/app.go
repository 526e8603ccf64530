package models

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/Rorical/PromptMachine/internal/diff"
	"github.com/Rorical/PromptMachine/internal/stream"
	"github.com/Rorical/PromptMachine/internal/transport"
)

// Focus is the pane receiving keystrokes.
type Focus int

const (
	FocusPrompt Focus = iota
	FocusInstruction
)

// MaxLogEntries bounds the activity log kept for display.
const MaxLogEntries = 500

// ActionStatus mirrors the transport state of one action for display.
type ActionStatus struct {
	State transport.State
	Retry transport.RetryState
	Chars int
}

// AppModel represents the UI state - only local UI concerns
type AppModel struct {
	Editor      textarea.Model // Prompt editor
	Instruction textinput.Model
	Output      viewport.Model // Streaming answer or activity log
	Spinner     spinner.Model

	Logs           []LogEntry
	Response       string // Text streamed for the latest generation
	Result         *stream.ResultEvent
	ResultStatus   string
	ResultSeverity stream.Severity
	Generations    int

	Overlay []diff.Line // Non-nil while a modification is under review
	Banner  string
	Depth   int

	Actions  map[Action]ActionStatus
	Focus    Focus
	ShowLogs bool
	Status   string // Status bar text
	Width    int
	Height   int
}

func NewAppModel(prompt string) AppModel {
	editor := textarea.New()
	editor.Placeholder = "Write the prompt here..."
	editor.ShowLineNumbers = true
	editor.CharLimit = 0
	editor.MaxHeight = 0
	editor.SetValue(prompt)
	editor.Focus()

	instruction := textinput.New()
	instruction.Placeholder = "Describe how to modify the prompt, then press enter"
	instruction.Prompt = "modify> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return AppModel{
		Editor:      editor,
		Instruction: instruction,
		Output:      viewport.New(80, 10),
		Spinner:     sp,
		Actions: map[Action]ActionStatus{
			Generate: {State: transport.Idle},
			Modify:   {State: transport.Idle},
		},
		Focus:  FocusPrompt,
		Status: "Ready",
	}
}

// Busy reports whether any action is in flight.
func (m *AppModel) Busy() bool {
	for _, st := range m.Actions {
		if st.State.Active() {
			return true
		}
	}
	return false
}

// Reviewing reports whether a modification is waiting for accept or decline.
func (m *AppModel) Reviewing() bool {
	return m.Overlay != nil
}

// AppendLog keeps the newest MaxLogEntries entries.
func (m *AppModel) AppendLog(entry LogEntry) {
	m.Logs = append(m.Logs, entry)
	if over := len(m.Logs) - MaxLogEntries; over > 0 {
		m.Logs = append(m.Logs[:0], m.Logs[over:]...)
	}
}
