package eventbus

import (
	"github.com/Rorical/PromptMachine/internal/diff"
	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/stream"
	"github.com/Rorical/PromptMachine/internal/transport"
)

// UIEvent represents events sent from UI to Core
type UIEvent interface {
	UIEvent()
}

// CoreEvent represents events sent from Core to UI
type CoreEvent interface {
	CoreEvent()
}

// PromptEditedEvent carries the editor text whenever the operator changed it.
type PromptEditedEvent struct {
	Text string
}

func (PromptEditedEvent) UIEvent() {}

type GenerateRequestedEvent struct{}

func (GenerateRequestedEvent) UIEvent() {}

type ModifyRequestedEvent struct {
	Instruction string
}

func (ModifyRequestedEvent) UIEvent() {}

type AcceptChangesEvent struct{}

func (AcceptChangesEvent) UIEvent() {}

type DeclineChangesEvent struct{}

func (DeclineChangesEvent) UIEvent() {}

type CancelActionEvent struct {
	Action models.Action
}

func (CancelActionEvent) UIEvent() {}

// ActionStateEvent reports every transition of an action's transport state.
type ActionStateEvent struct {
	Action models.Action
	State  transport.State
	Retry  transport.RetryState
}

func (ActionStateEvent) CoreEvent() {}

type LogEntryEvent struct {
	Entry models.LogEntry
}

func (LogEntryEvent) CoreEvent() {}

type DeltaEvent struct {
	Action models.Action
	Text   string
	Chars  int
}

func (DeltaEvent) CoreEvent() {}

// GenerationEvent carries a successful generation.
type GenerationEvent struct {
	Result   *stream.ResultEvent
	Count    int
	Status   string
	Severity stream.Severity
}

func (GenerationEvent) CoreEvent() {}

// ReviewEvent reflects the prompt and its pending revisions after a
// modification, accept or decline. Overlay is nil when nothing is under
// review.
type ReviewEvent struct {
	Prompt  string
	Overlay []diff.Line
	Banner  string
	Depth   int
}

func (ReviewEvent) CoreEvent() {}

// ActionFailedEvent reports an action that ended without a result.
// Cancellation is reported here too, with Cancelled set.
type ActionFailedEvent struct {
	Action    models.Action
	Err       error
	Cancelled bool
}

func (ActionFailedEvent) CoreEvent() {}
