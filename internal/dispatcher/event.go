package dispatcher

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Rorical/PromptMachine/internal/eventbus"
	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/update"
)

// EventDispatcher handles routing events between core and UI
type EventDispatcher struct {
	eventBus *eventbus.EventBus
	log      logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewEventDispatcher(eventBus *eventbus.EventBus, log logger.Logger) *EventDispatcher {
	if log == nil {
		log = logger.GetDefault()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventDispatcher{
		eventBus: eventBus,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start reports bus failures to the log.
func (ed *EventDispatcher) Start() {
	ed.eventBus.SetErrorCallback(func(err eventbus.EventBusError) {
		ed.log.Debug("event bus error", "operation", err.Operation, "error", err.Err)
	})
}

func (ed *EventDispatcher) Stop() {
	ed.cancel()
}

func (ed *EventDispatcher) GetEventBus() *eventbus.EventBus {
	return ed.eventBus
}

// ListenForCoreEvents waits for the next core event. The model re-arms it
// after every delivered event.
func (ed *EventDispatcher) ListenForCoreEvents() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ed.ctx.Done():
			return nil
		case event, ok := <-ed.eventBus.CoreToUI():
			if !ok {
				return nil
			}
			return update.CoreEventMsg{Event: event}
		}
	}
}
