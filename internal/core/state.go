package core

import (
	"context"
	"errors"
	"sync"

	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/transport"
)

var (
	ErrBusy             = errors.New("action already in progress")
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrEmptyInstruction = errors.New("modification instruction is empty")
	ErrUnknownAction    = errors.New("unknown action")
	ErrEmptyRewrite     = errors.New("model returned an empty rewrite")
)

// actionSlot tracks the one request an action kind may have in flight.
type actionSlot struct {
	state  transport.State
	retry  transport.RetryState
	cancel context.CancelFunc
	runID  uint64
}

// actionSlots guards the per-kind slots.
type actionSlots struct {
	mu    sync.Mutex
	slots map[models.Action]*actionSlot
	runs  uint64
}

func newActionSlots() *actionSlots {
	return &actionSlots{
		slots: map[models.Action]*actionSlot{
			models.Generate: {state: transport.Idle},
			models.Modify:   {state: transport.Idle},
		},
	}
}

// acquire moves an idle or finished slot to Sending and returns the context
// bound to the new run.
func (a *actionSlots) acquire(parent context.Context, kind models.Action) (context.Context, uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slots[kind]
	if !ok {
		return nil, 0, ErrUnknownAction
	}
	if slot.state.Active() {
		return nil, 0, ErrBusy
	}
	ctx, cancel := context.WithCancel(parent)
	a.runs++
	slot.state = transport.Sending
	slot.retry = transport.RetryState{}
	slot.cancel = cancel
	slot.runID = a.runs
	return ctx, slot.runID, nil
}

// update records a transition for the given run. Stale runs are ignored.
func (a *actionSlots) update(kind models.Action, run uint64, state transport.State, rs transport.RetryState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slots[kind]
	if !ok || slot.runID != run {
		return
	}
	slot.state = state
	slot.retry = rs
}

// release finishes a run. A run that never reached a terminal state is
// recorded as failed.
func (a *actionSlots) release(kind models.Action, run uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slots[kind]
	if !ok || slot.runID != run {
		return
	}
	if slot.cancel != nil {
		slot.cancel()
		slot.cancel = nil
	}
	if !slot.state.Terminal() {
		slot.state = transport.Failed
	}
}

func (a *actionSlots) cancel(kind models.Action) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slots[kind]
	if !ok || !slot.state.Active() || slot.cancel == nil {
		return false
	}
	slot.cancel()
	return true
}

func (a *actionSlots) state(kind models.Action) (transport.State, transport.RetryState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slots[kind]
	if !ok {
		return transport.Idle, transport.RetryState{}, ErrUnknownAction
	}
	return slot.state, slot.retry, nil
}

func (a *actionSlots) cancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, slot := range a.slots {
		if slot.cancel != nil {
			slot.cancel()
		}
	}
}
