package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Rorical/PromptMachine/internal/diff"
	"github.com/Rorical/PromptMachine/internal/eventbus"
	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/models"
	"github.com/Rorical/PromptMachine/internal/stream"
	"github.com/Rorical/PromptMachine/internal/transport"
)

// Doer is the transport the session drives.
type Doer interface {
	Do(ctx context.Context, req stream.Request, obs transport.Observer) (*stream.ResultEvent, error)
}

// ModifyOutcome is what a successful modification leaves under review.
type ModifyOutcome struct {
	Result  *stream.ResultEvent
	Prompt  string
	Overlay []diff.Line
	Banner  string
	Depth   int
}

// Session is one operator's working state: the prompt under edit, its
// pending revisions and one action slot per kind. Progress is published on
// the event bus when one is attached.
type Session struct {
	client Doer
	bus    *eventbus.EventBus
	log    logger.Logger
	slots  *actionSlots

	mu          sync.Mutex
	review      *diff.Review
	generations int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(client Doer, bus *eventbus.EventBus, prompt string, log logger.Logger) *Session {
	if log == nil {
		log = logger.GetDefault()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		client: client,
		bus:    bus,
		log:    log,
		slots:  newActionSlots(),
		review: diff.NewReview(prompt),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the bus event loop in a goroutine.
func (s *Session) Start() {
	if s.bus == nil {
		return
	}
	s.wg.Add(1)
	go s.eventLoop()
}

// Stop cancels in-flight actions and waits for their goroutines.
func (s *Session) Stop() {
	s.cancel()
	s.slots.cancelAll()
	s.wg.Wait()
}

// Announce publishes informational lines, such as a welcome banner.
func (s *Session) Announce(lines ...string) {
	for _, line := range lines {
		s.notice("", stream.SeverityInfo, line)
	}
}

func (s *Session) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-s.bus.UIToCore():
			if !ok {
				return
			}
			s.handleUIEvent(event)
		}
	}
}

func (s *Session) handleUIEvent(event eventbus.UIEvent) {
	switch e := event.(type) {
	case eventbus.PromptEditedEvent:
		s.SetPrompt(e.Text)
	case eventbus.GenerateRequestedEvent:
		s.goAction(models.Generate, func(ctx context.Context) error {
			_, err := s.Generate(ctx)
			return err
		})
	case eventbus.ModifyRequestedEvent:
		s.goAction(models.Modify, func(ctx context.Context) error {
			_, err := s.Modify(ctx, e.Instruction)
			return err
		})
	case eventbus.AcceptChangesEvent:
		if err := s.Accept(); err != nil {
			s.notice(models.Modify, stream.SeverityWarn, "Cannot accept: "+err.Error())
		}
	case eventbus.DeclineChangesEvent:
		if _, _, err := s.Decline(); err != nil {
			s.notice(models.Modify, stream.SeverityWarn, "Cannot decline: "+err.Error())
		}
	case eventbus.CancelActionEvent:
		s.Cancel(e.Action)
	}
}

// goAction runs an action off the event loop. Precondition failures are
// reported here; transport outcomes are reported by the action itself.
func (s *Session) goAction(kind models.Action, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := run(s.ctx)
		switch {
		case errors.Is(err, ErrBusy):
			s.notice(kind, stream.SeverityWarn, fmt.Sprintf("A %s request is already running", kind))
		case errors.Is(err, ErrEmptyPrompt), errors.Is(err, ErrEmptyInstruction), errors.Is(err, diff.ErrModifyInFlight):
			s.notice(kind, stream.SeverityWarn, err.Error())
		}
	}()
}

// Generate sends the current prompt and returns the result terminal.
func (s *Session) Generate(ctx context.Context) (*stream.ResultEvent, error) {
	prompt := s.Prompt()
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	runCtx, run, err := s.slots.acquire(ctx, models.Generate)
	if err != nil {
		return nil, err
	}
	defer s.slots.release(models.Generate, run)

	res, err := s.client.Do(runCtx, stream.Request{Prompt: prompt}, s.observer(models.Generate, run))
	if err != nil {
		s.fail(models.Generate, err)
		return nil, err
	}

	s.mu.Lock()
	s.generations++
	count := s.generations
	s.mu.Unlock()

	status, sev := res.Status()
	s.notice(models.Generate, sev, fmt.Sprintf("Generation #%d: %s", count, status))
	s.publish(eventbus.GenerationEvent{Result: res, Count: count, Status: status, Severity: sev})
	return res, nil
}

// Modify asks for a rewrite of the current prompt. On success the rewrite
// becomes the current prompt and stays under review until accepted or
// declined.
func (s *Session) Modify(ctx context.Context, instruction string) (*ModifyOutcome, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyInstruction
	}
	if strings.TrimSpace(s.Prompt()) == "" {
		return nil, ErrEmptyPrompt
	}
	runCtx, run, err := s.slots.acquire(ctx, models.Modify)
	if err != nil {
		return nil, err
	}
	defer s.slots.release(models.Modify, run)

	s.mu.Lock()
	snapshot, err := s.review.Begin()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	req := stream.Request{Prompt: snapshot, Instruction: instruction, Action: stream.ActionModify}
	res, err := s.client.Do(runCtx, req, s.observer(models.Modify, run))
	if err != nil {
		s.mu.Lock()
		s.review.Abort()
		s.mu.Unlock()
		s.fail(models.Modify, err)
		return nil, err
	}
	if strings.TrimSpace(res.Text()) == "" {
		s.mu.Lock()
		s.review.Abort()
		s.mu.Unlock()
		s.slots.update(models.Modify, run, transport.Failed, transport.RetryState{})
		s.publish(eventbus.ActionStateEvent{Action: models.Modify, State: transport.Failed})
		s.fail(models.Modify, ErrEmptyRewrite)
		return nil, ErrEmptyRewrite
	}

	s.mu.Lock()
	out := &ModifyOutcome{
		Result:  res,
		Overlay: s.review.Complete(res.Text()),
		Prompt:  s.review.Prompt(),
		Banner:  s.review.Banner(),
		Depth:   s.review.Depth(),
	}
	s.mu.Unlock()

	s.notice(models.Modify, stream.SeverityOK, "Prompt modified - review the changes")
	s.publish(eventbus.ReviewEvent{Prompt: out.Prompt, Overlay: out.Overlay, Banner: out.Banner, Depth: out.Depth})
	return out, nil
}

// Accept keeps the current prompt and clears the revision history.
func (s *Session) Accept() error {
	s.mu.Lock()
	if s.review.Pending() {
		s.mu.Unlock()
		return diff.ErrModifyInFlight
	}
	s.review.Accept()
	prompt := s.review.Prompt()
	s.mu.Unlock()

	s.notice(models.Modify, stream.SeverityOK, "Prompt changes accepted - history cleared")
	s.publish(eventbus.ReviewEvent{Prompt: prompt})
	return nil
}

// Decline restores the previous revision and returns it with the overlay
// that remains under review, if any.
func (s *Session) Decline() (string, []diff.Line, error) {
	s.mu.Lock()
	restored, overlay, err := s.review.Decline()
	depth := s.review.Depth()
	banner := s.review.Banner()
	s.mu.Unlock()
	if err != nil {
		return "", nil, err
	}

	s.notice(models.Modify, stream.SeverityInfo,
		fmt.Sprintf("Prompt changes declined - reverted to previous version (%d steps remaining)", depth))
	ev := eventbus.ReviewEvent{Prompt: restored, Overlay: overlay, Depth: depth}
	if overlay != nil {
		ev.Banner = banner
	}
	s.publish(ev)
	return restored, overlay, nil
}

// Cancel aborts the in-flight action of the given kind. It reports whether
// there was anything to cancel and is safe to call repeatedly.
func (s *Session) Cancel(kind models.Action) bool {
	return s.slots.cancel(kind)
}

func (s *Session) State(kind models.Action) transport.State {
	st, _, _ := s.slots.state(kind)
	return st
}

func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.review.Prompt()
}

func (s *Session) SetPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.review.SetPrompt(text)
}

func (s *Session) Overlay() []diff.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.review.Overlay()
}

func (s *Session) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.review.Depth()
}

func (s *Session) Generations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations
}

func (s *Session) observer(kind models.Action, run uint64) transport.Observer {
	return transport.ObserverFuncs{
		State: func(st transport.State, rs transport.RetryState) {
			s.slots.update(kind, run, st, rs)
			s.publish(eventbus.ActionStateEvent{Action: kind, State: st, Retry: rs})
			if st == transport.Success && rs.Attempt > 1 {
				s.notice(kind, stream.SeverityOK, fmt.Sprintf("Succeeded on attempt %d", rs.Attempt))
			}
		},
		Log: func(ev stream.LogEvent) {
			s.publish(eventbus.LogEntryEvent{Entry: models.ServerEntry(kind, ev)})
		},
		Delta: func(text string, chars int) {
			s.publish(eventbus.DeltaEvent{Action: kind, Text: text, Chars: chars})
		},
		Retry: func(rs transport.RetryState, reason error) {
			s.notice(kind, stream.SeverityWarn, transport.RetryMessage(rs, reason))
		},
	}
}

func (s *Session) fail(kind models.Action, err error) {
	var (
		exhausted *transport.ExhaustedError
		appErr    *transport.ApplicationError
	)
	cancelled := errors.Is(err, transport.ErrCancelled)
	switch {
	case cancelled:
		s.notice(kind, stream.SeverityInfo, actionTitle(kind)+" cancelled")
	case errors.As(err, &exhausted):
		s.notice(kind, stream.SeverityErr,
			fmt.Sprintf("%s gave up after %d attempts: %s", actionTitle(kind), exhausted.Attempts, transport.ReasonLabel(exhausted.Last)))
	case errors.As(err, &appErr):
		s.notice(kind, stream.SeverityErr, "Error: "+appErr.Message)
	default:
		s.notice(kind, stream.SeverityErr, "Error: "+err.Error())
	}
	s.log.Debug("action ended without result", "action", kind, "error", err)
	s.publish(eventbus.ActionFailedEvent{Action: kind, Err: err, Cancelled: cancelled})
}

func (s *Session) notice(kind models.Action, sev stream.Severity, msg string) {
	s.publish(eventbus.LogEntryEvent{Entry: models.ClientEntry(kind, sev, msg)})
}

func (s *Session) publish(event eventbus.CoreEvent) {
	if s.bus == nil {
		return
	}
	var err error
	switch event.(type) {
	case eventbus.ReviewEvent, eventbus.GenerationEvent, eventbus.ActionFailedEvent:
		err = s.bus.SendToUIWait(s.ctx, event)
	default:
		err = s.bus.SendToUI(event)
	}
	if err != nil {
		s.log.Debug("dropping UI event", "event", fmt.Sprintf("%T", event), "error", err)
	}
}

func actionTitle(kind models.Action) string {
	switch kind {
	case models.Generate:
		return "Generation"
	case models.Modify:
		return "Modify"
	default:
		return string(kind)
	}
}
