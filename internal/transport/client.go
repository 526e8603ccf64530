// Package transport posts prompts to a relay and reads its event stream,
// retrying transient failures with a fixed delay.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/Rorical/PromptMachine/internal/lines"
	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/stream"
)

const (
	DefaultMaxAttempts = 5
	DefaultDelay       = 3 * time.Second

	readChunkSize = 4096
)

type Config struct {
	URL         string
	MaxAttempts int
	Delay       time.Duration
	// Timeout bounds one attempt including the whole stream. Zero means
	// only the context applies.
	Timeout  time.Duration
	Username string
	Password string
}

// Observer receives progress for one Do call. Callbacks run on the calling
// goroutine.
type Observer interface {
	OnState(state State, rs RetryState)
	OnLog(ev stream.LogEvent)
	OnDelta(text string, charsSoFar int)
	OnRetry(rs RetryState, reason error)
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	State func(State, RetryState)
	Log   func(stream.LogEvent)
	Delta func(string, int)
	Retry func(RetryState, error)
}

func (o ObserverFuncs) OnState(s State, rs RetryState) {
	if o.State != nil {
		o.State(s, rs)
	}
}

func (o ObserverFuncs) OnLog(ev stream.LogEvent) {
	if o.Log != nil {
		o.Log(ev)
	}
}

func (o ObserverFuncs) OnDelta(text string, chars int) {
	if o.Delta != nil {
		o.Delta(text, chars)
	}
}

func (o ObserverFuncs) OnRetry(rs RetryState, reason error) {
	if o.Retry != nil {
		o.Retry(rs, reason)
	}
}

type Client struct {
	cfg  Config
	http *resty.Client
}

func NewClient(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", stream.StreamingMediaType)
	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}
	return &Client{cfg: cfg, http: client}
}

func (c *Client) Config() Config {
	return c.cfg
}

// Do runs one action to completion. It returns the result terminal on
// success, *ApplicationError for an error terminal, *ExhaustedError when
// every attempt failed transiently and ErrCancelled when ctx ends first.
func (c *Client) Do(ctx context.Context, req stream.Request, obs Observer) (*stream.ResultEvent, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	log := logger.FromContext(ctx).With("action", actionName(req))

	rs := RetryState{MaxAttempts: c.cfg.MaxAttempts, Delay: c.cfg.Delay}
	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), retry.NewConstant(c.cfg.Delay))

	var result *stream.ResultEvent
	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rs.Attempt++
		res, err := c.attempt(ctx, req, rs, obs)
		if err == nil {
			result = res
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsTransient(err) {
			return err
		}
		last = err
		log.Warn("attempt failed", "attempt", rs.Attempt, "max_attempts", rs.MaxAttempts, "error", err)
		if rs.Attempt < rs.MaxAttempts {
			obs.OnState(Retrying, rs)
			obs.OnRetry(rs, err)
		}
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		obs.OnState(Success, rs)
		if rs.Attempt > 1 {
			log.Info("succeeded after retry", "attempt", rs.Attempt)
		}
		return result, nil
	case ctx.Err() != nil:
		rs.Cancelled = true
		obs.OnState(Cancelled, rs)
		log.Debug("request cancelled", "attempt", rs.Attempt)
		return nil, ErrCancelled
	case IsTransient(err):
		obs.OnState(Failed, rs)
		return nil, &ExhaustedError{Attempts: rs.Attempt, Last: last}
	default:
		obs.OnState(Failed, rs)
		return nil, err
	}
}

func (c *Client) attempt(ctx context.Context, req stream.Request, rs RetryState, obs Observer) (*stream.ResultEvent, error) {
	obs.OnState(Sending, rs)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !strings.Contains(resp.Header().Get("Content-Type"), stream.StreamingMediaType) {
		_, _ = io.Copy(io.Discard, body)
		return nil, &GatewayError{StatusCode: resp.StatusCode()}
	}
	obs.OnState(Streaming, rs)

	r := reading{obs: obs}
	buf := make([]byte, readChunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			for _, line := range r.splitter.Feed(buf[:n]) {
				r.handle(line)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if r.terminal != nil && ctx.Err() == nil {
				break
			}
			return nil, fmt.Errorf("%w: %w", ErrNetwork, rerr)
		}
	}
	if tail, ok := r.splitter.Flush(); ok {
		r.handle(tail)
	}

	switch {
	case r.terminal == nil:
		return nil, ErrEmptyResponse
	case r.terminal.Kind == stream.KindError:
		return nil, &ApplicationError{Message: r.terminal.Error.Error, ElapsedMs: r.terminal.Error.ElapsedMs}
	default:
		return r.terminal.Result, nil
	}
}

// reading is the per-attempt stream state.
type reading struct {
	obs      Observer
	splitter lines.Splitter
	chars    int
	terminal *stream.Event
}

func (r *reading) handle(line []byte) {
	ev, ok := stream.Decode(line)
	if !ok {
		return
	}
	switch ev.Kind {
	case stream.KindLog:
		r.obs.OnLog(ev.Log)
	case stream.KindDelta:
		r.chars += utf8.RuneCountInString(ev.Delta)
		r.obs.OnDelta(ev.Delta, r.chars)
	default:
		if r.terminal == nil {
			r.terminal = &ev
		}
	}
}

func actionName(req stream.Request) string {
	if req.Action == stream.ActionModify {
		return stream.ActionModify
	}
	return "generate"
}
