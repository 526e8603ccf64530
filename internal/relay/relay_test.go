package relay

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/stream"
	"github.com/Rorical/PromptMachine/internal/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUpstream struct {
	deltas []string
	result *upstream.Result
	err    error
	got    upstream.Request
	calls  int
}

func (f *fakeUpstream) Stream(_ context.Context, req upstream.Request, onDelta func(string)) (*upstream.Result, error) {
	f.calls++
	f.got = req
	for _, d := range f.deltas {
		onDelta(d)
	}
	return f.result, f.err
}

func okUpstream(deltas ...string) *fakeUpstream {
	return &fakeUpstream{
		deltas: deltas,
		result: &upstream.Result{
			Content:      strings.Join(deltas, ""),
			FinishReason: "stop",
			Model:        "gpt-5-mini-2025",
			StatusCode:   http.StatusOK,
			Usage:        &openai.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		},
	}
}

type response struct {
	recorder *httptest.ResponseRecorder
	lines    []string
	events   []stream.Event
}

func (r response) terminals() []stream.Event {
	var out []stream.Event
	for _, ev := range r.events {
		if ev.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

func (r response) logs() []string {
	var out []string
	for _, ev := range r.events {
		if ev.Kind == stream.KindLog {
			out = append(out, ev.Log.Message)
		}
	}
	return out
}

func (r response) deltas() string {
	var b strings.Builder
	for _, ev := range r.events {
		if ev.Kind == stream.KindDelta {
			b.WriteString(ev.Delta)
		}
	}
	return b.String()
}

func newTestServer(apiKey string, up Streamer, cfg ServerConfig) *Server {
	h := NewHandler(HandlerOptions{APIKey: apiKey, Upstream: up, Metrics: NewMetrics()})
	return NewServer(cfg, h, NewMetrics(), logger.NewForTests())
}

func post(t *testing.T, s *Server, path, body string) response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	res := response{recorder: rec}
	sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		res.lines = append(res.lines, line)
		if ev, ok := stream.Decode([]byte(line)); ok {
			res.events = append(res.events, ev)
		}
	}
	require.NoError(t, sc.Err())
	return res
}

func assertSingleTerminalLast(t *testing.T, r response) stream.Event {
	t.Helper()
	terms := r.terminals()
	require.Len(t, terms, 1)
	require.NotEmpty(t, r.events)
	last := r.events[len(r.events)-1]
	assert.True(t, last.Terminal(), "terminal event must be the last line")
	return terms[0]
}

func TestHandler_Generate(t *testing.T) {
	t.Run("Should commit streaming headers and padding before any event", func(t *testing.T) {
		s := newTestServer("sk-abcd1234", okUpstream(`{"a":1}`), ServerConfig{})
		r := post(t, s, "/", `{"prompt":"hello"}`)

		h := r.recorder.Header()
		assert.Equal(t, http.StatusOK, r.recorder.Code)
		assert.Equal(t, "text/event-stream; charset=utf-8", h.Get("Content-Type"))
		assert.Equal(t, "no", h.Get("X-Accel-Buffering"))
		assert.Equal(t, "no-cache", h.Get("Cache-Control"))
		assert.Equal(t, "identity", h.Get("Content-Encoding"))
		assert.NotEmpty(t, h.Get(RequestIDHeader))
		require.NotEmpty(t, r.lines)
		assert.Equal(t, strings.Repeat(" ", PaddingSize), r.lines[0])
	})

	t.Run("Should forward deltas in order and finish with one result", func(t *testing.T) {
		up := okUpstream(`{"gre`, `eting":`, ` "hi"}`)
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		r := post(t, s, "/api/v1/stream", `{"prompt":"write json"}`)

		assert.Equal(t, `{"greeting": "hi"}`, r.deltas())
		term := assertSingleTerminalLast(t, r)
		require.Equal(t, stream.KindResult, term.Kind)
		assert.Equal(t, `{"greeting": "hi"}`, term.Result.Raw)
		assert.JSONEq(t, `{"greeting":"hi"}`, string(term.Result.Parsed))
		assert.Nil(t, term.Result.JSONError)
		assert.Equal(t, "stop", term.Result.FinishReason)
		assert.Equal(t, 7, term.Result.Usage.TotalTokens)
		assert.Empty(t, term.Result.Action)

		require.Len(t, up.got.Messages, 1)
		assert.Equal(t, openai.ChatMessageRoleUser, up.got.Messages[0].Role)
		assert.Equal(t, "write json", up.got.Messages[0].Content)
		assert.Equal(t, upstream.DefaultModel, up.got.Model)

		logs := r.logs()
		assert.Contains(t, logs, "API key loaded (ends ...1234)")
		assert.Contains(t, logs, "JSON parsed successfully - 1 top-level keys")
		assert.NotContains(t, logs, "Stripped markdown code fences from response")
	})

	t.Run("Should strip code fences and say so", func(t *testing.T) {
		s := newTestServer("sk-abcd1234", okUpstream("```json\n{\"a\": [1, 2]}\n```"), ServerConfig{})
		r := post(t, s, "/", `{"prompt":"x"}`)

		term := assertSingleTerminalLast(t, r)
		assert.JSONEq(t, `{"a":[1,2]}`, string(term.Result.Parsed))
		assert.Contains(t, term.Result.Raw, "```json")
		assert.Contains(t, r.logs(), "Stripped markdown code fences from response")
	})

	t.Run("Should report a decode failure inside a successful result", func(t *testing.T) {
		s := newTestServer("sk-abcd1234", okUpstream("hello there"), ServerConfig{})
		r := post(t, s, "/", `{"prompt":"x"}`)

		term := assertSingleTerminalLast(t, r)
		require.Equal(t, stream.KindResult, term.Kind)
		require.NotNil(t, term.Result.JSONError)
		assert.False(t, term.Result.HasParsed())
	})
}

func TestHandler_Modify(t *testing.T) {
	t.Run("Should send the editor prompt and mark the result as a modification", func(t *testing.T) {
		up := okUpstream("Be brief.\n", "Answer in French.")
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		r := post(t, s, "/", `{"prompt":"Be brief.","instruction":"add French","action":"modify"}`)

		term := assertSingleTerminalLast(t, r)
		require.Equal(t, stream.KindResult, term.Kind)
		assert.Equal(t, stream.ActionModify, term.Result.Action)
		assert.Equal(t, "Be brief.\nAnswer in French.", term.Result.Prompt)

		require.Len(t, up.got.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, up.got.Messages[0].Role)
		assert.True(t, strings.HasPrefix(up.got.Messages[0].Content, "You are a prompt editor."))
		assert.Equal(t, "CURRENT PROMPT:\nBe brief.\n\nMODIFICATION:\nadd French", up.got.Messages[1].Content)
		assert.Contains(t, r.logs(), `Modification requested: "add French"`)
	})

	t.Run("Should reject a modification without instruction", func(t *testing.T) {
		up := okUpstream("x")
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		r := post(t, s, "/", `{"prompt":"Be brief.","action":"modify"}`)

		term := assertSingleTerminalLast(t, r)
		require.Equal(t, stream.KindError, term.Kind)
		assert.Equal(t, MsgMissingInstruction, term.Error.Error)
		assert.Zero(t, up.calls)
	})
}

func TestHandler_Rejections(t *testing.T) {
	t.Run("Should fail without an API key before reading the body", func(t *testing.T) {
		up := okUpstream("x")
		s := newTestServer("", up, ServerConfig{})
		r := post(t, s, "/", `{"prompt":"x"}`)

		term := assertSingleTerminalLast(t, r)
		require.Equal(t, stream.KindError, term.Kind)
		assert.Equal(t, MsgNoAPIKey, term.Error.Error)
		assert.Nil(t, term.Error.ElapsedMs)
		assert.Zero(t, up.calls)
	})

	for _, body := range []string{"", "not json", `{"prompt":""}`, `{"instruction":"x"}`} {
		t.Run("Should answer missing prompt for body "+body, func(t *testing.T) {
			s := newTestServer("sk-abcd1234", okUpstream("x"), ServerConfig{})
			r := post(t, s, "/", body)

			term := assertSingleTerminalLast(t, r)
			assert.Equal(t, MsgMissingPrompt, term.Error.Error)
		})
	}

	t.Run("Should answer missing prompt for an oversized body", func(t *testing.T) {
		up := okUpstream("x")
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		body := `{"prompt":"` + strings.Repeat("a", MaxRequestBytes) + `"}`
		r := post(t, s, "/", body)

		term := assertSingleTerminalLast(t, r)
		assert.Equal(t, MsgMissingPrompt, term.Error.Error)
		assert.Zero(t, up.calls)
	})
}

func TestHandler_UpstreamFailures(t *testing.T) {
	t.Run("Should relay the upstream error message with elapsed time", func(t *testing.T) {
		up := &fakeUpstream{result: &upstream.Result{
			StatusCode: http.StatusTooManyRequests,
			Raw:        []byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`),
		}}
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		r := post(t, s, "/", `{"prompt":"x"}`)

		term := assertSingleTerminalLast(t, r)
		require.Equal(t, stream.KindError, term.Kind)
		assert.Equal(t, "Rate limit reached", term.Error.Error)
		assert.NotNil(t, term.Error.ElapsedMs)
	})

	t.Run("Should treat a non-200 without a body as fatal", func(t *testing.T) {
		up := &fakeUpstream{result: &upstream.Result{StatusCode: http.StatusBadGateway}}
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		r := post(t, s, "/", `{"prompt":"x"}`)

		term := assertSingleTerminalLast(t, r)
		assert.Equal(t, "OpenAI API error (HTTP 502)", term.Error.Error)
	})

	t.Run("Should prefix transport failures", func(t *testing.T) {
		up := &fakeUpstream{result: &upstream.Result{TransportError: "dial tcp: connection refused"}}
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		r := post(t, s, "/", `{"prompt":"x"}`)

		term := assertSingleTerminalLast(t, r)
		assert.Equal(t, "API request failed: dial tcp: connection refused", term.Error.Error)
	})

	t.Run("Should write no terminal when the client went away", func(t *testing.T) {
		up := &fakeUpstream{err: context.Canceled}
		s := newTestServer("sk-abcd1234", up, ServerConfig{})
		r := post(t, s, "/", `{"prompt":"x"}`)

		assert.Empty(t, r.terminals())
	})
}

func TestFramer(t *testing.T) {
	t.Run("Should let only the first terminal through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f := NewFramer(rec, time.Now())
		f.Open()

		assert.True(t, f.Result(stream.ResultEvent{Raw: "first"}))
		assert.False(t, f.Fail("second"))
		assert.False(t, f.FailAfter("third", time.Second))
		assert.False(t, f.Result(stream.ResultEvent{Raw: "fourth"}))
		f.Log(stream.SeverityInfo, "late log")
		f.Delta("late delta")

		var terminals, others int
		for _, line := range strings.Split(rec.Body.String(), "\n") {
			ev, ok := stream.Decode([]byte(line))
			if !ok {
				continue
			}
			if ev.Terminal() {
				terminals++
				assert.Equal(t, "first", ev.Result.Raw)
			} else {
				others++
			}
		}
		assert.Equal(t, 1, terminals)
		assert.Zero(t, others)
		assert.True(t, f.Done())
	})

	t.Run("Should stop writing after a write failure", func(t *testing.T) {
		w := &failingWriter{ResponseRecorder: httptest.NewRecorder()}
		f := NewFramer(w, time.Now())
		f.Open()
		f.Delta("x")

		assert.Error(t, f.Err())
		assert.Equal(t, 1, w.writes)
	})
}

type failingWriter struct {
	*httptest.ResponseRecorder
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("broken pipe")
}

func TestPostProcess(t *testing.T) {
	t.Run("Should leave unfenced content as is", func(t *testing.T) {
		p := PostProcess(`["a","b"]`)

		assert.False(t, p.Stripped)
		assert.Equal(t, 2, p.TopLevel)
		assert.Equal(t, `["a","b"]`, string(p.Parsed))
	})

	t.Run("Should unwrap a bare fence", func(t *testing.T) {
		p := PostProcess("Here you go:\n```\n{\"k\": true}\n```\nthanks")

		assert.True(t, p.Stripped)
		assert.Equal(t, `{"k": true}`, p.JSONContent)
		assert.Equal(t, `{"k":true}`, string(p.Parsed))
	})

	t.Run("Should not report an error for empty content", func(t *testing.T) {
		p := PostProcess("")

		assert.Nil(t, p.JSONError)
		assert.Nil(t, p.Parsed)
	})
}

func TestServer_Routes(t *testing.T) {
	t.Run("Should serve health and metrics", func(t *testing.T) {
		s := newTestServer("sk-abcd1234", okUpstream("x"), ServerConfig{})

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "promptmachine_relay_in_flight_streams")
	})

	t.Run("Should require basic credentials when configured", func(t *testing.T) {
		s := newTestServer("sk-abcd1234", okUpstream("x"), ServerConfig{Username: "op", Password: "secret"})

		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"x"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"x"}`))
		req.SetBasicAuth("op", "secret")
		rec = httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"raw":"x"`)
	})

	t.Run("Should echo a caller supplied request id", func(t *testing.T) {
		s := newTestServer("sk-abcd1234", okUpstream("x"), ServerConfig{})
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt":"x"}`))
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	})
}
