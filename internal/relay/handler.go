// Package relay accepts a prompt over HTTP, opens an upstream completion
// stream and re-frames it as line-delimited JSON events.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"

	"github.com/Rorical/PromptMachine/internal/logger"
	"github.com/Rorical/PromptMachine/internal/stream"
	"github.com/Rorical/PromptMachine/internal/upstream"
)

const (
	ActionGenerate = "generate"
	ActionModify   = stream.ActionModify

	MsgNoAPIKey           = "OPENAI_API_KEY environment variable is not set on this server."
	MsgMissingPrompt      = "Missing prompt"
	MsgMissingInstruction = "Missing modification instruction"

	editorSystemPrompt = "You are a prompt editor. You will receive a prompt and a modification instruction. " +
		"Apply the modification to the prompt and return ONLY the modified prompt text. " +
		"Do not add any explanations, commentary, markdown formatting, or code fences. " +
		"Return the prompt exactly as it should be used."

	instructionPreview = 80

	// MaxRequestBytes caps the request body read by Stream.
	MaxRequestBytes = 1 << 20
)

var ErrNoAPIKey = errors.New("no upstream API key configured")

// Streamer is the upstream dependency of the handler.
type Streamer interface {
	Stream(ctx context.Context, req upstream.Request, onDelta func(string)) (*upstream.Result, error)
}

type HandlerOptions struct {
	APIKey   string
	Model    string
	Upstream Streamer
	Metrics  *Metrics
}

type Handler struct {
	apiKey   string
	model    string
	upstream Streamer
	metrics  *Metrics
}

func NewHandler(opts HandlerOptions) *Handler {
	model := opts.Model
	if model == "" {
		model = upstream.DefaultModel
	}
	return &Handler{
		apiKey:   opts.APIKey,
		model:    model,
		upstream: opts.Upstream,
		metrics:  opts.Metrics,
	}
}

// Stream serves one relay request. The response is always 200; failures are
// reported in-band as the terminal event.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	defer h.metrics.streamStarted()()

	f := NewFramer(c.Writer, time.Now())
	f.Open()
	f.Logf(stream.SeverityInfo, "POST received from %s", c.ClientIP())

	if h.apiKey == "" || h.upstream == nil {
		f.Log(stream.SeverityErr, "ERROR: No API key configured")
		f.Fail(MsgNoAPIKey)
		h.metrics.observeRequest(ActionGenerate, outcomeConfigError)
		log.Error("rejecting stream", "error", ErrNoAPIKey)
		return
	}
	f.Logf(stream.SeverityInfo, "API key loaded (ends ...%s)", lastChars(h.apiKey, 4))

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBytes))
	f.Logf(stream.SeverityInfo, "Request body read - %d bytes", len(raw))

	var in stream.Request
	if err != nil || json.Unmarshal(raw, &in) != nil || in.Prompt == "" {
		f.Log(stream.SeverityErr, "ERROR: Missing or invalid prompt in request body")
		f.Fail(MsgMissingPrompt)
		h.metrics.observeRequest(ActionGenerate, outcomeClientError)
		return
	}
	f.Logf(stream.SeverityInfo, "Prompt parsed - %d chars", len(in.Prompt))

	action := ActionGenerate
	var req upstream.Request
	if in.Action == ActionModify {
		action = ActionModify
		if in.Instruction == "" {
			f.Log(stream.SeverityErr, "ERROR: Missing modification instruction")
			f.Fail(MsgMissingInstruction)
			h.metrics.observeRequest(action, outcomeClientError)
			return
		}
		f.Logf(stream.SeverityInfo, "Modification requested: \"%s\"", truncate(in.Instruction, instructionPreview))
		f.Log(stream.SeverityInfo, "Sending streaming modification request...")
		req = h.modifyRequest(in.Prompt, in.Instruction)
	} else {
		f.Logf(stream.SeverityInfo, "Sending streaming request - model: %s", h.model)
		req = h.generateRequest(in.Prompt)
	}

	f.Log(stream.SeverityInfo, "Streaming request started...")
	res, err := h.upstream.Stream(ctx, req, f.Delta)
	elapsed := f.Elapsed()
	if err != nil {
		h.metrics.observeRequest(action, outcomeCancelled)
		log.Info("client disconnected during stream", "action", action, "elapsed", elapsed, "error", err)
		return
	}
	h.metrics.observeUpstream(action, res.Timing.Total, len(res.Content))

	f.Logf(stream.SeverityInfo, "Stream complete - HTTP %d - %d chars", res.StatusCode, len(res.Content))
	f.Logf(stream.SeverityInfo, "Timing - connect: %dms - DNS: %dms - total: %dms",
		res.Timing.Connect.Milliseconds(), res.Timing.DNS.Milliseconds(), res.Timing.Total.Milliseconds())

	if res.TransportError != "" {
		f.Logf(stream.SeverityErr, "Transport ERROR: %s", res.TransportError)
		f.FailAfter("API request failed: "+res.TransportError, elapsed)
		h.metrics.observeRequest(action, outcomeTransportError)
		log.Warn("upstream transport failed", "action", action, "error", res.TransportError)
		return
	}
	if !res.OK() {
		msg := res.APIErrorMessage()
		f.Logf(stream.SeverityErr, "API ERROR (HTTP %d): %s", res.StatusCode, msg)
		f.FailAfter(msg, elapsed)
		h.metrics.observeRequest(action, outcomeUpstreamError)
		log.Warn("upstream returned an error", "action", action, "status", res.StatusCode, "message", msg)
		return
	}

	f.Logf(stream.SeverityInfo, "Model: %s - finish_reason: %s - response: %d chars",
		res.Model, res.FinishReason, len(res.Content))
	if res.Usage != nil {
		f.Logf(stream.SeverityInfo, "Tokens - prompt: %d - completion: %d - total: %d",
			res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.TotalTokens)
	}

	p := PostProcess(res.Content)
	if p.Stripped {
		f.Log(stream.SeverityInfo, "Stripped markdown code fences from response")
	}
	switch {
	case p.Parsed != nil:
		f.Logf(stream.SeverityOK, "JSON parsed successfully - %d top-level keys", p.TopLevel)
	case p.JSONError != nil:
		f.Logf(stream.SeverityWarn, "JSON parse FAILED: %s", *p.JSONError)
	}

	result := stream.ResultEvent{
		Raw:          res.Content,
		Parsed:       p.Parsed,
		Usage:        toUsage(res.Usage),
		FinishReason: res.FinishReason,
		ElapsedMs:    elapsed.Milliseconds(),
		JSONError:    p.JSONError,
		Model:        res.Model,
	}
	if action == ActionModify {
		result.Action = ActionModify
		result.Prompt = res.Content
		f.Logf(stream.SeverityOK, "Prompt modified successfully - %d chars", len(res.Content))
	}
	f.Logf(stream.SeverityOK, "Done - total server time: %dms", elapsed.Milliseconds())
	f.Result(result)
	h.metrics.observeRequest(action, outcomeOK)

	if err := f.Err(); err != nil {
		log.Debug("client stopped reading", "error", err)
	}
}

func (h *Handler) generateRequest(prompt string) upstream.Request {
	return upstream.Request{
		Model: h.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

func (h *Handler) modifyRequest(prompt, instruction string) upstream.Request {
	return upstream.Request{
		Model: h.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: editorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "CURRENT PROMPT:\n" + prompt + "\n\nMODIFICATION:\n" + instruction},
		},
	}
}

func toUsage(u *openai.Usage) *stream.Usage {
	if u == nil {
		return nil
	}
	return &stream.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
