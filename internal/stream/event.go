// Package stream defines the line-delimited events a relay writes to its
// client: progress logs, content deltas and exactly one terminal object.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityOK   Severity = "ok"
	SeverityWarn Severity = "warn"
	SeverityErr  Severity = "err"
)

// ContentType is what a relay response must declare for a client to treat it
// as a live stream. The body is NDJSON; the event-stream type is what proxies
// recognise as "do not buffer".
const ContentType = "text/event-stream; charset=utf-8"

// StreamingMediaType is the substring clients look for in Content-Type.
const StreamingMediaType = "text/event-stream"

// ActionModify marks the terminal object of a prompt modification.
const ActionModify = "modify"

// Request is the body a client posts to the relay. Action "modify" asks for
// a prompt rewrite following Instruction.
type Request struct {
	Prompt      string `json:"prompt"`
	Instruction string `json:"instruction,omitempty"`
	Action      string `json:"action,omitempty"`
}

// LogEvent is informational and never terminal.
type LogEvent struct {
	Log      bool     `json:"log"`
	Elapsed  string   `json:"t"`
	Message  string   `json:"msg"`
	Severity Severity `json:"type"`
}

// DeltaEvent is an incremental content fragment.
type DeltaEvent struct {
	Delta string `json:"delta"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResultEvent is the successful terminal event. Action and Prompt are set
// only for modifications.
type ResultEvent struct {
	Raw          string          `json:"raw"`
	Parsed       json.RawMessage `json:"parsed"`
	Usage        *Usage          `json:"usage"`
	FinishReason string          `json:"finish_reason"`
	ElapsedMs    int64           `json:"elapsed_ms"`
	JSONError    *string         `json:"json_error"`
	Model        string          `json:"model"`
	Action       string          `json:"action,omitempty"`
	Prompt       string          `json:"prompt,omitempty"`
}

// ErrorEvent is the failed terminal event.
type ErrorEvent struct {
	Error     string `json:"error"`
	ElapsedMs *int64 `json:"elapsed_ms,omitempty"`
}

// ElapsedLabel renders a duration the way log events carry it ("123ms").
func ElapsedLabel(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func NewLog(elapsed time.Duration, sev Severity, msg string) LogEvent {
	if sev == "" {
		sev = SeverityInfo
	}
	return LogEvent{Log: true, Elapsed: ElapsedLabel(elapsed), Message: msg, Severity: sev}
}

// Encode renders v as a single newline-terminated JSON line.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HasParsed reports whether the content decoded to a non-null JSON value.
func (r *ResultEvent) HasParsed() bool {
	trimmed := bytes.TrimSpace(r.Parsed)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Text is the content a caller should use: the modified prompt for a
// modification, the raw answer otherwise.
func (r *ResultEvent) Text() string {
	if r.Action == ActionModify && r.Prompt != "" {
		return r.Prompt
	}
	return r.Raw
}

// Status classifies a generation result by finish reason and decode outcome.
func (r *ResultEvent) Status() (string, Severity) {
	switch {
	case r.FinishReason == "stop" && r.HasParsed():
		return "OK", SeverityOK
	case r.FinishReason == "length":
		return "Truncated", SeverityWarn
	case r.JSONError != nil:
		return "Partial: JSON parse failed: " + *r.JSONError, SeverityWarn
	default:
		return "Partial: finish_reason: " + r.FinishReason, SeverityWarn
	}
}
