package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel          = "gpt-5-mini"
	DefaultRequestTimeout = 120 * time.Second
	DefaultConnectTimeout = 10 * time.Second

	unknownFinishReason = "unknown"
)

// Request is one chat completion call. Streaming and usage reporting are
// always switched on by the reader.
type Request struct {
	Model    string
	Messages []openai.ChatCompletionMessage
}

type Timing struct {
	DNS     time.Duration
	Connect time.Duration
	Total   time.Duration
}

// Result is everything one upstream exchange produced. A non-200 status is
// reported here rather than as an error.
type Result struct {
	Content        string
	Usage          *openai.Usage
	FinishReason   string
	Model          string
	StatusCode     int
	TransportError string
	Raw            []byte
	Timing         Timing
}

// OK reports a completed exchange with HTTP 200.
func (r *Result) OK() bool {
	return r != nil && r.TransportError == "" && r.StatusCode == http.StatusOK
}

// APIErrorMessage extracts error.message from a non-200 body, falling back
// to a generic message naming the status.
func (r *Result) APIErrorMessage() string {
	if r == nil {
		return "OpenAI API error (HTTP 0)"
	}
	var body openai.ErrorResponse
	if err := json.Unmarshal(r.Raw, &body); err == nil && body.Error != nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return fmt.Sprintf("OpenAI API error (HTTP %d)", r.StatusCode)
}
