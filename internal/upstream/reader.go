// Package upstream opens a token-streamed chat completion against an
// OpenAI-compatible endpoint and accumulates the streamed fragments.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/Rorical/PromptMachine/internal/lines"
	"github.com/Rorical/PromptMachine/internal/logger"
)

const readChunkSize = 4096

type Config struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

type Reader struct {
	client *resty.Client
	url    string
}

func NewReader(cfg Config) *Reader {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openai.DefaultConfig("").BaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	client := resty.New().
		SetTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: cfg.ConnectTimeout,
			DisableCompression:  true,
		}).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetAuthToken(cfg.APIKey)

	return &Reader{
		client: client,
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
	}
}

// Stream performs one streaming request. onDelta, when non-nil, receives
// every content fragment in order as it arrives. The returned error is
// reserved for caller cancellation; transport failures land in
// Result.TransportError.
func (r *Reader) Stream(ctx context.Context, req Request, onDelta func(string)) (*Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	body := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		SetDoNotParseResponse(true).
		EnableTrace().
		Post(r.url)

	res := &Result{Model: req.Model, FinishReason: unknownFinishReason}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		res.TransportError = err.Error()
		res.Timing.Total = time.Since(start)
		log.Warn("upstream request failed", "error", err)
		return res, nil
	}

	raw := resp.RawBody()
	defer raw.Close()

	res.StatusCode = resp.StatusCode()
	trace := resp.Request.TraceInfo()
	res.Timing.DNS = trace.DNSLookup
	res.Timing.Connect = trace.ConnTime

	s := &session{result: res, onDelta: onDelta}
	readErr := s.consume(raw)
	res.Timing.Total = time.Since(start)

	if readErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		res.TransportError = readErr.Error()
		log.Warn("upstream stream interrupted", "error", readErr, "chars", len(res.Content))
	}
	s.finish()

	log.Debug("upstream stream finished",
		"status", res.StatusCode,
		"chars", len(res.Content),
		"finish_reason", res.FinishReason,
		"total", res.Timing.Total)
	return res, nil
}

// session accumulates one stream's state.
type session struct {
	result   *Result
	onDelta  func(string)
	splitter lines.Splitter
	content  strings.Builder
	raw      bytes.Buffer
}

func (s *session) consume(body io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			s.raw.Write(chunk)
			for _, line := range s.splitter.Feed(chunk) {
				s.line(line)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

func (s *session) finish() {
	if tail, ok := s.splitter.Flush(); ok {
		s.line(tail)
	}
	s.result.Content = s.content.String()
	s.result.Raw = s.raw.Bytes()
}

func (s *session) line(raw []byte) {
	line := bytes.TrimSpace(raw)
	payload, ok := bytes.CutPrefix(line, []byte("data: "))
	if !ok {
		return
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return
	}
	if chunk.Model != "" {
		s.result.Model = chunk.Model
	}
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.content.WriteString(choice.Delta.Content)
			if s.onDelta != nil {
				s.onDelta(choice.Delta.Content)
			}
		}
		if choice.FinishReason != "" {
			s.result.FinishReason = string(choice.FinishReason)
		}
	}
	if chunk.Usage != nil {
		s.result.Usage = chunk.Usage
	}
}
