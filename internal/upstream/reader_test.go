package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const streamBody = "data: {\"model\":\"gpt-5-mini-2025\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"{\\\"a\\\"\"}}]}\n\n" +
	"data: {not json}\n\n" +
	": keep-alive comment\n\n" +
	"data: {\"model\":\"\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\": 1}\"},\"finish_reason\":\"stop\"}]}\n\n" +
	"data: {\"model\":\"gpt-5-mini-2025\",\"choices\":[],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":4,\"total_tokens\":11}}\n\n" +
	"data: [DONE]\n\n"

func chunkedUpstream(t *testing.T, body string, size int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		if assert.NotNil(t, req.StreamOptions) {
			assert.True(t, req.StreamOptions.IncludeUsage)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < len(body); i += size {
			end := min(i+size, len(body))
			_, _ = io.WriteString(w, body[i:end])
			flusher.Flush()
		}
	}))
}

func newTestReader(url string) *Reader {
	return NewReader(Config{APIKey: "sk-test", BaseURL: url + "/v1/"})
}

func userRequest(prompt string) Request {
	return Request{
		Model:    DefaultModel,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	}
}

func TestReader_Stream(t *testing.T) {
	t.Run("Should assemble the same result for every chunk size", func(t *testing.T) {
		for _, size := range []int{1, 2, 7, 64, len(streamBody)} {
			srv := chunkedUpstream(t, streamBody, size)

			var deltas []string
			res, err := newTestReader(srv.URL).Stream(context.Background(), userRequest("hi"), func(d string) {
				deltas = append(deltas, d)
			})
			srv.Close()

			require.NoError(t, err, "chunk size %d", size)
			assert.True(t, res.OK())
			assert.Equal(t, `{"a": 1}`, res.Content, "chunk size %d", size)
			assert.Equal(t, res.Content, strings.Join(deltas, ""))
			assert.Equal(t, "stop", res.FinishReason)
			assert.Equal(t, "gpt-5-mini-2025", res.Model)
			require.NotNil(t, res.Usage)
			assert.Equal(t, 11, res.Usage.TotalTokens)
		}
	})

	t.Run("Should process a final line without trailing newline", func(t *testing.T) {
		body := `data: {"choices":[{"index":0,"delta":{"content":"tail"},"finish_reason":"length"}]}`
		srv := chunkedUpstream(t, body, 5)
		defer srv.Close()

		res, err := newTestReader(srv.URL).Stream(context.Background(), userRequest("hi"), nil)

		require.NoError(t, err)
		assert.Equal(t, "tail", res.Content)
		assert.Equal(t, "length", res.FinishReason)
		assert.Equal(t, DefaultModel, res.Model)
		assert.Nil(t, res.Usage)
	})

	t.Run("Should default the finish reason to unknown", func(t *testing.T) {
		srv := chunkedUpstream(t, "data: [DONE]\n\n", 100)
		defer srv.Close()

		res, err := newTestReader(srv.URL).Stream(context.Background(), userRequest("hi"), nil)

		require.NoError(t, err)
		assert.Empty(t, res.Content)
		assert.Equal(t, "unknown", res.FinishReason)
	})

	t.Run("Should report a non-200 status as data with the raw body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
		}))
		defer srv.Close()

		res, err := newTestReader(srv.URL).Stream(context.Background(), userRequest("hi"), nil)

		require.NoError(t, err)
		assert.False(t, res.OK())
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
		assert.Empty(t, res.TransportError)
		assert.Equal(t, "Incorrect API key provided", res.APIErrorMessage())
	})

	t.Run("Should report a refused connection as a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res, err := newTestReader(url).Stream(context.Background(), userRequest("hi"), nil)

		require.NoError(t, err)
		assert.NotEmpty(t, res.TransportError)
		assert.False(t, res.OK())
	})

	t.Run("Should return the context error when the caller cancels", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"x\"}}]}\n\n")
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{}, 1)
		go func() {
			<-started
			cancel()
		}()

		res, err := newTestReader(srv.URL).Stream(ctx, userRequest("hi"), func(string) {
			select {
			case started <- struct{}{}:
			default:
			}
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, res)
	})
}

func TestResult_APIErrorMessage(t *testing.T) {
	t.Run("Should fall back to the status when the body has no message", func(t *testing.T) {
		res := &Result{StatusCode: http.StatusBadGateway, Raw: []byte("<html>bad gateway</html>")}
		assert.Equal(t, "OpenAI API error (HTTP 502)", res.APIErrorMessage())
	})

	t.Run("Should be nil safe", func(t *testing.T) {
		var res *Result
		assert.Equal(t, "OpenAI API error (HTTP 0)", res.APIErrorMessage())
	})
}

func TestNewReader(t *testing.T) {
	t.Run("Should default to the public endpoint and original timeouts", func(t *testing.T) {
		r := NewReader(Config{APIKey: "k"})

		assert.Equal(t, "https://api.openai.com/v1/chat/completions", r.url)
		assert.Equal(t, 120*time.Second, r.client.GetClient().Timeout)
	})
}
