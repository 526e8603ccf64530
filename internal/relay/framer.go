package relay

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/Rorical/PromptMachine/internal/stream"
)

// PaddingSize is the width of the whitespace line written ahead of the first
// event so intermediaries with size-based buffers start forwarding.
const PaddingSize = 8192

// Framer writes one request's events, flushing after each, and lets exactly
// one terminal event through.
type Framer struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	start    time.Time
	terminal bool
	writeErr error
}

func NewFramer(w http.ResponseWriter, start time.Time) *Framer {
	f := &Framer{w: w, start: start}
	if fl, ok := w.(http.Flusher); ok {
		f.flusher = fl
	}
	return f
}

// Open commits the streaming headers, writes the padding line and flushes.
func (f *Framer) Open() {
	h := f.w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", stream.ContentType)
	h.Set("X-Accel-Buffering", "no")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Content-Encoding", "identity")
	f.w.WriteHeader(http.StatusOK)

	pad := append(bytes.Repeat([]byte{' '}, PaddingSize), '\n')
	f.write(pad)
}

func (f *Framer) Elapsed() time.Duration {
	return time.Since(f.start)
}

// Done reports whether a terminal event has been written.
func (f *Framer) Done() bool {
	return f.terminal
}

// Err is the first write failure, usually a departed client.
func (f *Framer) Err() error {
	return f.writeErr
}

func (f *Framer) Log(sev stream.Severity, msg string) {
	if f.terminal {
		return
	}
	f.emit(stream.NewLog(f.Elapsed(), sev, msg))
}

func (f *Framer) Logf(sev stream.Severity, format string, args ...any) {
	f.Log(sev, fmt.Sprintf(format, args...))
}

func (f *Framer) Delta(text string) {
	if f.terminal {
		return
	}
	f.emit(stream.DeltaEvent{Delta: text})
}

// Result writes the success terminal. It returns false when a terminal
// event was already written.
func (f *Framer) Result(ev stream.ResultEvent) bool {
	if f.terminal {
		return false
	}
	f.terminal = true
	f.emit(ev)
	return true
}

// Fail writes an error terminal without timing, used for rejections that
// happen before any upstream work.
func (f *Framer) Fail(msg string) bool {
	return f.fail(stream.ErrorEvent{Error: msg})
}

// FailAfter writes an error terminal carrying the elapsed milliseconds.
func (f *Framer) FailAfter(msg string, elapsed time.Duration) bool {
	ms := elapsed.Milliseconds()
	return f.fail(stream.ErrorEvent{Error: msg, ElapsedMs: &ms})
}

func (f *Framer) fail(ev stream.ErrorEvent) bool {
	if f.terminal {
		return false
	}
	f.terminal = true
	f.emit(ev)
	return true
}

func (f *Framer) emit(v any) {
	line, err := stream.Encode(v)
	if err != nil {
		line, _ = stream.Encode(stream.ErrorEvent{Error: "encode event: " + err.Error()})
	}
	f.write(line)
}

func (f *Framer) write(p []byte) {
	if f.writeErr != nil {
		return
	}
	if _, err := f.w.Write(p); err != nil {
		f.writeErr = err
		return
	}
	if f.flusher != nil {
		f.flusher.Flush()
	}
}
