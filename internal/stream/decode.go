package stream

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

type Kind int

const (
	KindLog Kind = iota + 1
	KindDelta
	KindResult
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindDelta:
		return "delta"
	case KindResult:
		return "result"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded relay line.
type Event struct {
	Kind   Kind
	Log    LogEvent
	Delta  string
	Result *ResultEvent
	Error  *ErrorEvent
}

func (e Event) Terminal() bool {
	return e.Kind == KindResult || e.Kind == KindError
}

// Decode classifies one line by key presence. Blank lines, padding and
// anything that is not a JSON object report ok == false.
func Decode(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' || !gjson.ValidBytes(line) {
		return Event{}, false
	}
	doc := gjson.ParseBytes(line)

	if doc.Get("log").Bool() {
		var ev LogEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindLog, Log: ev}, true
	}
	if delta := doc.Get("delta"); delta.Exists() {
		return Event{Kind: KindDelta, Delta: delta.String()}, true
	}
	if msg := doc.Get("error"); msg.Exists() && msg.String() != "" {
		ev := &ErrorEvent{Error: msg.String()}
		if elapsed := doc.Get("elapsed_ms"); elapsed.Exists() {
			ms := elapsed.Int()
			ev.ElapsedMs = &ms
		}
		return Event{Kind: KindError, Error: ev}, true
	}
	var res ResultEvent
	if err := json.Unmarshal(line, &res); err != nil {
		return Event{}, false
	}
	return Event{Kind: KindResult, Result: &res}, true
}
