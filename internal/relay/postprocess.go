package relay

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// Processed is the structured view of a completed answer.
type Processed struct {
	JSONContent string
	Stripped    bool
	Parsed      json.RawMessage
	JSONError   *string
	// TopLevel is the key count of an object or element count of an array.
	TopLevel int
}

// PostProcess unwraps a fenced code block if present and decodes the
// remainder as JSON. Empty content yields no error.
func PostProcess(content string) Processed {
	p := Processed{JSONContent: content}
	if m := fencePattern.FindStringSubmatch(content); m != nil {
		p.JSONContent = strings.TrimSpace(m[1])
		p.Stripped = true
	}

	var value any
	if err := json.Unmarshal([]byte(p.JSONContent), &value); err != nil {
		if content != "" {
			msg := err.Error()
			p.JSONError = &msg
		}
		return p
	}
	if value == nil {
		return p
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(p.JSONContent)); err == nil {
		p.Parsed = compact.Bytes()
	}
	switch v := value.(type) {
	case map[string]any:
		p.TopLevel = len(v)
	case []any:
		p.TopLevel = len(v)
	}
	return p
}
