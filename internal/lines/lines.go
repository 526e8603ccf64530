// Package lines splits a byte stream into newline-terminated lines while
// carrying the unterminated tail across chunk boundaries.
package lines

import "bytes"

// Split appends chunk to buffer and returns every complete line (without the
// trailing '\n') plus the new buffer holding the incomplete remainder.
// Neither input is modified; returned lines do not alias chunk.
func Split(buffer, chunk []byte) ([][]byte, []byte) {
	joined := make([]byte, 0, len(buffer)+len(chunk))
	joined = append(joined, buffer...)
	joined = append(joined, chunk...)

	var out [][]byte
	for {
		idx := bytes.IndexByte(joined, '\n')
		if idx < 0 {
			break
		}
		out = append(out, joined[:idx:idx])
		joined = joined[idx+1:]
	}
	rest := make([]byte, len(joined))
	copy(rest, joined)
	return out, rest
}

// Splitter is a stateful convenience over Split for read loops.
type Splitter struct {
	buf []byte
}

// Feed consumes one chunk and returns the lines it completed.
func (s *Splitter) Feed(chunk []byte) [][]byte {
	var out [][]byte
	out, s.buf = Split(s.buf, chunk)
	return out
}

// Flush returns the pending unterminated fragment, if any, and resets.
func (s *Splitter) Flush() ([]byte, bool) {
	if len(s.buf) == 0 {
		return nil, false
	}
	rest := s.buf
	s.buf = nil
	return rest, true
}
