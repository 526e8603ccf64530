package lines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toStrings(in [][]byte) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		out = append(out, string(l))
	}
	return out
}

func TestSplit(t *testing.T) {
	t.Run("Should return complete lines and keep the tail", func(t *testing.T) {
		got, rest := Split(nil, []byte("one\ntwo\nthr"))

		assert.Equal(t, []string{"one", "two"}, toStrings(got))
		assert.Equal(t, "thr", string(rest))
	})

	t.Run("Should join a carried fragment with the next chunk", func(t *testing.T) {
		got, rest := Split([]byte("thr"), []byte("ee\n"))

		assert.Equal(t, []string{"three"}, toStrings(got))
		assert.Empty(t, rest)
	})

	t.Run("Should keep empty lines", func(t *testing.T) {
		got, rest := Split(nil, []byte("a\n\nb\n"))

		assert.Equal(t, []string{"a", "", "b"}, toStrings(got))
		assert.Empty(t, rest)
	})

	t.Run("Should not alias the input chunk", func(t *testing.T) {
		chunk := []byte("abc\ndef")
		got, rest := Split(nil, chunk)
		chunk[0] = 'X'
		chunk[4] = 'Y'

		assert.Equal(t, "abc", string(got[0]))
		assert.Equal(t, "def", string(rest))
	})
}

func TestSplitter(t *testing.T) {
	t.Run("Should yield identical lines for every chunking of the same input", func(t *testing.T) {
		input := []byte("data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\ntrailing")
		var want []string
		{
			var s Splitter
			want = toStrings(s.Feed(input))
			tail, ok := s.Flush()
			require.True(t, ok)
			want = append(want, string(tail))
		}
		for size := 1; size <= len(input); size++ {
			var s Splitter
			var got []string
			for i := 0; i < len(input); i += size {
				end := min(i+size, len(input))
				got = append(got, toStrings(s.Feed(input[i:end]))...)
			}
			tail, ok := s.Flush()
			require.True(t, ok)
			got = append(got, string(tail))
			require.Equal(t, want, got, "chunk size %d", size)
		}
	})

	t.Run("Should report no fragment when input ended on a newline", func(t *testing.T) {
		var s Splitter
		s.Feed([]byte("x\n"))

		_, ok := s.Flush()
		assert.False(t, ok)
	})
}
