package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	t.Run("Should mark a replaced middle line as removed then added", func(t *testing.T) {
		got := Align("a\nb\nc", "a\nx\nc")

		assert.Equal(t, []Line{
			{Text: "a", Kind: Same},
			{Text: "b", Kind: Removed},
			{Text: "x", Kind: Added},
			{Text: "c", Kind: Same},
		}, got)
	})

	t.Run("Should return all same lines for identical input", func(t *testing.T) {
		text := "one\ntwo\n\nthree"
		got := Align(text, text)

		require.Len(t, got, 4)
		for _, l := range got {
			assert.Equal(t, Same, l.Kind)
		}
		assert.False(t, Changed(got))
	})

	t.Run("Should handle empty texts as one empty line", func(t *testing.T) {
		got := Align("", "new")

		assert.Equal(t, []Line{{Text: "", Kind: Removed}, {Text: "new", Kind: Added}}, got)
	})

	t.Run("Should reproduce both sides from the alignment", func(t *testing.T) {
		oldText := "keep\ndrop 1\nkeep 2\ndrop 2\ntail"
		newText := "head\nkeep\nkeep 2\nadded\ntail\nend"
		got := Align(oldText, newText)

		var left, right []string
		for _, l := range got {
			if l.Kind != Added {
				left = append(left, l.Text)
			}
			if l.Kind != Removed {
				right = append(right, l.Text)
			}
		}
		assert.Equal(t, []string{"keep", "drop 1", "keep 2", "drop 2", "tail"}, left)
		assert.Equal(t, []string{"head", "keep", "keep 2", "added", "tail", "end"}, right)

		added, removed := Stats(got)
		assert.Equal(t, 3, added)
		assert.Equal(t, 2, removed)
	})
}

func TestRevisionStack(t *testing.T) {
	t.Run("Should pop in reverse push order", func(t *testing.T) {
		var s RevisionStack
		s.Push("v0")
		s.Push("v1")

		top, ok := s.Top()
		require.True(t, ok)
		assert.Equal(t, "v1", top)
		assert.Equal(t, 2, s.Len())

		v, _ := s.Pop()
		assert.Equal(t, "v1", v)
		v, _ = s.Pop()
		assert.Equal(t, "v0", v)
		_, ok = s.Pop()
		assert.False(t, ok)
	})
}

func TestReview(t *testing.T) {
	t.Run("Should walk back two rewrites one level at a time", func(t *testing.T) {
		r := NewReview("P0")

		_, err := r.Begin()
		require.NoError(t, err)
		r.Complete("P1")
		_, err = r.Begin()
		require.NoError(t, err)
		overlay := r.Complete("P2")

		assert.Equal(t, 2, r.Depth())
		assert.Equal(t, []Line{{Text: "P1", Kind: Removed}, {Text: "P2", Kind: Added}}, overlay)
		assert.Equal(t, "Review changes (revision 2, 2 undo steps available)", r.Banner())

		restored, overlay, err := r.Decline()
		require.NoError(t, err)
		assert.Equal(t, "P1", restored)
		assert.Equal(t, "P1", r.Prompt())
		assert.Equal(t, 1, r.Depth())
		assert.Equal(t, Align("P0", "P1"), overlay)

		restored, overlay, err = r.Decline()
		require.NoError(t, err)
		assert.Equal(t, "P0", restored)
		assert.Zero(t, r.Depth())
		assert.Nil(t, overlay)
		assert.Nil(t, r.Overlay())

		_, _, err = r.Decline()
		assert.ErrorIs(t, err, ErrNothingToDecline)
	})

	t.Run("Should keep the latest text and clear history on accept", func(t *testing.T) {
		r := NewReview("P0")
		_, _ = r.Begin()
		r.Complete("P1")
		_, _ = r.Begin()
		r.Complete("P2")

		r.Accept()

		assert.Equal(t, "P2", r.Prompt())
		assert.Zero(t, r.Depth())
		assert.Nil(t, r.Overlay())
		assert.Equal(t, "Review changes", r.Banner())
	})

	t.Run("Should drop the snapshot when the rewrite fails", func(t *testing.T) {
		r := NewReview("P0")
		snap, err := r.Begin()
		require.NoError(t, err)
		assert.Equal(t, "P0", snap)
		assert.True(t, r.Pending())

		r.Abort()

		assert.Zero(t, r.Depth())
		assert.False(t, r.Pending())
		assert.Equal(t, "P0", r.Prompt())
	})

	t.Run("Should refuse a second rewrite while one is pending", func(t *testing.T) {
		r := NewReview("P0")
		_, _ = r.Begin()

		_, err := r.Begin()
		assert.ErrorIs(t, err, ErrModifyInFlight)
		_, _, err = r.Decline()
		assert.ErrorIs(t, err, ErrModifyInFlight)
		assert.Equal(t, 1, r.Depth())
	})
}
