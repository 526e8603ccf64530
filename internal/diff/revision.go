package diff

import (
	"errors"
	"fmt"
)

var (
	ErrModifyInFlight   = errors.New("a modification is already awaiting its result")
	ErrNothingToDecline = errors.New("no revision to decline")
)

// RevisionStack holds prior prompt texts, most recent last.
type RevisionStack struct {
	items []string
}

func (s *RevisionStack) Push(text string) {
	s.items = append(s.items, text)
}

func (s *RevisionStack) Pop() (string, bool) {
	if len(s.items) == 0 {
		return "", false
	}
	top := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return top, true
}

func (s *RevisionStack) Top() (string, bool) {
	if len(s.items) == 0 {
		return "", false
	}
	return s.items[len(s.items)-1], true
}

func (s *RevisionStack) Clear() {
	s.items = nil
}

func (s *RevisionStack) Len() int {
	return len(s.items)
}

// Review tracks the current prompt and the pending, un-accepted rewrites on
// top of it. It is not safe for concurrent use.
type Review struct {
	prompt  string
	stack   RevisionStack
	overlay []Line
	pending bool
}

func NewReview(prompt string) *Review {
	return &Review{prompt: prompt}
}

func (r *Review) Prompt() string {
	return r.prompt
}

// SetPrompt replaces the current text, as an operator edit does. The
// history is left alone.
func (r *Review) SetPrompt(text string) {
	r.prompt = text
}

// Depth is the number of rewrites that can still be declined.
func (r *Review) Depth() int {
	return r.stack.Len()
}

// Overlay is the alignment currently shown for review, nil when none.
func (r *Review) Overlay() []Line {
	return r.overlay
}

// Pending reports whether Begin was called without Complete or Abort.
func (r *Review) Pending() bool {
	return r.pending
}

// Begin snapshots the current prompt before a rewrite is requested.
func (r *Review) Begin() (string, error) {
	if r.pending {
		return "", ErrModifyInFlight
	}
	r.stack.Push(r.prompt)
	r.pending = true
	return r.prompt, nil
}

// Abort drops the snapshot taken by Begin when the rewrite never arrived.
func (r *Review) Abort() {
	if !r.pending {
		return
	}
	r.stack.Pop()
	r.pending = false
}

// Complete installs the rewritten prompt and returns the alignment against
// the snapshot.
func (r *Review) Complete(newText string) []Line {
	previous, _ := r.stack.Top()
	r.pending = false
	r.prompt = newText
	r.overlay = Align(previous, newText)
	return r.overlay
}

// Accept keeps the current prompt and forgets every pending revision.
func (r *Review) Accept() {
	r.stack.Clear()
	r.overlay = nil
	r.pending = false
}

// Decline restores the most recent snapshot. When older revisions remain the
// overlay becomes the alignment between the next one down and the restored
// text.
func (r *Review) Decline() (string, []Line, error) {
	if r.pending {
		return "", nil, ErrModifyInFlight
	}
	restored, ok := r.stack.Pop()
	if !ok {
		return "", nil, ErrNothingToDecline
	}
	r.prompt = restored
	r.overlay = nil
	if top, ok := r.stack.Top(); ok {
		r.overlay = Align(top, restored)
	}
	return restored, r.overlay, nil
}

// Banner is the heading shown above a review overlay.
func (r *Review) Banner() string {
	if d := r.Depth(); d > 1 {
		return fmt.Sprintf("Review changes (revision %d, %d undo steps available)", d, d)
	}
	return "Review changes"
}
