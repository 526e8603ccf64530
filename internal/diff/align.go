// Package diff aligns two texts line by line and keeps the undo history of
// AI-assisted prompt rewrites.
package diff

import "strings"

type Kind int

const (
	Same Kind = iota
	Added
	Removed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "same"
	}
}

// Line is one row of an alignment.
type Line struct {
	Text string
	Kind Kind
}

// Align returns a longest-common-subsequence alignment of the lines of
// oldText and newText in document order. When a line could be either added
// or removed at the same cost, the addition is listed after the removal.
func Align(oldText, newText string) []Line {
	a := strings.Split(oldText, "\n")
	b := strings.Split(newText, "\n")
	m, n := len(a), len(b)

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	out := make([]Line, 0, m+n)
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && a[i-1] == b[j-1]:
			out = append(out, Line{Text: a[i-1], Kind: Same})
			i--
			j--
		case j > 0 && (i == 0 || dp[i][j-1] >= dp[i-1][j]):
			out = append(out, Line{Text: b[j-1], Kind: Added})
			j--
		default:
			out = append(out, Line{Text: a[i-1], Kind: Removed})
			i--
		}
	}

	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// Changed reports whether an alignment contains any addition or removal.
func Changed(lines []Line) bool {
	for _, l := range lines {
		if l.Kind != Same {
			return true
		}
	}
	return false
}

// Stats counts added and removed lines.
func Stats(lines []Line) (added, removed int) {
	for _, l := range lines {
		switch l.Kind {
		case Added:
			added++
		case Removed:
			removed++
		}
	}
	return added, removed
}
