package session

import "strings"

// NewContent returns the part of next that was appended since prev, and
// whether anything should be emitted.
//
// Both snapshots are split into lines. The delta starts at the first index
// where the lines differ, or at the end of the shorter snapshot when one is a
// prefix of the other, and runs to the end of next. An empty prev emits next
// whole.
func NewContent(prev, next string) (string, bool) {
	if prev == next {
		return "", false
	}
	if prev == "" {
		return next, next != ""
	}

	prevLines := strings.Split(prev, "\n")
	nextLines := strings.Split(next, "\n")

	start := min(len(prevLines), len(nextLines))
	for i := 0; i < start; i++ {
		if prevLines[i] != nextLines[i] {
			start = i
			break
		}
	}

	delta := strings.Join(nextLines[start:], "\n")
	return delta, delta != ""
}
