package services

import (
	"fmt"
	"unicode"

	"pdf-rag-chat/models"
)

// TextSplitter cuts text into overlapping windows of at most size runes.
// Each chunk after the first starts exactly overlap runes before the end of
// the previous one, so dropping the first overlap runes of every later chunk
// and concatenating reproduces the input.
type TextSplitter struct {
	size    int
	overlap int
}

// NewTextSplitter validates the window parameters.
func NewTextSplitter(size, overlap int) (*TextSplitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrInvalidConfig, size, overlap)
	}
	return &TextSplitter{size: size, overlap: overlap}, nil
}

// Split returns the chunks of text in document order. A window end is pulled
// back to the nearest paragraph break, line break or whitespace found in the
// last fifth of the window; without one the cut is made at exactly size runes.
func (s *TextSplitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for {
		end := start + s.size
		if end >= n {
			chunks = append(chunks, string(runes[start:n]))
			return chunks
		}

		end = s.snap(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))
		start = end - s.overlap
	}
}

// snap picks the cut position in (lo, end]. lo keeps every step moving
// forward by at least one rune.
func (s *TextSplitter) snap(runes []rune, start, end int) int {
	lo := max(end-s.size/5, start+s.overlap+1)
	if lo >= end {
		return end
	}

	for _, isBreak := range []func(i int) bool{
		func(i int) bool { return i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' },
		func(i int) bool { return runes[i-1] == '\n' },
		func(i int) bool { return unicode.IsSpace(runes[i-1]) },
	} {
		for i := end; i > lo; i-- {
			if isBreak(i) {
				return i
			}
		}
	}
	return end
}
