package services

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-chat/models"
)

// rejoin drops the overlapping head of every chunk after the first.
func rejoin(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}

func TestNewTextSplitterValidation(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
		wantErr       bool
	}{
		{"valid", 10, 2, false},
		{"no overlap", 10, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -5, 0, true},
		{"overlap equals size", 10, 10, true},
		{"overlap above size", 10, 12, true},
		{"negative overlap", 10, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTextSplitter(tt.size, tt.overlap)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitShortSentences(t *testing.T) {
	s, err := NewTextSplitter(10, 2)
	require.NoError(t, err)

	chunks := s.Split("Alpha. Beta. Gamma.")
	assert.Equal(t, []string{"Alpha. Bet", "eta. Gamma", "ma."}, chunks)
	assert.Equal(t, "Alpha. Beta. Gamma.", rejoin(chunks, 2))
}

func TestSplitPrefersWhitespace(t *testing.T) {
	s, err := NewTextSplitter(20, 0)
	require.NoError(t, err)

	chunks := s.Split("the quick brown fox jumps over the lazy dog")
	require.Len(t, chunks, 3)
	assert.Equal(t, "the quick brown fox ", chunks[0])
	assert.Equal(t, "jumps over the lazy ", chunks[1])
	assert.Equal(t, "dog", chunks[2])
}

func TestSplitPrefersParagraphBreak(t *testing.T) {
	s, err := NewTextSplitter(20, 0)
	require.NoError(t, err)

	chunks := s.Split("first part of a\n\nsecond part here and more")
	assert.Equal(t, "first part of a\n\n", chunks[0])
}

func TestSplitEdgeCases(t *testing.T) {
	s, err := NewTextSplitter(5, 1)
	require.NoError(t, err)

	assert.Nil(t, s.Split(""))
	assert.Equal(t, []string{"abc"}, s.Split("abc"))
	assert.Equal(t, []string{"abcde"}, s.Split("abcde"))

	// Multi-byte runes count as one character.
	chunks := s.Split("ééééééééé")
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 5)
	}
	assert.Equal(t, "ééééééééé", rejoin(chunks, 1))
}

func TestSplitIsDeterministic(t *testing.T) {
	s, err := NewTextSplitter(50, 10)
	require.NoError(t, err)

	text := strings.Repeat("Retrieval augmented generation grounds answers.\n", 20)
	assert.Equal(t, s.Split(text), s.Split(text))
}

func TestSplitReconstructsInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdefghij \n.,éß")

	for iter := 0; iter < 300; iter++ {
		size := 1 + rng.Intn(60)
		overlap := rng.Intn(size)

		runes := make([]rune, rng.Intn(400))
		for i := range runes {
			runes[i] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(runes)

		s, err := NewTextSplitter(size, overlap)
		require.NoError(t, err)
		chunks := s.Split(text)

		for i, c := range chunks {
			n := utf8.RuneCountInString(c)
			require.LessOrEqual(t, n, size, "chunk %d too long (size=%d overlap=%d)", i, size, overlap)
			if i > 0 {
				prev := []rune(chunks[i-1])
				require.Equal(t, string(prev[len(prev)-overlap:]), string([]rune(c)[:overlap]),
					"chunk %d must start with the previous chunk's tail", i)
			}
		}
		require.Equal(t, text, rejoin(chunks, overlap), "size=%d overlap=%d", size, overlap)
	}
}
