package summarizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentences(t *testing.T) {
	got := Sentences("First one. Second?  Third!\nno terminator\n\n  ")
	require.Equal(t, []string{"First one.", "Second?", "Third!", "no terminator"}, got)
	require.Empty(t, Sentences("   "))
}

func TestSummarizeKeepsOriginalOrder(t *testing.T) {
	text := "Cats sleep a lot. Dogs bark. Cats purr and cats play. Birds sing."
	got := NewFrequencySummarizer().Summarize(text, 2)
	require.Equal(t, "Cats sleep a lot. Cats purr and cats play.", got)
}

func TestSummarizeForPrefersQueryTerms(t *testing.T) {
	text := "Cats sleep a lot. Cats purr and cats play. The bridge opened in 1932."
	got := NewFrequencySummarizer().SummarizeFor("When was the bridge opened?", text, 1)
	require.Equal(t, "The bridge opened in 1932.", got)
}

func TestSummarizeLimits(t *testing.T) {
	s := NewFrequencySummarizer()
	require.Equal(t, "", s.Summarize("", 3))
	require.Equal(t, "One. Two.", s.Summarize("One. Two.", 10))
	long := "A one. B two. C three. D four. E five."
	require.Len(t, Sentences(s.Summarize(long, 0)), DefaultMaxSentences)
}
