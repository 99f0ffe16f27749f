package tokenizer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordTokenizerDeterministic(t *testing.T) {
	tok := NewWordTokenizer()
	a := tok.Encode("The quick brown fox, the lazy dog.")
	b := tok.Encode("The quick brown fox, the lazy dog.")
	require.Equal(t, a, b)
	require.Len(t, a, 9)
	require.NotEqual(t, a[0], a[5], "case is preserved")
}

func TestWordTokenizerRoundTrip(t *testing.T) {
	tok := NewWordTokenizer()
	text := "Hello ,   world!  It's   fine."
	decoded := tok.Decode(tok.Encode(text))
	require.Equal(t, "Hello, world! It's fine.", decoded)
	require.Equal(t, tok.Encode(text), tok.Encode(decoded))
}

func TestWordTokenizerDecodeStripsMarkers(t *testing.T) {
	tok := NewWordTokenizer()
	ids := tok.Encode("alpha beta")
	withMarkers := append([]int{0}, append(ids, 1, 9999)...)
	require.Equal(t, "alpha beta", tok.Decode(withMarkers))
}

func TestWordTokenizerEmpty(t *testing.T) {
	tok := NewWordTokenizer()
	require.Empty(t, tok.Encode(""))
	require.Empty(t, tok.Encode("   \n\t"))
	require.Equal(t, "", tok.Decode(nil))
}

func TestWordTokenizerConcurrentEncode(t *testing.T) {
	tok := NewWordTokenizer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Encode("one two three four five six")
		}()
	}
	wg.Wait()
	require.Equal(t, 8, tok.VocabSize())
}
