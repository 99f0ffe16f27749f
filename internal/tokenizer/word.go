package tokenizer

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const (
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// WordTokenizer splits text into words and single punctuation marks.
// Ids are assigned on first sight and stay stable for the lifetime of the
// tokenizer, so it needs no vocabulary file. Ids 0 and 1 are boundary markers
// that Encode never emits and Decode drops.
type WordTokenizer struct {
	mu      sync.RWMutex
	pattern *regexp.Regexp
	ids     map[string]int
	vocab   []string
}

// NewWordTokenizer creates an empty word-level tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{
		pattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*|[^\s\p{L}\p{N}]`),
		ids:     map[string]int{clsToken: 0, sepToken: 1},
		vocab:   []string{clsToken, sepToken},
	}
}

// Name returns the identifier of this tokenizer implementation.
func (t *WordTokenizer) Name() string { return "word" }

// Encode returns the token ids of text.
func (t *WordTokenizer) Encode(text string) []int {
	pieces := t.pattern.FindAllString(text, -1)
	if len(pieces) == 0 {
		return nil
	}
	out := make([]int, len(pieces))
	for i, p := range pieces {
		out[i] = t.lookup(p)
	}
	return out
}

// Decode joins the tokens for ids with single spaces. Punctuation attaches to
// the preceding token.
func (t *WordTokenizer) Decode(ids []int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sb strings.Builder
	for _, id := range ids {
		if id <= 1 || id >= len(t.vocab) {
			continue
		}
		tok := t.vocab[id]
		if sb.Len() > 0 && !isPunct(tok) {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

// VocabSize returns the number of distinct tokens seen so far, markers included.
func (t *WordTokenizer) VocabSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vocab)
}

func (t *WordTokenizer) lookup(piece string) int {
	t.mu.RLock()
	id, ok := t.ids[piece]
	t.mu.RUnlock()
	if ok {
		return id
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[piece]; ok {
		return id
	}
	id = len(t.vocab)
	t.ids[piece] = id
	t.vocab = append(t.vocab, piece)
	return id
}

func isPunct(tok string) bool {
	r, size := utf8.DecodeRuneInString(tok)
	return size == len(tok) && !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
