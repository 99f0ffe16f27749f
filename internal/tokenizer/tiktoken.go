package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE vocabulary used when none is configured.
const DefaultEncoding = "cl100k_base"

// BPETokenizer wraps a tiktoken byte-pair encoding.
type BPETokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
}

// NewBPETokenizer loads the named encoding. When cacheDir is set the BPE ranks
// are cached there instead of the system temp dir.
func NewBPETokenizer(encoding, cacheDir string) (*BPETokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, err
		}
		if err := os.Setenv("TIKTOKEN_CACHE_DIR", cacheDir); err != nil {
			return nil, err
		}
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encoding, err)
	}
	return &BPETokenizer{encoding: encoding, enc: enc}, nil
}

// Name returns the identifier of this tokenizer implementation.
func (t *BPETokenizer) Name() string { return "tiktoken:" + t.encoding }

// Encode returns the BPE ids of text. Special token text is encoded as plain text.
func (t *BPETokenizer) Encode(text string) []int {
	if text == "" {
		return nil
	}
	return t.enc.Encode(text, nil, nil)
}

// Decode returns the text for ids. A window of ids may end inside a
// multibyte rune; the partial bytes are dropped so the result is valid UTF-8.
func (t *BPETokenizer) Decode(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	return validUTF8(t.enc.Decode(ids))
}

func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
