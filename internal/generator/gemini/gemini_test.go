package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("DOCRAG_TEST_GEMINI_KEY", "g-test")
	c, err := NewClient(context.Background(), Config{APIKeyEnv: "DOCRAG_TEST_GEMINI_KEY", Model: "tiny-gemini", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}},
		}},
	})
}

func TestGenerate(t *testing.T) {
	var body string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "tiny-gemini:generateContent")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		writeText(w, "  It opened in 1932 (bridges.txt).\n")
	})
	require.Equal(t, "gemini:tiny-gemini", c.Name())

	answer, err := c.Generate(context.Background(), "When did it open?", []domain.SearchResult{
		{Chunk: domain.Chunk{Text: "The bridge opened in 1932.", Metadata: &domain.Metadata{FileName: "bridges.txt"}}, Score: 1},
	})
	require.NoError(t, err)
	require.Equal(t, "It opened in 1932 (bridges.txt).", answer)
	require.Contains(t, body, `Source: bridges.txt\nThe bridge opened in 1932.`)
}

func TestGenerateErrors(t *testing.T) {
	failing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`))
	})
	_, err := failing.Generate(context.Background(), "q", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "gemini generate")

	blank := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeText(w, "   ")
	})
	_, err = blank.Generate(context.Background(), "q", nil)
	require.EqualError(t, err, "gemini returned no text")
}
