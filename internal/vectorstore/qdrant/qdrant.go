package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"docrag/internal/domain"
	"docrag/internal/index"
)

const batchSize = 256

var errCollectionMissing = errors.New("collection missing")

// Storage is a minimal REST client to Qdrant.
// Each Save recreates the collection; point ids are the insertion sequence.
// A manifest point carrying the chunk count is written after every chunk,
// so a collection left behind by an interrupted save is never loaded.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Name() string { return fmt.Sprintf("qdrant:%s/%s", s.url, s.collection) }

type point struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

type payload struct {
	Text     string    `json:"text,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	Manifest *manifest `json:"manifest,omitempty"`
}

type manifest struct {
	Count    int       `json:"count"`
	Embedder string    `json:"embedder"`
	BuiltAt  time.Time `json:"built_at"`
}

func (s *Storage) Save(ctx context.Context, snap *index.Snapshot) error {
	distance, err := toDistance(snap.Metric)
	if err != nil {
		return err
	}
	if _, err := s.Drop(ctx); err != nil {
		return err
	}
	size := snap.Dimension
	if size <= 0 {
		// Qdrant refuses zero-sized vectors; an empty corpus still gets a collection.
		size = 1
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": distance,
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}
	for start := 0; start < len(snap.Entries); start += batchSize {
		end := min(start+batchSize, len(snap.Entries))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			e := snap.Entries[i]
			p := payload{Text: e.Text}
			if e.Metadata != nil {
				p.FileName = e.Metadata.FileName
			}
			points = append(points, point{ID: uint64(i), Vector: e.Vector, Payload: p})
		}
		url := s.collectionURL() + "/points?wait=true"
		if err := s.do(ctx, http.MethodPut, url, map[string]any{"points": points}, nil); err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, end-1, err)
		}
	}

	// The manifest vector is only a placeholder; Cosine rejects the zero vector.
	vec := make([]float32, size)
	vec[0] = 1
	m := point{
		ID:     uint64(len(snap.Entries)),
		Vector: vec,
		Payload: payload{Manifest: &manifest{
			Count:    len(snap.Entries),
			Embedder: snap.Embedder,
			BuiltAt:  snap.BuiltAt,
		}},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", map[string]any{"points": []point{m}}, nil); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *Storage) Load(ctx context.Context) (*index.Snapshot, error) {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info); err != nil {
		if errors.Is(err, errCollectionMissing) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	metric, err := fromDistance(info.Result.Config.Params.Vectors.Distance)
	if err != nil {
		return nil, err
	}

	var points []point
	var offset any
	for {
		req := map[string]any{
			"limit":        batchSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		points = append(points, resp.Result.Points...)
		offset = resp.Result.NextPageOffset
		if offset == nil || len(resp.Result.Points) == 0 {
			break
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })

	var man *manifest
	entries := make([]index.Entry, 0, len(points))
	for _, p := range points {
		if p.Payload.Manifest != nil {
			man = p.Payload.Manifest
			continue
		}
		if p.ID != uint64(len(entries)) {
			return nil, fmt.Errorf("%s: point %d out of sequence at %d", s.collection, p.ID, len(entries))
		}
		entries = append(entries, index.Entry{
			Vector:   p.Vector,
			Text:     p.Payload.Text,
			Metadata: &domain.Metadata{FileName: p.Payload.FileName},
		})
	}
	if man == nil {
		return nil, fmt.Errorf("%w: collection %s has no manifest, the last save did not complete", domain.ErrNotFound, s.collection)
	}
	if len(entries) != man.Count {
		return nil, fmt.Errorf("%s: manifest lists %d chunks, found %d", s.collection, man.Count, len(entries))
	}

	snap := &index.Snapshot{
		Metric:   metric,
		Embedder: man.Embedder,
		BuiltAt:  man.BuiltAt,
		Entries:  entries,
	}
	if len(entries) > 0 {
		snap.Dimension = info.Result.Config.Params.Vectors.Size
	}
	return snap, nil
}

func (s *Storage) Drop(ctx context.Context) (bool, error) {
	if err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, nil); err != nil {
		if errors.Is(err, errCollectionMissing) {
			return false, nil
		}
		return false, err
	}
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, url, errCollectionMissing)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func toDistance(m index.Metric) (string, error) {
	switch m {
	case index.Cosine, "":
		return "Cosine", nil
	case index.Dot:
		return "Dot", nil
	case index.L2:
		return "Euclid", nil
	}
	return "", fmt.Errorf("qdrant: unsupported metric %q", m)
}

func fromDistance(d string) (index.Metric, error) {
	switch d {
	case "Cosine":
		return index.Cosine, nil
	case "Dot":
		return index.Dot, nil
	case "Euclid":
		return index.L2, nil
	}
	return "", fmt.Errorf("qdrant: unsupported distance %q", d)
}
