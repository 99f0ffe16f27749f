package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"docrag/internal/domain"
	"docrag/internal/index"
)

var (
	bucketMeta    = []byte("meta")
	bucketChunks  = []byte("chunks")
	bucketVectors = []byte("vectors")
	keyManifest   = []byte("manifest")
)

const formatVersion = 1

type manifest struct {
	Version   int       `json:"version"`
	Metric    string    `json:"metric"`
	Dimension int       `json:"dimension"`
	Embedder  string    `json:"embedder"`
	Count     int       `json:"count"`
	BuiltAt   time.Time `json:"built_at"`
}

type chunkRecord struct {
	Text     string `json:"text"`
	FileName string `json:"file_name"`
}

// Storage keeps an index snapshot in a single bbolt file. Saves go to a
// temporary file that is renamed over the target once complete, so readers
// only ever see a whole snapshot.
type Storage struct {
	path    string
	timeout time.Duration
}

// NewStorage creates a bolt-backed store at path.
func NewStorage(path string) *Storage {
	return &Storage{path: path, timeout: 5 * time.Second}
}

func (s *Storage) Name() string { return "bolt:" + s.path }

func (s *Storage) Save(ctx context.Context, snap *index.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	db, err := bbolt.Open(tmp, 0o600, &bbolt.Options{Timeout: s.timeout})
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		chunks, err := tx.CreateBucket(bucketChunks)
		if err != nil {
			return err
		}
		vectors, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		for i, e := range snap.Entries {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			key := itob(uint64(i))
			rec := chunkRecord{Text: e.Text}
			if e.Metadata != nil {
				rec.FileName = e.Metadata.FileName
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := chunks.Put(key, data); err != nil {
				return err
			}
			if err := vectors.Put(key, encodeVector(e.Vector)); err != nil {
				return err
			}
		}
		m := manifest{
			Version:   formatVersion,
			Metric:    string(snap.Metric),
			Dimension: snap.Dimension,
			Embedder:  snap.Embedder,
			Count:     len(snap.Entries),
			BuiltAt:   snap.BuiltAt,
		}
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return meta.Put(keyManifest, data)
	})
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Storage) Load(ctx context.Context) (*index.Snapshot, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: s.timeout, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer db.Close()

	var snap *index.Snapshot
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		chunks := tx.Bucket(bucketChunks)
		vectors := tx.Bucket(bucketVectors)
		if meta == nil || chunks == nil || vectors == nil {
			return fmt.Errorf("%s: missing buckets", s.path)
		}
		var m manifest
		if err := json.Unmarshal(meta.Get(keyManifest), &m); err != nil {
			return fmt.Errorf("%s: read manifest: %w", s.path, err)
		}
		if m.Version != formatVersion {
			return fmt.Errorf("%s: unsupported format version %d", s.path, m.Version)
		}
		entries := make([]index.Entry, 0, m.Count)
		c := chunks.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(entries)%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			var rec chunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			raw := vectors.Get(k)
			if raw == nil {
				return fmt.Errorf("%s: chunk %d has no vector", s.path, btoi(k))
			}
			entries = append(entries, index.Entry{
				Vector:   decodeVector(raw),
				Text:     rec.Text,
				Metadata: &domain.Metadata{FileName: rec.FileName},
			})
		}
		if len(entries) != m.Count {
			return fmt.Errorf("%s: manifest lists %d chunks, found %d", s.path, m.Count, len(entries))
		}
		snap = &index.Snapshot{
			Metric:    index.Metric(m.Metric),
			Dimension: m.Dimension,
			Embedder:  m.Embedder,
			BuiltAt:   m.BuiltAt,
			Entries:   entries,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Storage) Drop(ctx context.Context) (bool, error) {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Close() error { return nil }

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
