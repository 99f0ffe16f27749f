package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"docrag/internal/domain"
	"docrag/internal/index"
)

var tableRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const codeUndefinedTable = "42P01"

type Config struct {
	DSN   string
	Table string
}

// Storage keeps an index snapshot in two tables: <table> holds one row per
// chunk with a pgvector embedding, <table>_meta holds the manifest row.
// Save rewrites both inside a single transaction.
type Storage struct {
	db    *sqlx.DB
	table string
	meta  string
}

// ValidateTable reports whether name is usable as an unquoted table name.
func ValidateTable(name string) error {
	if !tableRegex.MatchString(name) {
		return fmt.Errorf("%w: invalid postgres table name %q", domain.ErrConfig, name)
	}
	return nil
}

func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if err := ValidateTable(cfg.Table); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Storage{db: db, table: cfg.Table, meta: cfg.Table + "_meta"}, nil
}

func (s *Storage) Name() string { return "postgres:" + s.table }

type chunkRow struct {
	Seq       int64           `db:"seq"`
	Text      string          `db:"text"`
	FileName  string          `db:"file_name"`
	Embedding pgvector.Vector `db:"embedding"`
}

type metaRow struct {
	Metric    string    `db:"metric"`
	Dimension int       `db:"dimension"`
	Embedder  string    `db:"embedder"`
	Count     int       `db:"count"`
	BuiltAt   time.Time `db:"built_at"`
}

func (s *Storage) Save(ctx context.Context, snap *index.Snapshot) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	table, meta := pq.QuoteIdentifier(s.table), pq.QuoteIdentifier(s.meta)
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`DROP TABLE IF EXISTS ` + table,
		`DROP TABLE IF EXISTS ` + meta,
		`CREATE TABLE ` + table + ` (
			seq BIGINT PRIMARY KEY,
			text TEXT NOT NULL,
			file_name TEXT NOT NULL,
			embedding vector NOT NULL
		)`,
		`CREATE TABLE ` + meta + ` (
			metric TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			embedder TEXT NOT NULL,
			count INTEGER NOT NULL,
			built_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err = tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("prepare schema: %w", err)
		}
	}

	insert := sqlx.Rebind(sqlx.DOLLAR,
		`INSERT INTO `+table+` (seq, text, file_name, embedding) VALUES (?, ?, ?, ?)`)
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range snap.Entries {
		fileName := ""
		if e.Metadata != nil {
			fileName = e.Metadata.FileName
		}
		if _, err = stmt.ExecContext(ctx, i, e.Text, fileName, pgvector.NewVector(e.Vector)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	_, err = tx.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR,
		`INSERT INTO `+meta+` (metric, dimension, embedder, count, built_at) VALUES (?, ?, ?, ?, ?)`),
		string(snap.Metric), snap.Dimension, snap.Embedder, len(snap.Entries), snap.BuiltAt)
	if err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return tx.Commit()
}

func (s *Storage) Load(ctx context.Context) (*index.Snapshot, error) {
	var m metaRow
	err := s.db.GetContext(ctx, &m,
		`SELECT metric, dimension, embedder, count, built_at FROM `+pq.QuoteIdentifier(s.meta)+` LIMIT 1`)
	if err != nil {
		if isUndefinedTable(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var rows []chunkRow
	err = s.db.SelectContext(ctx, &rows,
		`SELECT seq, text, file_name, embedding FROM `+pq.QuoteIdentifier(s.table)+` ORDER BY seq`)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(rows) != m.Count {
		return nil, fmt.Errorf("%s: manifest lists %d chunks, found %d", s.table, m.Count, len(rows))
	}
	snap := &index.Snapshot{
		Metric:    index.Metric(m.Metric),
		Dimension: m.Dimension,
		Embedder:  m.Embedder,
		BuiltAt:   m.BuiltAt,
		Entries:   make([]index.Entry, 0, len(rows)),
	}
	for _, r := range rows {
		snap.Entries = append(snap.Entries, index.Entry{
			Vector:   r.Embedding.Slice(),
			Text:     r.Text,
			Metadata: &domain.Metadata{FileName: r.FileName},
		})
	}
	return snap, nil
}

func (s *Storage) Drop(ctx context.Context) (bool, error) {
	var existing sql.NullString
	if err := s.db.GetContext(ctx, &existing, `SELECT to_regclass($1)::text`, s.table); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	for _, name := range []string{s.table, s.meta} {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+pq.QuoteIdentifier(name)); err != nil {
			_ = tx.Rollback()
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return existing.Valid, nil
}

func (s *Storage) Close() error { return s.db.Close() }

func isUndefinedTable(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}
