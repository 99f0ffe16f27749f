package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docrag/internal/config"
	"docrag/internal/domain"
)

func TestNewServiceRejectsMetricBeforeOpeningStore(t *testing.T) {
	cfg := &config.AppConfig{
		Index: config.IndexConfig{Metric: "manhattan"},
		Store: config.StoreConfig{
			Type: "postgres",
			Postgres: &config.PostgresConfig{
				DSN:   "postgres://docrag@127.0.0.1:1/docrag?sslmode=disable&connect_timeout=1",
				Table: "chunks",
			},
		},
	}
	// A store that was dialled would fail with a connection error instead.
	_, err := newService(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorIs(t, err, domain.ErrConfig)
}

func TestNewServiceUnknownComponents(t *testing.T) {
	for name, mutate := range map[string]func(*config.AppConfig){
		"tokenizer": func(c *config.AppConfig) { c.Tokenizer.Type = "sentencepiece" },
		"embedder":  func(c *config.AppConfig) { c.Embedder.Type = "cohere" },
		"generator": func(c *config.AppConfig) { c.Generator.Type = "llama" },
		"store":     func(c *config.AppConfig) { c.Store.Type = "redis" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := &config.AppConfig{}
			mutate(cfg)
			_, err := newService(context.Background(), cfg, zaptest.NewLogger(t))
			require.ErrorIs(t, err, domain.ErrConfig)
		})
	}
}

func TestNewServiceDefaults(t *testing.T) {
	cfg := &config.AppConfig{
		Store: config.StoreConfig{Type: "bolt", Bolt: &config.BoltConfig{Path: filepath.Join(t.TempDir(), "index.db")}},
	}
	svc, err := newService(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, svc)
	require.NoError(t, svc.Close())

	store, err := newStore(context.Background(), &config.AppConfig{Store: config.StoreConfig{Type: "none"}})
	require.NoError(t, err)
	require.Nil(t, store)
}
