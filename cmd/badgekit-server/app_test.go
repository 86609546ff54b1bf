package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgekit/config"
	"badgekit/core"
)

func TestSetupStorage(t *testing.T) {
	cfg := config.DefaultConfig()

	store, err := setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, store)

	cfg.Storage.Adapter = "file"
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "badges.json")
	store, err = setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, store)

	cfg.Storage.Adapter = "sql"
	cfg.Storage.SQL.Driver = "sqlite"
	cfg.Storage.SQL.DSN = filepath.Join(t.TempDir(), "badges.db")
	_, cleanup, err := provideStorage(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	cleanup()

	cfg.Storage.Adapter = "mongo"
	_, err = setupStorage(context.Background(), cfg)
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestProvideWebhook(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Nil(t, provideWebhook(cfg, slog.Default()))

	cfg.Webhook.Endpoints = []string{"https://hooks.example.com"}
	cfg.Webhook.Types = []core.EventType{core.EventBadgeEarned}
	assert.NotNil(t, provideWebhook(cfg, slog.Default()))
}

func TestProvideCatalog(t *testing.T) {
	cfg := config.DefaultConfig()
	cat, err := provideCatalog(cfg, slog.Default())
	require.NoError(t, err)
	defs, err := cat.Definitions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, defs)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"badges":[{"id":"gold","kind":"cumulative","acquisition_threshold":500,"assigned":["alice"]}]}`), 0o600))
	cfg.Engine.CatalogPath = path
	cat, err = provideCatalog(cfg, slog.Default())
	require.NoError(t, err)
	defs, err = cat.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "gold", string(defs[0].ID))

	cfg.Engine.CatalogPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = provideCatalog(cfg, slog.Default())
	assert.Error(t, err)
}

func TestProvideServiceAndHandler(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.AsyncEvents = false
	cat, err := provideCatalog(cfg, slog.Default())
	require.NoError(t, err)
	store, err := setupStorage(context.Background(), cfg)
	require.NoError(t, err)
	hub := provideHub()

	board := provideLeaderboard()
	svc, cleanup, err := provideService(cfg, slog.Default(), cat, store, hub, board, nil)
	require.NoError(t, err)
	defer cleanup()

	srv := provideServer(cfg, provideHandler(svc, hub, board, cfg, slog.Default()))
	assert.Equal(t, cfg.Server.Address, srv.Addr)
	assert.NotNil(t, provideRollover(cfg, slog.Default(), svc))
}
