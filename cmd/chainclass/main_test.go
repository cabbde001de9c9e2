package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestConfig returns the default config pointed at a temp-dir database.
func newTestConfig(t *testing.T) *Config {
	t.Helper()
	config := DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "data", "test.db")
	return config
}

// setupTestServer opens a fresh database and wraps it in a Server.
func setupTestServer(t *testing.T) (*Server, *app) {
	t.Helper()
	config := newTestConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := openApp(config, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
	})

	s, err := NewServer(context.Background(), a)
	require.NoError(t, err)
	return s, a
}
