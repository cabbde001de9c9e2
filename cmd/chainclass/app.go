package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/chainclass/pkg/store"
	"github.com/CTAG07/chainclass/pkg/tokenize"
)

// app bundles everything a command or the server works against.
type app struct {
	config *Config
	db     *sql.DB
	store  *store.Store
	keys   *KeyStore
	logger *slog.Logger
}

// openApp opens the database named by the config, prepares both schemas and
// returns a Store using the configured tokenizer.
func openApp(config *Config, logger *slog.Logger) (*app, error) {
	tok, err := tokenize.New(config.Tokenizer, config.Lowercase)
	if err != nil {
		return nil, err
	}

	path, _, _ := strings.Cut(config.DatabasePath, "?")
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := initDB(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set up schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set up auth schema: %w", err)
	}

	st, err := store.New(db, tok)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	st.SetLogger(logger)

	return &app{
		config: config,
		db:     db,
		store:  st,
		keys:   NewKeyStore(db),
		logger: logger,
	}, nil
}

// Close releases the prepared statements and the database.
func (a *app) Close() error {
	a.store.Close()
	return a.db.Close()
}
