package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/chainclass/pkg/tokenize"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a new SQLite database in a temp dir and a Store using
// the rune tokenizer. It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, SetupSchema(db))

	s, err := New(db, tokenize.NewRunes())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return db, s
}

// setupTestDBWithTraining also trains the two-language scenario: EN on
// "the" and "that", FR on "le" and "la".
func setupTestDBWithTraining(t *testing.T) (context.Context, *sql.DB, *Store) {
	t.Helper()
	db, s := setupTestDB(t)
	ctx := context.Background()

	_, err := s.Train(ctx, "EN", strings.NewReader("the\nthat\n"))
	require.NoError(t, err)
	_, err = s.Train(ctx, "FR", strings.NewReader("le\nla\n"))
	require.NoError(t, err)
	return ctx, db, s
}

// openBenchDB creates a database tuned for benchmarking.
func openBenchDB(b *testing.B) (*sql.DB, error) {
	dbFile := filepath.Join(b.TempDir(), "bench.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=OFF&_cache_size=-16000")
	if err != nil {
		return nil, err
	}
	b.Cleanup(func() { _ = db.Close() })
	if err := SetupSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}
