package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/chainclass/pkg/tokenize"
)

const (
	// StartSymbolID is the reserved ID of the start-of-sequence sentinel.
	StartSymbolID = 0
	// StartSymbolText is the reserved text of the start-of-sequence sentinel.
	// It cannot be used as a real symbol.
	StartSymbolText = "<START>"
)

var (
	// ErrLabelNotFound is returned by label-scoped operations on a label that
	// is not stored.
	ErrLabelNotFound = errors.New("store: label not found")
	// ErrReservedSymbol is returned when a model or stream contains
	// StartSymbolText as a real symbol.
	ErrReservedSymbol = errors.New("store: reserved symbol")
)

// SetupSchema initializes the tables and the reserved start symbol. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaLabels = `
CREATE TABLE IF NOT EXISTS chain_labels (
    label_id INTEGER PRIMARY KEY,
    label_name TEXT NOT NULL UNIQUE
);
`
		schemaSymbols = `
CREATE TABLE IF NOT EXISTS chain_symbols (
    symbol_id INTEGER PRIMARY KEY,
    symbol_text TEXT NOT NULL UNIQUE
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS chain_transitions (
    label_id INTEGER NOT NULL,
    prev_id INTEGER NOT NULL,
    next_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (label_id, prev_id, next_id)
);
`
		schemaRuns = `
CREATE TABLE IF NOT EXISTS chain_runs (
    run_id TEXT PRIMARY KEY,
    label_id INTEGER NOT NULL,
    sequences INTEGER NOT NULL,
    transitions INTEGER NOT NULL,
    created_at DATETIME NOT NULL
);
`
	)

	startSymbol := fmt.Sprintf("INSERT OR IGNORE INTO chain_symbols (symbol_id, symbol_text) VALUES (%d, '%s');", StartSymbolID, StartSymbolText)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, stmt := range []string{schemaLabels, schemaSymbols, schemaTransitions, schemaRuns} {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if _, err = tx.Exec(startSymbol); err != nil {
		return fmt.Errorf("could not insert start symbol: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes chain models. It holds the database connection, the
// tokenizer used by Train, and prepared statements.
type Store struct {
	db                    *sql.DB
	tokenizer             tokenize.Tokenizer
	stmtGetLabelID        *sql.Stmt
	stmtGetLabels         *sql.Stmt
	stmtGetOrInsertLabel  *sql.Stmt
	stmtGetOrInsertSymbol *sql.Stmt
	stmtPruneLabel        *sql.Stmt
	stmtLabelTransitions  *sql.Stmt
	stmtLabelFreq         *sql.Stmt
	stmtLabelContexts     *sql.Stmt
	stmtLabelStarters     *sql.Stmt
	stmtLabelRuns         *sql.Stmt
	stmtGetSymbolCount    *sql.Stmt
	logger                *slog.Logger
}

// New creates a Store on a database prepared with SetupSchema. The tokenizer
// is used by Train to split incoming text.
func New(db *sql.DB, tokenizer tokenize.Tokenizer) (*Store, error) {
	s := &Store{
		db:        db,
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetLabelID, `SELECT label_id FROM chain_labels WHERE label_name = ?;`},
		{&s.stmtGetLabels, `SELECT label_id, label_name FROM chain_labels ORDER BY label_id;`},
		{&s.stmtGetOrInsertLabel, `INSERT INTO chain_labels (label_name) VALUES (?) ON CONFLICT(label_name) DO UPDATE SET label_name=excluded.label_name RETURNING label_id;`},
		{&s.stmtGetOrInsertSymbol, `INSERT INTO chain_symbols (symbol_text) VALUES (?) ON CONFLICT(symbol_text) DO UPDATE SET symbol_text=excluded.symbol_text RETURNING symbol_id;`},
		{&s.stmtPruneLabel, `DELETE FROM chain_transitions WHERE label_id = ? AND frequency <= ?;`},
		{&s.stmtLabelTransitions, `SELECT COUNT(*) FROM chain_transitions WHERE label_id = ?;`},
		{&s.stmtLabelFreq, `SELECT coalesce(SUM(frequency), 0) FROM chain_transitions WHERE label_id = ?;`},
		{&s.stmtLabelContexts, `SELECT COUNT(DISTINCT prev_id) FROM chain_transitions WHERE label_id = ?;`},
		{&s.stmtLabelStarters, `SELECT COUNT(*) FROM chain_transitions WHERE label_id = ? AND prev_id = ?;`},
		{&s.stmtLabelRuns, `SELECT COUNT(*) FROM chain_runs WHERE label_id = ?;`},
		{&s.stmtGetSymbolCount, `SELECT COUNT(*) FROM chain_symbols WHERE symbol_id != ?;`},
	}
	for _, st := range stmts {
		prepared, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return s, nil
}

// Close releases all prepared statements. It does not close the database.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetLabelID,
		s.stmtGetLabels,
		s.stmtGetOrInsertLabel,
		s.stmtGetOrInsertSymbol,
		s.stmtPruneLabel,
		s.stmtLabelTransitions,
		s.stmtLabelFreq,
		s.stmtLabelContexts,
		s.stmtLabelStarters,
		s.stmtLabelRuns,
		s.stmtGetSymbolCount,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Tokenizer returns the tokenizer used by Train.
func (s *Store) Tokenizer() tokenize.Tokenizer {
	return s.tokenizer
}
