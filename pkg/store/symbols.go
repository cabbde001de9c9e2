package store

import (
	"context"
	"database/sql"
	"fmt"
)

// symbolCache maps symbol text to IDs for the duration of one transaction,
// inserting unseen symbols on first use.
type symbolCache struct {
	stmt *sql.Stmt
	ids  map[string]int
}

func newSymbolCache(ctx context.Context, tx *sql.Tx, stmt *sql.Stmt) *symbolCache {
	return &symbolCache{
		stmt: tx.StmtContext(ctx, stmt),
		ids:  make(map[string]int),
	}
}

// id returns the ID of a real symbol. The start sentinel's text is rejected.
func (c *symbolCache) id(ctx context.Context, text string) (int, error) {
	if text == StartSymbolText {
		return 0, fmt.Errorf("%w: %q", ErrReservedSymbol, text)
	}
	if id, ok := c.ids[text]; ok {
		return id, nil
	}
	var id int
	if err := c.stmt.QueryRowContext(ctx, text).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get or insert symbol '%s': %w", text, err)
	}
	c.ids[text] = id
	return id, nil
}

// transitionKey is one (label, prev, next) row of chain_transitions.
type transitionKey struct {
	labelID int
	prevID  int
	nextID  int
}

const upsertTransition = `INSERT INTO chain_transitions (label_id, prev_id, next_id, frequency) VALUES (?, ?, ?, ?)
ON CONFLICT(label_id, prev_id, next_id) DO UPDATE SET frequency = frequency + excluded.frequency;`

const insertTransition = `INSERT INTO chain_transitions (label_id, prev_id, next_id, frequency) VALUES (?, ?, ?, ?);`

// labelID returns the ID of name, creating the label if needed.
func (s *Store) labelID(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	var id int
	if err := tx.StmtContext(ctx, s.stmtGetOrInsertLabel).QueryRowContext(ctx, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get or insert label '%s': %w", name, err)
	}
	return id, nil
}
