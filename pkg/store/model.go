package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/CTAG07/chainclass/pkg/chain"
)

// Save writes model to the database. Every label in the model has its stored
// counts replaced by the model's; stored labels absent from the model are
// left untouched. New labels are stored in the model's label order.
func (s *Store) Save(ctx context.Context, model *chain.Model[string, string]) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	symbols := newSymbolCache(ctx, tx, s.stmtGetOrInsertSymbol)
	stmtInsert, err := tx.PrepareContext(ctx, insertTransition)
	if err != nil {
		return fmt.Errorf("failed to prepare transition insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsert)

	var rows int
	for _, label := range model.Labels() {
		labelID, err := s.labelID(ctx, tx, label)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM chain_transitions WHERE label_id = ?", labelID); err != nil {
			return fmt.Errorf("failed to clear transitions for label '%s': %w", label, err)
		}

		for prev, counter := range model.Contexts(label) {
			prevID := StartSymbolID
			if sym, ok := prev.Symbol(); ok {
				if prevID, err = symbols.id(ctx, sym); err != nil {
					return err
				}
			}
			for next, n := range counter.All() {
				nextID, err := symbols.id(ctx, next)
				if err != nil {
					return err
				}
				if _, err = stmtInsert.ExecContext(ctx, labelID, prevID, nextID, n); err != nil {
					return fmt.Errorf("failed to insert transition (%d -> %d): %w", prevID, nextID, err)
				}
				rows++
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.Int("labels", len(model.Labels())),
		slog.Int("transitions", rows),
	)
	return nil
}

// Load reads every stored transition into a new model. Labels are observed in
// insertion order, so the model's first-seen order matches the order the
// labels were first stored. Labels without any transition are skipped.
func (s *Store) Load(ctx context.Context, opts ...chain.Option) (*chain.Model[string, string], error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.label_name, t.prev_id, p.symbol_text, n.symbol_text, t.frequency
		FROM chain_transitions t
		JOIN chain_labels l ON l.label_id = t.label_id
		JOIN chain_symbols p ON p.symbol_id = t.prev_id
		JOIN chain_symbols n ON n.symbol_id = t.next_id
		ORDER BY t.label_id, t.prev_id, t.next_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("could not query transitions: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	model := chain.New[string, string](opts...)
	var count int
	for rows.Next() {
		var label, prevText, nextText string
		var prevID int
		var freq int64
		if err = rows.Scan(&label, &prevID, &prevText, &nextText, &freq); err != nil {
			return nil, err
		}
		prev := chain.Start[string]()
		if prevID != StartSymbolID {
			prev = chain.After(prevText)
		}
		model.ObserveN(prev, label, nextText, freq)
		count++
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Model loaded",
		slog.Int("labels", len(model.Labels())),
		slog.Int("transitions", count),
	)
	return model, nil
}
