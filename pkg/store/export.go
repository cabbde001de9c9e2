package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// ExportedModel is the serializable representation of every stored label,
// used for JSON-based import and export.
type ExportedModel struct {
	Labels []ExportedLabel `json:"labels"`
}

// ExportedLabel holds the transitions of one label.
type ExportedLabel struct {
	Name        string               `json:"name"`
	Transitions []ExportedTransition `json:"transitions"`
}

// ExportedTransition is one counted transition. Prev is StartSymbolText for
// transitions out of the start of a sequence.
type ExportedTransition struct {
	Prev  string `json:"prev"`
	Next  string `json:"next"`
	Count int64  `json:"count"`
}

// Export serializes every stored label into JSON and writes it to w. Labels
// appear in insertion order. This is useful for backups or for moving models
// between databases.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	labels, err := s.Labels(ctx)
	if err != nil {
		return fmt.Errorf("could not list labels for export: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.label_id, p.symbol_text, n.symbol_text, t.frequency
		FROM chain_transitions t
		JOIN chain_symbols p ON p.symbol_id = t.prev_id
		JOIN chain_symbols n ON n.symbol_id = t.next_id
		ORDER BY t.label_id, t.prev_id, t.next_id;
	`)
	if err != nil {
		return fmt.Errorf("could not query transitions for export: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	byID := make(map[int][]ExportedTransition, len(labels))
	var count int
	for rows.Next() {
		var labelID int
		var tr ExportedTransition
		if err := rows.Scan(&labelID, &tr.Prev, &tr.Next, &tr.Count); err != nil {
			return err
		}
		byID[labelID] = append(byID[labelID], tr)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	exported := ExportedModel{Labels: make([]ExportedLabel, 0, len(labels))}
	for _, label := range labels {
		transitions := byID[label.ID]
		if transitions == nil {
			transitions = []ExportedTransition{}
		}
		exported.Labels = append(exported.Labels, ExportedLabel{Name: label.Name, Transitions: transitions})
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.Int("labels_exported", len(exported.Labels)),
		slog.Int("transitions_exported", count),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// Import reads a JSON model from r and merges it into the database. Labels
// that already exist have the imported counts added to their own; new labels
// are created in the order they appear. The operation is transactional.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	symbols := newSymbolCache(ctx, tx, s.stmtGetOrInsertSymbol)
	stmtUpsert, err := tx.PrepareContext(ctx, upsertTransition)
	if err != nil {
		return fmt.Errorf("failed to prepare transition upsert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtUpsert)

	var count int
	for _, label := range imported.Labels {
		if label.Name == "" {
			return fmt.Errorf("import consistency error: label without a name")
		}
		labelID, err := s.labelID(ctx, tx, label.Name)
		if err != nil {
			return err
		}
		for _, tr := range label.Transitions {
			if tr.Count <= 0 {
				return fmt.Errorf("import consistency error: non-positive count %d for '%s' -> '%s'", tr.Count, tr.Prev, tr.Next)
			}
			prevID := StartSymbolID
			if tr.Prev != StartSymbolText {
				if prevID, err = symbols.id(ctx, tr.Prev); err != nil {
					return err
				}
			}
			nextID, err := symbols.id(ctx, tr.Next)
			if err != nil {
				return err
			}
			if _, err = stmtUpsert.ExecContext(ctx, labelID, prevID, nextID, tr.Count); err != nil {
				return fmt.Errorf("failed to merge transition (%d -> %d): %w", prevID, nextID, err)
			}
			count++
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.Int("labels_merged", len(imported.Labels)),
		slog.Int("transitions_merged", count),
	)
	return nil
}
