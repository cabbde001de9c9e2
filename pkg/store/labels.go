package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// LabelInfo identifies a stored label. IDs grow in the order labels were
// first stored, which is the order Load restores them in.
type LabelInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Labels returns every stored label in insertion order.
func (s *Store) Labels(ctx context.Context) ([]LabelInfo, error) {
	rows, err := s.stmtGetLabels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	labels := make([]LabelInfo, 0)
	for rows.Next() {
		var label LabelInfo
		if err = rows.Scan(&label.ID, &label.Name); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}

// GetLabel looks up a single label by name.
func (s *Store) GetLabel(ctx context.Context, name string) (LabelInfo, error) {
	var id int
	err := s.stmtGetLabelID.QueryRowContext(ctx, name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LabelInfo{}, fmt.Errorf("%w: %q", ErrLabelNotFound, name)
		}
		return LabelInfo{}, err
	}
	return LabelInfo{ID: id, Name: name}, nil
}

// RemoveLabel deletes a label with all of its transitions and runs. The
// operation is performed within a transaction.
func (s *Store) RemoveLabel(ctx context.Context, name string) error {
	label, err := s.GetLabel(ctx, name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM chain_transitions WHERE label_id = ?", label.ID); err != nil {
		return fmt.Errorf("failed to remove transitions for label %d: %w", label.ID, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM chain_runs WHERE label_id = ?", label.ID); err != nil {
		return fmt.Errorf("failed to remove runs for label %d: %w", label.ID, err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM chain_labels WHERE label_id = ?", label.ID); err != nil {
		return fmt.Errorf("failed to remove label %d: %w", label.ID, err)
	}

	s.logger.InfoContext(ctx, "Label removed successfully",
		slog.String("label", label.Name),
		slog.Int("label_id", label.ID),
	)

	return tx.Commit()
}

// Prune removes every transition of a label whose frequency is less than or
// equal to minFreq, and returns how many were removed. Rare transitions are
// often noise, and pruning them shrinks the database.
func (s *Store) Prune(ctx context.Context, name string, minFreq int64) (int64, error) {
	label, err := s.GetLabel(ctx, name)
	if err != nil {
		return 0, err
	}
	res, err := s.stmtPruneLabel.ExecContext(ctx, label.ID, minFreq)
	if err != nil {
		return 0, fmt.Errorf("could not prune label %d: %w", label.ID, err)
	}
	removed, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Label pruned",
		slog.String("label", label.Name),
		slog.Int("label_id", label.ID),
		slog.Int64("min_frequency", minFreq),
		slog.Int64("transitions_removed", removed),
	)
	return removed, nil
}
