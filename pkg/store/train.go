package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TrainResult summarizes one Train call.
type TrainResult struct {
	RunID       string `json:"run_id"`
	Label       string `json:"label"`
	Sequences   int64  `json:"sequences"`
	Transitions int64  `json:"transitions"`
}

// Train tokenizes a stream of text and adds every transition it contains to
// the counts of label, creating the label if needed. Each sequence starts
// from the start sentinel. The whole stream is applied in one transaction
// and recorded as a run.
func (s *Store) Train(ctx context.Context, label string, data io.Reader) (TrainResult, error) {
	// batchSize is how many distinct transitions are aggregated in memory before being flushed
	const batchSize = 1000

	result := TrainResult{RunID: uuid.NewString(), Label: label}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	labelID, err := s.labelID(ctx, tx, label)
	if err != nil {
		return result, err
	}

	symbols := newSymbolCache(ctx, tx, s.stmtGetOrInsertSymbol)
	stmtUpsert, err := tx.PrepareContext(ctx, upsertTransition)
	if err != nil {
		return result, fmt.Errorf("failed to prepare transition upsert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtUpsert)

	batch := make(map[transitionKey]int64, batchSize)
	flush := func() error {
		for key, n := range batch {
			if _, err := stmtUpsert.ExecContext(ctx, key.labelID, key.prevID, key.nextID, n); err != nil {
				return fmt.Errorf("failed during batch upsert of transition (%d -> %d): %w", key.prevID, key.nextID, err)
			}
		}
		clear(batch)
		return nil
	}

	// prev survives batch flushes; only a real end of sequence resets it.
	prev := StartSymbolID
	stream := s.tokenizer.NewStream(data)
	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("tokenizer error: %w", err)
		}

		if token.Text != "" {
			id, err := symbols.id(ctx, token.Text)
			if err != nil {
				return result, err
			}
			if prev == StartSymbolID {
				result.Sequences++
			}
			batch[transitionKey{labelID: labelID, prevID: prev, nextID: id}]++
			result.Transitions++
			prev = id
		}
		if token.EOS {
			prev = StartSymbolID
		}
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chain_runs (run_id, label_id, sequences, transitions, created_at) VALUES (?, ?, ?, ?, ?)",
		result.RunID, labelID, result.Sequences, result.Transitions, time.Now().UTC(),
	); err != nil {
		return result, fmt.Errorf("failed to record run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "Training completed",
		slog.String("label", label),
		slog.Int("label_id", labelID),
		slog.String("run_id", result.RunID),
		slog.Int64("sequences_processed", result.Sequences),
		slog.Int64("transitions_processed", result.Transitions),
	)
	return result, nil
}
