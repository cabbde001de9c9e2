package store

import "context"

// Stats holds aggregated statistics for the whole database.
type Stats struct {
	Labels   []LabelInfo           `json:"labels"`    // Stored labels in insertion order
	PerLabel map[string]LabelStats `json:"per_label"` // Label name -> stats
	Symbols  int                   `json:"symbols"`   // Distinct real symbols across all labels
}

// LabelStats holds aggregated statistics for one label.
type LabelStats struct {
	Transitions    int   `json:"transitions"`     // Distinct prev->next pairs
	TotalFrequency int64 `json:"total_frequency"` // Sum of all counts; the number of trained transitions
	Contexts       int   `json:"contexts"`        // Distinct predecessor contexts, start included
	StartSymbols   int   `json:"start_symbols"`   // Distinct symbols seen at the start of a sequence
	Runs           int   `json:"runs"`            // Number of Train calls recorded
}

// Stats returns a snapshot of statistics for the database.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	labels, err := s.Labels(ctx)
	if err != nil {
		return nil, err
	}

	var symbols int
	if err = s.stmtGetSymbolCount.QueryRowContext(ctx, StartSymbolID).Scan(&symbols); err != nil {
		return nil, err
	}

	perLabel := make(map[string]LabelStats, len(labels))
	for _, label := range labels {
		var ls LabelStats
		if err = s.stmtLabelTransitions.QueryRowContext(ctx, label.ID).Scan(&ls.Transitions); err != nil {
			return nil, err
		}
		if err = s.stmtLabelFreq.QueryRowContext(ctx, label.ID).Scan(&ls.TotalFrequency); err != nil {
			return nil, err
		}
		if err = s.stmtLabelContexts.QueryRowContext(ctx, label.ID).Scan(&ls.Contexts); err != nil {
			return nil, err
		}
		if err = s.stmtLabelStarters.QueryRowContext(ctx, label.ID, StartSymbolID).Scan(&ls.StartSymbols); err != nil {
			return nil, err
		}
		if err = s.stmtLabelRuns.QueryRowContext(ctx, label.ID).Scan(&ls.Runs); err != nil {
			return nil, err
		}
		perLabel[label.Name] = ls
	}

	return &Stats{
		Labels:   labels,
		PerLabel: perLabel,
		Symbols:  symbols,
	}, nil
}
