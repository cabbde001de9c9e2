package chain

import "errors"

var (
	// ErrUnknownLabel is returned when inference is requested for a label
	// that never received a transition.
	ErrUnknownLabel = errors.New("chain: unknown label")
	// ErrNoLabels is returned by Posterior and Classify on an untrained model.
	ErrNoLabels = errors.New("chain: no labels trained")
	// ErrDegeneratePosterior is returned when the likelihoods of all labels sum
	// to zero (or to a non-finite value), so they cannot be normalized.
	ErrDegeneratePosterior = errors.New("chain: degenerate posterior")
)
