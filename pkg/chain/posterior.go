package chain

// LabelProb pairs a label with its posterior probability.
type LabelProb[L comparable] struct {
	Label L       `json:"label"`
	Prob  float64 `json:"probability"`
}

// Posterior is a normalized distribution over labels, ordered by the order in
// which the labels were first observed during training.
type Posterior[L comparable] []LabelProb[L]

// Get returns the probability assigned to l.
func (p Posterior[L]) Get(l L) (float64, bool) {
	for _, lp := range p {
		if lp.Label == l {
			return lp.Prob, true
		}
	}
	return 0, false
}

// Best returns the label with the strictly highest probability. Ties keep the
// earliest label. It returns false for an empty posterior.
func (p Posterior[L]) Best() (L, bool) {
	var best L
	if len(p) == 0 {
		return best, false
	}
	best = p[0].Label
	top := p[0].Prob
	for _, lp := range p[1:] {
		if lp.Prob > top {
			top = lp.Prob
			best = lp.Label
		}
	}
	return best, true
}

// Sum returns the sum of all probabilities.
func (p Posterior[L]) Sum() float64 {
	var sum float64
	for _, lp := range p {
		sum += lp.Prob
	}
	return sum
}
