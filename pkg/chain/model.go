package chain

import (
	"fmt"
	"iter"
	"math"
	"strings"
)

// Model holds the transition counts of one first-order Markov chain per label.
// Labels are kept in the order they were first observed; that order is used
// for posteriors and for breaking ties in Classify. The zero value is an empty
// model with SmoothDistinct.
type Model[L, S comparable] struct {
	labels    []L
	chains    map[L]map[Prev[S]]*Counter[S]
	smoothing Smoothing
}

// New returns an empty Model.
func New[L, S comparable](opts ...Option) *Model[L, S] {
	o := options{smoothing: SmoothDistinct}
	for _, opt := range opts {
		opt(&o)
	}
	return &Model[L, S]{
		chains:    make(map[L]map[Prev[S]]*Counter[S]),
		smoothing: o.smoothing,
	}
}

// Smoothing returns the smoothing denominator the model was built with.
func (m *Model[L, S]) Smoothing() Smoothing {
	return m.smoothing
}

// Observe records one transition from prev to next under label. Pass Start()
// as prev when next is the first symbol of a sequence.
func (m *Model[L, S]) Observe(prev Prev[S], label L, next S) {
	m.ObserveN(prev, label, next, 1)
}

// ObserveN records n identical transitions at once. It is equivalent to n
// calls to Observe; n <= 0 does nothing.
func (m *Model[L, S]) ObserveN(prev Prev[S], label L, next S, n int64) {
	if n <= 0 {
		return
	}
	if m.chains == nil {
		m.chains = make(map[L]map[Prev[S]]*Counter[S])
	}
	table, ok := m.chains[label]
	if !ok {
		table = make(map[Prev[S]]*Counter[S])
		m.chains[label] = table
		m.labels = append(m.labels, label)
	}
	c, ok := table[prev]
	if !ok {
		c = NewCounter[S]()
		table[prev] = c
	}
	c.Add(next, n)
}

// ObserveSequence records every transition of seq under label, starting from
// the start sentinel. An empty sequence records nothing.
func (m *Model[L, S]) ObserveSequence(label L, seq []S) {
	prev := Start[S]()
	for _, s := range seq {
		m.Observe(prev, label, s)
		prev = After(s)
	}
}

// Labels returns every label that has received at least one transition, in
// first-seen order. The returned slice is a copy.
func (m *Model[L, S]) Labels() []L {
	out := make([]L, len(m.labels))
	copy(out, m.labels)
	return out
}

// HasLabel reports whether label has been trained.
func (m *Model[L, S]) HasLabel(label L) bool {
	_, ok := m.chains[label]
	return ok
}

// Counter returns the counter of successors of prev under label, or nil if
// that context was never observed. Callers must not modify it.
func (m *Model[L, S]) Counter(label L, prev Prev[S]) *Counter[S] {
	return m.chains[label][prev]
}

// Contexts iterates over every predecessor context trained for label and its
// counter, in unspecified order.
func (m *Model[L, S]) Contexts(label L) iter.Seq2[Prev[S], *Counter[S]] {
	return func(yield func(Prev[S], *Counter[S]) bool) {
		for p, c := range m.chains[label] {
			if !yield(p, c) {
				return
			}
		}
	}
}

func (m *Model[L, S]) table(label L) (map[Prev[S]]*Counter[S], error) {
	table, ok := m.chains[label]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownLabel, label)
	}
	return table, nil
}

// transition returns the smoothed probability of next given the counter of
// its context. A nil counter is an unseen context.
func (m *Model[L, S]) transition(c *Counter[S], next S) float64 {
	return float64(c.Count(next)+1) / m.smoothing.denominator(c.Total(), c.Distinct())
}

// Likelihood returns P(seq | label) under the first-order Markov assumption
// with add-one smoothing. The empty sequence has likelihood 1.
func (m *Model[L, S]) Likelihood(seq []S, label L) (float64, error) {
	table, err := m.table(label)
	if err != nil {
		return 0, err
	}
	return m.likelihood(table, seq), nil
}

// LogLikelihood returns the natural logarithm of Likelihood, accumulated in
// log space so that long sequences do not underflow.
func (m *Model[L, S]) LogLikelihood(seq []S, label L) (float64, error) {
	table, err := m.table(label)
	if err != nil {
		return 0, err
	}
	return m.logLikelihood(table, seq), nil
}

func (m *Model[L, S]) likelihood(table map[Prev[S]]*Counter[S], seq []S) float64 {
	p := 1.0
	prev := Start[S]()
	for _, s := range seq {
		p *= m.transition(table[prev], s)
		prev = After(s)
	}
	return p
}

func (m *Model[L, S]) logLikelihood(table map[Prev[S]]*Counter[S], seq []S) float64 {
	var lp float64
	prev := Start[S]()
	for _, s := range seq {
		lp += math.Log(m.transition(table[prev], s))
		prev = After(s)
	}
	return lp
}

// Posterior returns P(label | seq) for every trained label under a uniform
// prior, in first-seen label order.
func (m *Model[L, S]) Posterior(seq []S) (Posterior[L], error) {
	return m.PosteriorOf([][]S{seq})
}

// PosteriorOf scores several independent sequences at once: each one starts
// from the start sentinel, the same way ObserveSequence trains them, and the
// likelihood of the whole input is the product over sequences.
func (m *Model[L, S]) PosteriorOf(seqs [][]S) (Posterior[L], error) {
	if len(m.labels) == 0 {
		return nil, ErrNoLabels
	}
	post := make(Posterior[L], 0, len(m.labels))
	var total float64
	for _, label := range m.labels {
		table := m.chains[label]
		p := 1.0
		for _, seq := range seqs {
			p *= m.likelihood(table, seq)
		}
		post = append(post, LabelProb[L]{Label: label, Prob: p})
		total += p
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: likelihoods sum to %v over %d labels", ErrDegeneratePosterior, total, len(post))
	}
	for i := range post {
		post[i].Prob /= total
	}
	return post, nil
}

// StablePosterior computes the same distribution as Posterior but normalizes
// log-likelihoods with log-sum-exp. It stays defined for inputs long enough
// to underflow every likelihood to zero.
func (m *Model[L, S]) StablePosterior(seq []S) (Posterior[L], error) {
	return m.StablePosteriorOf([][]S{seq})
}

// StablePosteriorOf is the log-space counterpart of PosteriorOf.
func (m *Model[L, S]) StablePosteriorOf(seqs [][]S) (Posterior[L], error) {
	if len(m.labels) == 0 {
		return nil, ErrNoLabels
	}
	logs := make([]float64, len(m.labels))
	top := math.Inf(-1)
	for i, label := range m.labels {
		table := m.chains[label]
		var lp float64
		for _, seq := range seqs {
			lp += m.logLikelihood(table, seq)
		}
		logs[i] = lp
		if lp > top {
			top = lp
		}
	}
	if math.IsInf(top, 0) || math.IsNaN(top) {
		return nil, fmt.Errorf("%w: maximum log-likelihood is %v", ErrDegeneratePosterior, top)
	}
	var total float64
	for i := range logs {
		logs[i] = math.Exp(logs[i] - top)
		total += logs[i]
	}
	post := make(Posterior[L], len(m.labels))
	for i, label := range m.labels {
		post[i] = LabelProb[L]{Label: label, Prob: logs[i] / total}
	}
	return post, nil
}

// String dumps every label's chain as label, predecessor and successor
// histogram, one context per line. Contexts are listed in unspecified order.
func (m *Model[L, S]) String() string {
	var b strings.Builder
	for _, label := range m.labels {
		fmt.Fprintf(&b, "%v:\n", label)
		for prev, c := range m.Contexts(label) {
			fmt.Fprintf(&b, "  %v ->", prev)
			for sym, n := range c.All() {
				fmt.Fprintf(&b, " %v:%d", sym, n)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Classify returns the label with the strictly highest posterior probability
// for seq. When several labels tie, the one observed first during training
// wins.
func (m *Model[L, S]) Classify(seq []S) (L, error) {
	var zero L
	post, err := m.Posterior(seq)
	if err != nil {
		return zero, err
	}
	best, _ := post.Best()
	return best, nil
}
