package chain

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// chars splits a word into single-character symbols.
func chars(s string) []string {
	return strings.Split(s, "")
}

// languageModel trains the two-language scenario used across these tests.
func languageModel(opts ...Option) *Model[string, string] {
	m := New[string, string](opts...)
	m.ObserveSequence("EN", []string{"t", "h", "e"})
	m.ObserveSequence("EN", []string{"t", "h", "a", "t"})
	m.ObserveSequence("FR", []string{"l", "e"})
	m.ObserveSequence("FR", []string{"l", "a"})
	return m
}

func TestObserveCounts(t *testing.T) {
	m := New[string, string]()
	m.Observe(Start[string](), "L", "a")
	m.Observe(After("a"), "L", "b")

	start := m.Counter("L", Start[string]())
	require.NotNil(t, start)
	require.Equal(t, int64(1), start.Count("a"))
	require.Equal(t, int64(0), start.Count("b"))
	require.Equal(t, int64(1), start.Total())

	afterA := m.Counter("L", After("a"))
	require.NotNil(t, afterA)
	require.Equal(t, int64(1), afterA.Count("b"))
	require.Equal(t, int64(0), afterA.Count("a"))
	require.Equal(t, int64(1), afterA.Total())

	require.Nil(t, m.Counter("L", After("b")))
	require.Nil(t, m.Counter("M", Start[string]()))
	require.Equal(t, []string{"L"}, m.Labels())
}

func TestObserveN(t *testing.T) {
	m := New[string, string]()
	m.ObserveN(After("a"), "L", "b", 3)
	m.ObserveN(After("a"), "L", "c", 0)
	require.Equal(t, int64(3), m.Counter("L", After("a")).Count("b"))
	require.Equal(t, 1, m.Counter("L", After("a")).Distinct())

	m.ObserveN(Start[string](), "M", "x", -1)
	require.False(t, m.HasLabel("M"))
}

func TestStartIsDistinctFromZeroSymbol(t *testing.T) {
	m := New[string, string]()
	m.Observe(Start[string](), "L", "a")
	m.Observe(After(""), "L", "b")

	require.Equal(t, int64(1), m.Counter("L", Start[string]()).Count("a"))
	require.Equal(t, int64(0), m.Counter("L", Start[string]()).Count("b"))
	require.Equal(t, int64(1), m.Counter("L", After("")).Count("b"))

	require.True(t, Start[string]().IsStart())
	require.False(t, After("").IsStart())
	_, ok := Start[int]().Symbol()
	require.False(t, ok)
	s, ok := After(7).Symbol()
	require.True(t, ok)
	require.Equal(t, 7, s)
	require.Equal(t, "<start>", Start[int]().String())
	require.Equal(t, "7", After(7).String())
}

func TestLabelsFirstSeenOrder(t *testing.T) {
	m := New[string, int]()
	m.Observe(Start[int](), "zulu", 1)
	m.Observe(Start[int](), "alpha", 1)
	m.Observe(Start[int](), "zulu", 2)
	m.Observe(Start[int](), "mike", 3)

	labels := m.Labels()
	require.Equal(t, []string{"zulu", "alpha", "mike"}, labels)

	labels[0] = "changed"
	require.Equal(t, "zulu", m.Labels()[0])
	require.True(t, m.HasLabel("alpha"))
	require.False(t, m.HasLabel("changed"))
}

func TestContexts(t *testing.T) {
	m := languageModel()
	got := map[string]int64{}
	for p, c := range m.Contexts("FR") {
		got[p.String()] = c.Total()
	}
	require.Equal(t, map[string]int64{"<start>": 2, "l": 2}, got)
}

func TestLikelihoodExactValues(t *testing.T) {
	m := New[string, string]()
	m.ObserveSequence("L", []string{"a", "b"})

	// start: {a:1} -> (1+1)/(1+1+1); a: {b:1} -> (1+1)/(1+1+1)
	p, err := m.Likelihood([]string{"a", "b"}, "L")
	require.NoError(t, err)
	require.InDelta(t, 4.0/9.0, p, 1e-12)

	// unseen context b behaves as an empty counter: (0+1)/(0+0+1)
	p, err = m.Likelihood([]string{"a", "b", "c"}, "L")
	require.NoError(t, err)
	require.InDelta(t, 4.0/9.0, p, 1e-12)

	p, err = m.Likelihood([]string{"b"}, "L")
	require.NoError(t, err)
	require.InDelta(t, 1.0/3.0, p, 1e-12)
}

func TestLikelihoodSmoothTotal(t *testing.T) {
	m := New[string, string](WithSmoothing(SmoothTotal))
	m.ObserveSequence("L", []string{"a", "b"})
	m.ObserveSequence("L", []string{"c"})
	require.Equal(t, SmoothTotal, m.Smoothing())

	// start: {a:1, c:1} -> (1+1)/(2+1); a: {b:1} -> (1+1)/(1+1)
	p, err := m.Likelihood([]string{"a", "b"}, "L")
	require.NoError(t, err)
	require.InDelta(t, 2.0/3.0, p, 1e-12)

	p, err = m.Likelihood([]string{"x"}, "L")
	require.NoError(t, err)
	require.InDelta(t, 1.0/3.0, p, 1e-12)
}

func TestSmoothingString(t *testing.T) {
	require.Equal(t, "distinct", SmoothDistinct.String())
	require.Equal(t, "total", SmoothTotal.String())
	require.Equal(t, "unknown", Smoothing(9).String())
}

func TestLikelihoodSmoothingFloor(t *testing.T) {
	for _, s := range []Smoothing{SmoothDistinct, SmoothTotal} {
		t.Run(s.String(), func(t *testing.T) {
			m := languageModel(WithSmoothing(s))
			for _, label := range m.Labels() {
				p, err := m.Likelihood(chars("qzxw"), label)
				require.NoError(t, err)
				require.Greater(t, p, 0.0)
				require.Less(t, p, 1.0)
			}
		})
	}
}

func TestLikelihoodEmptySequence(t *testing.T) {
	m := languageModel()
	for _, label := range m.Labels() {
		p, err := m.Likelihood(nil, label)
		require.NoError(t, err)
		require.Equal(t, 1.0, p)

		lp, err := m.LogLikelihood([]string{}, label)
		require.NoError(t, err)
		require.Equal(t, 0.0, lp)
	}
}

func TestLikelihoodUnknownLabel(t *testing.T) {
	m := languageModel()
	_, err := m.Likelihood(chars("the"), "DE")
	require.ErrorIs(t, err, ErrUnknownLabel)
	_, err = m.LogLikelihood(chars("the"), "DE")
	require.ErrorIs(t, err, ErrUnknownLabel)

	_, err = New[string, string]().Likelihood(nil, "EN")
	require.ErrorIs(t, err, ErrUnknownLabel)
}

func TestLogLikelihoodMatchesLikelihood(t *testing.T) {
	m := languageModel()
	for _, word := range []string{"the", "that", "le", "la", "xyz"} {
		for _, label := range m.Labels() {
			p, err := m.Likelihood(chars(word), label)
			require.NoError(t, err)
			lp, err := m.LogLikelihood(chars(word), label)
			require.NoError(t, err)
			require.InDelta(t, math.Log(p), lp, 1e-9)
		}
	}
}

func TestMonotonicReinforcement(t *testing.T) {
	m := New[string, string]()
	m.ObserveSequence("OTHER", []string{"b", "a"})
	m.ObserveSequence("L", []string{"a", "b"})

	prev, err := m.Likelihood([]string{"a", "b"}, "L")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		m.ObserveSequence("L", []string{"a", "b"})
		p, err := m.Likelihood([]string{"a", "b"}, "L")
		require.NoError(t, err)
		require.Greater(t, p, prev)
		require.Less(t, p, 1.0)
		prev = p
	}
}

func TestPosteriorScenario(t *testing.T) {
	m := languageModel()
	post, err := m.Posterior(chars("the"))
	require.NoError(t, err)
	require.Len(t, post, 2)
	require.Equal(t, "EN", post[0].Label)
	require.Equal(t, "FR", post[1].Label)

	en, ok := post.Get("EN")
	require.True(t, ok)
	fr, ok := post.Get("FR")
	require.True(t, ok)
	require.Greater(t, en, fr)
	_, ok = post.Get("DE")
	require.False(t, ok)

	label, err := m.Classify(chars("the"))
	require.NoError(t, err)
	require.Equal(t, "EN", label)

	label, err = m.Classify(chars("le"))
	require.NoError(t, err)
	require.Equal(t, "FR", label)
}

func TestPosteriorNormalization(t *testing.T) {
	m := languageModel()
	m.ObserveSequence("DE", chars("der"))
	m.ObserveSequence("DE", chars("das"))
	for _, word := range []string{"", "t", "the", "that", "la", "das", "unknown"} {
		post, err := m.Posterior(chars(word))
		require.NoError(t, err)
		require.InDelta(t, 1.0, post.Sum(), 1e-9, word)

		stable, err := m.StablePosterior(chars(word))
		require.NoError(t, err)
		require.InDelta(t, 1.0, stable.Sum(), 1e-9, word)
		for i := range post {
			require.Equal(t, post[i].Label, stable[i].Label)
			require.InDelta(t, post[i].Prob, stable[i].Prob, 1e-9, word)
		}
	}
}

func TestPosteriorFollowsFirstSeenOrder(t *testing.T) {
	m := New[string, string]()
	m.ObserveSequence("b", chars("xy"))
	m.ObserveSequence("c", chars("yx"))
	m.ObserveSequence("a", chars("xx"))

	post, err := m.Posterior(chars("xy"))
	require.NoError(t, err)
	require.Equal(t, "b", post[0].Label)
	require.Equal(t, "c", post[1].Label)
	require.Equal(t, "a", post[2].Label)
}

func TestClassifyConsistency(t *testing.T) {
	m := languageModel()
	m.ObserveSequence("DE", chars("der"))
	for _, word := range []string{"the", "that", "le", "la", "der", "tea", "hat", "zzz"} {
		post, err := m.Posterior(chars(word))
		require.NoError(t, err)

		label, err := m.Classify(chars(word))
		require.NoError(t, err)

		best := post[0]
		for _, lp := range post[1:] {
			if lp.Prob > best.Prob {
				best = lp
			}
		}
		require.Equal(t, best.Label, label, word)
	}
}

func TestClassifyTieBreaksByFirstSeen(t *testing.T) {
	m := New[string, string]()
	m.ObserveSequence("second", chars("ab"))
	m.ObserveSequence("first", chars("ab"))

	post, err := m.Posterior(chars("ab"))
	require.NoError(t, err)
	require.Equal(t, post[0].Prob, post[1].Prob)

	for i := 0; i < 10; i++ {
		label, err := m.Classify(chars("ab"))
		require.NoError(t, err)
		require.Equal(t, "second", label)
	}
}

func TestNoLabels(t *testing.T) {
	m := New[string, string]()
	require.Empty(t, m.Labels())

	_, err := m.Posterior(chars("abc"))
	require.ErrorIs(t, err, ErrNoLabels)
	_, err = m.StablePosterior(chars("abc"))
	require.ErrorIs(t, err, ErrNoLabels)

	label, err := m.Classify(chars("abc"))
	require.ErrorIs(t, err, ErrNoLabels)
	require.Equal(t, "", label)
}

func TestDegeneratePosterior(t *testing.T) {
	m := New[string, int]()
	m.ObserveSequence("A", []int{1, 1, 2, 2, 1})
	m.ObserveSequence("B", []int{2, 2, 1, 1, 2})

	// Every context is trained, so each step costs a factor of 2/5 and a
	// few thousand steps underflow both likelihoods to exactly zero.
	long := make([]int, 5000)
	for i := range long {
		long[i] = 1
	}

	_, err := m.Posterior(long)
	require.True(t, errors.Is(err, ErrDegeneratePosterior), "got %v", err)
	_, err = m.Classify(long)
	require.ErrorIs(t, err, ErrDegeneratePosterior)

	post, err := m.StablePosterior(long)
	require.NoError(t, err)
	require.InDelta(t, 1.0, post.Sum(), 1e-9)
	for _, lp := range post {
		require.False(t, math.IsNaN(lp.Prob))
	}
}

func TestPosteriorBestEmpty(t *testing.T) {
	var p Posterior[string]
	_, ok := p.Best()
	require.False(t, ok)
	require.Equal(t, 0.0, p.Sum())
}

func TestZeroValueModel(t *testing.T) {
	var m Model[string, string]
	_, err := m.Posterior(chars("a"))
	require.ErrorIs(t, err, ErrNoLabels)

	m.ObserveSequence("L", chars("ab"))
	require.Equal(t, []string{"L"}, m.Labels())
	require.Equal(t, SmoothDistinct, m.Smoothing())

	p, err := m.Likelihood(chars("a"), "L")
	require.NoError(t, err)
	require.InDelta(t, 2.0/3.0, p, 1e-12)
}

func TestPosteriorOfScoresSequencesIndependently(t *testing.T) {
	m := languageModel()
	seqs := [][]string{chars("the"), chars("la")}

	// Each sequence restarts from the start context, so the cross-sequence
	// transition e -> l is never scored.
	want := make(map[string]float64)
	var total float64
	for _, label := range m.Labels() {
		p := 1.0
		for _, seq := range seqs {
			lp, err := m.Likelihood(seq, label)
			require.NoError(t, err)
			p *= lp
		}
		want[label] = p
		total += p
	}

	post, err := m.PosteriorOf(seqs)
	require.NoError(t, err)
	require.Len(t, post, 2)
	for _, lp := range post {
		require.InDelta(t, want[lp.Label]/total, lp.Prob, 1e-12)
	}

	stable, err := m.StablePosteriorOf(seqs)
	require.NoError(t, err)
	for i := range post {
		require.Equal(t, post[i].Label, stable[i].Label)
		require.InDelta(t, post[i].Prob, stable[i].Prob, 1e-12)
	}

	single, err := m.PosteriorOf([][]string{chars("the")})
	require.NoError(t, err)
	direct, err := m.Posterior(chars("the"))
	require.NoError(t, err)
	require.Equal(t, direct, single)
}

func TestModelString(t *testing.T) {
	m := New[string, string]()
	m.ObserveSequence("EN", chars("ab"))
	m.ObserveSequence("FR", chars("b"))

	out := m.String()
	require.True(t, strings.HasPrefix(out, "EN:\n"))
	require.Contains(t, out, "  <start> -> a:1\n")
	require.Contains(t, out, "  a -> b:1\n")
	require.Contains(t, out, "FR:\n  <start> -> b:1\n")
	require.Less(t, strings.Index(out, "EN:"), strings.Index(out, "FR:"))
}

func BenchmarkLikelihood(b *testing.B) {
	m := New[string, rune]()
	corpus := []string{
		"the quick brown fox jumps over the lazy dog",
		"pack my box with five dozen liquor jugs",
		"how vexingly quick daft zebras jump",
	}
	for _, line := range corpus {
		m.ObserveSequence("en", []rune(line))
	}
	seq := []rune("the five boxing wizards jump quickly")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Likelihood(seq, "en"); err != nil {
			b.Fatal(err)
		}
	}
}
