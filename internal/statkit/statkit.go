// Package statkit turns normalized insights into synthetic market-fit scores.
// The heuristics are placeholders meant to be swapped for a real model.
package statkit

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/joelkehle/ideafit/internal/model"
)

const rangeDecimals = 2

var FactorLabels = []string{"Pain適合", "TTFV", "価格", "摩擦", "信頼"}

// Engine owns the random source behind every synthetic draw.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New seeds the engine. A nil seed draws a random one.
func New(seed *uint64) *Engine {
	var s1, s2 uint64
	if seed != nil {
		s1, s2 = *seed, *seed^0x9e3779b97f4a7c15
	} else {
		s1, s2 = rand.Uint64(), rand.Uint64()
	}
	return &Engine{rng: rand.New(rand.NewPCG(s1, s2))}
}

func (e *Engine) uniform(lo, hi float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo + (hi-lo)*e.rng.Float64()
}

func (e *Engine) normals(n int, mean, sd float64) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + sd*e.rng.NormFloat64()
	}
	return out
}

// ComputeScore maps an insight to a Score and its illustrative factor breakdown.
func (e *Engine) ComputeScore(ideaID string, in model.Insight, projectID, version string) (model.Score, model.Contribution) {
	intent := Bounded(in.IntentToTry, 0, 1)
	priceAcc := Bounded(in.PriceAcceptance, 0, 1)
	friction := Bounded(in.FrictionHint, -1, 1)

	var trend, cred float64
	if in.Trend != nil {
		trend = Bounded(*in.Trend, 0, 1)
	} else {
		trend = e.uniform(0.4, 0.7)
	}
	if in.Credibility != nil {
		cred = Bounded(*in.Credibility, 0, 1)
	} else {
		cred = e.uniform(0.4, 0.7)
	}

	psf := Bounded(100*(0.5*intent+0.3*priceAcc+0.2*(1-math.Max(friction, 0))), 0, 100)
	pmf := Bounded(100*(0.45*intent+0.25*priceAcc+0.15*trend+0.15*cred), 0, 100)

	delta := e.uniform(6, 10)
	score := model.Score{
		IdeaID:    ideaID,
		ProjectID: projectID,
		Version:   version,
		PSF:       Round(psf, 1),
		PMF:       Round(pmf, 1),
		CI95: model.CI{
			Low:  Round(Bounded(pmf-delta, 0, 100), 1),
			High: Round(Bounded(pmf+delta, 0, 100), 1),
		},
		PApply:    probRange(intent*0.6, intent*0.9),
		PPurchase: probRange(intent*0.3, intent*0.6),
		PD7:       probRange(intent*0.4, intent*0.75),
		// computed on the unrounded psf/pmf
		Verdict: Verdict(pmf, psf),
	}

	contribution := model.Contribution{
		IdeaID:    ideaID,
		ProjectID: projectID,
		Version:   version,
		Factors:   e.contributionFactors(),
	}
	return score, contribution
}

func (e *Engine) contributionFactors() []model.Factor {
	raw := e.normals(len(FactorLabels), 0.2, 0.08)
	total := 0.0
	for _, v := range raw {
		total += math.Abs(v)
	}
	if total == 0 {
		total = 1
	}
	factors := make([]model.Factor, len(FactorLabels))
	for i, label := range FactorLabels {
		factors[i] = model.Factor{Name: label, Value: Round(raw[i]/total, 3)}
	}
	return factors
}

// SimulateWinProbs draws one uniform sample per id and normalizes them to sum to 1.
func (e *Engine) SimulateWinProbs(ids []string) map[string]float64 {
	out := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return out
	}
	samples := make([]float64, len(ids))
	total := 0.0
	e.mu.Lock()
	for i := range samples {
		samples[i] = e.rng.Float64()
		total += samples[i]
	}
	e.mu.Unlock()
	if total == 0 {
		total = 1
	}
	for i, id := range ids {
		out[id] = Round(samples[i]/total, 3)
	}
	return out
}

// Verdict buckets the weighted average 0.6·pmf + 0.4·psf.
func Verdict(pmf, psf float64) model.Verdict {
	avg := 0.6*pmf + 0.4*psf
	switch {
	case avg >= 70:
		return model.VerdictGo
	case avg >= 50:
		return model.VerdictImprove
	default:
		return model.VerdictKill
	}
}

// ConfidenceInterval95 returns a normal-approximation interval of the mean of
// values in [0,1], expressed in percent. One value collapses to a point; none
// yields (0,0).
func ConfidenceInterval95(values []float64) model.CI {
	if len(values) == 0 {
		return model.CI{}
	}
	data := stats.Float64Data(values)
	mean, err := stats.Mean(data)
	if err != nil {
		return model.CI{}
	}
	if len(values) == 1 {
		p := Round(Bounded(mean*100, 0, 100), 1)
		return model.CI{Low: p, High: p}
	}
	sd, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return model.CI{}
	}
	margin := 1.96 * sd / math.Sqrt(float64(len(values)))
	return model.CI{
		Low:  Round(Bounded((mean-margin)*100, 0, 100), 1),
		High: Round(Bounded((mean+margin)*100, 0, 100), 1),
	}
}

// Mean is the arithmetic mean, 0 for no values.
func Mean(values []float64) float64 {
	m, err := stats.Mean(stats.Float64Data(values))
	if err != nil {
		return 0
	}
	return m
}

func Bounded(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func probRange(lo, hi float64) model.Range {
	return model.Range{
		Low:  Round(Bounded(lo, 0, 1), rangeDecimals),
		High: Round(Bounded(hi, 0, 1), rangeDecimals),
	}
}
