package statkit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/ideafit/internal/model"
)

func seeded(s uint64) *Engine { return New(&s) }

func TestComputeScoreWorkedExample(t *testing.T) {
	e := seeded(7)
	in := model.Insight{IntentToTry: 0.55, PriceAcceptance: 0.48, FrictionHint: -0.1}

	score, contrib := e.ComputeScore("idea-x", in, "projectA", "v1")

	// 100 × (0.5×0.55 + 0.3×0.48 + 0.2×1.0); negative friction does not add.
	assert.InDelta(t, 61.9, score.PSF, 1e-9)
	assert.Equal(t, "idea-x", score.IdeaID)
	assert.Equal(t, "projectA", score.ProjectID)
	assert.GreaterOrEqual(t, score.PMF, 0.0)
	assert.LessOrEqual(t, score.PMF, 100.0)
	assert.Equal(t, 0.33, score.PApply.Low)
	assert.InDelta(t, 0.495, score.PApply.High, 0.0051)
	assert.InDelta(t, 0.165, score.PPurchase.Low, 0.0051)
	assert.Equal(t, 0.33, score.PPurchase.High)
	assert.Equal(t, model.Range{Low: 0.22, High: 0.41}, score.PD7)
	assert.Equal(t, "idea-x", contrib.IdeaID)

	for i := 0; i < 20; i++ {
		again, _ := seeded(uint64(i)).ComputeScore("idea-x", in, "", "")
		assert.InDelta(t, 61.9, again.PSF, 1e-9, "psf must not depend on random draws")
	}
}

func TestComputeScoreBoundsHold(t *testing.T) {
	e := seeded(42)
	values := []float64{0, 0.1, 0.33, 0.5, 0.77, 1}
	frictions := []float64{-1, -0.4, 0, 0.3, 1}
	for _, intent := range values {
		for _, price := range values {
			for _, friction := range frictions {
				score, contrib := e.ComputeScore("i", model.Insight{IntentToTry: intent, PriceAcceptance: price, FrictionHint: friction}, "", "")

				assert.True(t, score.PSF >= 0 && score.PSF <= 100)
				assert.True(t, score.PMF >= 0 && score.PMF <= 100)
				assert.LessOrEqual(t, score.CI95.Low, score.CI95.High)
				assert.True(t, score.CI95.Low >= 0 && score.CI95.High <= 100)
				for _, r := range []model.Range{score.PApply, score.PPurchase, score.PD7} {
					assert.True(t, 0 <= r.Low && r.Low <= r.High && r.High <= 1, "range %+v", r)
				}

				avg := 0.6*score.PMF + 0.4*score.PSF
				if avg >= 70.1 {
					assert.Equal(t, model.VerdictGo, score.Verdict)
				} else if avg < 49.9 {
					assert.Equal(t, model.VerdictKill, score.Verdict)
				}

				sum := 0.0
				for _, f := range contrib.Factors {
					sum += math.Abs(f.Value)
				}
				assert.InDelta(t, 1.0, sum, 0.01)
			}
		}
	}
}

func TestComputeScoreUsesSuppliedTrendAndCredibility(t *testing.T) {
	trend, cred := 1.0, 1.0
	in := model.Insight{IntentToTry: 1, PriceAcceptance: 1, FrictionHint: 0, Trend: &trend, Credibility: &cred}

	score, _ := seeded(1).ComputeScore("i", in, "", "")
	assert.Equal(t, 100.0, score.PMF)
	assert.Equal(t, 100.0, score.PSF)
	assert.Equal(t, 100.0, score.CI95.High)
	assert.GreaterOrEqual(t, score.CI95.Low, 90.0)
	assert.Equal(t, model.VerdictGo, score.Verdict)
}

func TestComputeScoreClampsOutOfRangeInputs(t *testing.T) {
	score, _ := seeded(3).ComputeScore("i", model.Insight{IntentToTry: 3, PriceAcceptance: -2, FrictionHint: 5}, "", "")
	assert.Equal(t, model.Range{Low: 0.6, High: 0.9}, score.PApply)
	assert.InDelta(t, 50.0, score.PSF, 1e-9)
}

func TestSeededEnginesAreReproducible(t *testing.T) {
	in := model.Insight{IntentToTry: 0.6, PriceAcceptance: 0.4}
	a, ca := seeded(99).ComputeScore("i", in, "", "")
	b, cb := seeded(99).ComputeScore("i", in, "", "")
	assert.Equal(t, a, b)
	assert.Equal(t, ca, cb)
}

func TestVerdictBoundaries(t *testing.T) {
	assert.Equal(t, model.VerdictGo, Verdict(70, 70))
	assert.Equal(t, model.VerdictImprove, Verdict(50, 50))
	assert.Equal(t, model.VerdictKill, Verdict(49.9, 49.9))
	assert.Equal(t, model.VerdictImprove, Verdict(69.9, 69.9))
	assert.Equal(t, model.VerdictGo, Verdict(100, 25))
}

func TestContributionFactorsAreLabelled(t *testing.T) {
	_, contrib := seeded(5).ComputeScore("i", model.Insight{}, "", "")
	require.Len(t, contrib.Factors, len(FactorLabels))
	for i, f := range contrib.Factors {
		assert.Equal(t, FactorLabels[i], f.Name)
	}
}

func TestSimulateWinProbs(t *testing.T) {
	e := seeded(11)
	ids := []string{"idea-1", "idea-2", "idea-3"}
	probs := e.SimulateWinProbs(ids)

	require.Len(t, probs, len(ids))
	sum := 0.0
	for _, id := range ids {
		p, ok := probs[id]
		require.True(t, ok, id)
		assert.True(t, p >= 0 && p <= 1)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 0.005)

	single := e.SimulateWinProbs([]string{"only"})
	assert.Equal(t, 1.0, single["only"])
	assert.Empty(t, e.SimulateWinProbs(nil))
}

func TestConfidenceInterval95(t *testing.T) {
	assert.Equal(t, model.CI{}, ConfidenceInterval95(nil))
	assert.Equal(t, model.CI{Low: 50, High: 50}, ConfidenceInterval95([]float64{0.5}))

	ci := ConfidenceInterval95([]float64{0.4, 0.6})
	margin := 1.96 * 0.1 / math.Sqrt(2) * 100
	assert.InDelta(t, 50-margin, ci.Low, 0.051)
	assert.InDelta(t, 50+margin, ci.High, 0.051)
	assert.InDelta(t, 50-ci.Low, ci.High-50, 1e-9)

	wide := ConfidenceInterval95([]float64{0, 1})
	assert.Equal(t, 0.0, wide.Low)
	assert.Equal(t, 100.0, wide.High)
}

func TestRoundAndBounded(t *testing.T) {
	assert.Equal(t, 0.33, Round(0.333, 2))
	assert.Equal(t, 61.9, Round(61.899999, 1))
	assert.Equal(t, 1.0, Bounded(3, 0, 1))
	assert.Equal(t, -1.0, Bounded(-3, -1, 1))
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 0.5, Mean([]float64{0.4, 0.6}), 1e-12)
}
