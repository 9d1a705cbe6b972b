package normalization

import (
	"math"
	"math/rand"
	"testing"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZScore_TwoShiftsLandOnComparableScale(t *testing.T) {
	engine := NewEngine()

	// Exam with max marks 200: shift A (avg 120, sd 20), shift B (avg 100,
	// sd 25), global avg 110, global sd 22.5.
	scoreA, err := engine.Normalize(models.MethodZScore, Params{
		RawScore: 140, ShiftMean: 120, ShiftStdDev: 20,
		GlobalMean: 110, GlobalStdDev: 22.5, MaxMarks: 200,
	})
	require.NoError(t, err)
	assert.InDelta(t, 132.5, scoreA, 1e-9)

	scoreB, err := engine.Normalize(models.MethodZScore, Params{
		RawScore: 125, ShiftMean: 100, ShiftStdDev: 25,
		GlobalMean: 110, GlobalStdDev: 22.5, MaxMarks: 200,
	})
	require.NoError(t, err)
	assert.InDelta(t, 132.5, scoreB, 1e-9)

	assert.InDelta(t, scoreA, scoreB, 1e-9, "equally placed candidates from different shifts should normalize to the same score")
}

func TestZScore_ZeroVarianceFallsBackToRaw(t *testing.T) {
	engine := NewEngine()

	for _, raw := range []float64{0, 57.5, 200} {
		got, err := engine.Normalize(models.MethodZScore, Params{
			RawScore: raw, ShiftMean: raw, ShiftStdDev: 0,
			GlobalMean: 110, GlobalStdDev: 22.5,
		})
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	}
}

func TestZScore_NegativeScoresAreNotClamped(t *testing.T) {
	engine := NewEngine()

	got, err := engine.Normalize(models.MethodZScore, Params{
		RawScore: 2, ShiftMean: 120, ShiftStdDev: 20,
		GlobalMean: 10, GlobalStdDev: 30,
	})
	require.NoError(t, err)
	assert.Less(t, got, 0.0)
}

// Normalizing every score of every shift must reproduce the exam-wide
// mean/stddev, which is the defining property of z-score normalization.
func TestZScore_RoundTripMatchesGlobalMoments(t *testing.T) {
	engine := NewEngine()
	rng := rand.New(rand.NewSource(7))

	type shift struct{ mean, sd float64 }
	shifts := []shift{{120, 20}, {100, 25}, {90, 15}}

	var all []float64
	perShift := make([][]float64, len(shifts))
	for i, s := range shifts {
		for j := 0; j < 2000; j++ {
			score := s.mean + rng.NormFloat64()*s.sd
			perShift[i] = append(perShift[i], score)
			all = append(all, score)
		}
	}
	globalMean, globalSD := moments(all)

	var normalized []float64
	for i := range shifts {
		mean, sd := moments(perShift[i])
		for _, raw := range perShift[i] {
			got, err := engine.Normalize(models.MethodZScore, Params{
				RawScore: raw, ShiftMean: mean, ShiftStdDev: sd,
				GlobalMean: globalMean, GlobalStdDev: globalSD,
			})
			require.NoError(t, err)
			normalized = append(normalized, got)
		}
	}

	normMean, normSD := moments(normalized)
	assert.InDelta(t, globalMean, normMean, 1e-6)
	assert.InDelta(t, globalSD, normSD, 1e-6)
}

func TestRaw_Identity(t *testing.T) {
	engine := NewEngine()

	got, err := engine.Normalize(models.MethodRaw, Params{RawScore: 87.25})
	require.NoError(t, err)
	assert.Equal(t, 87.25, got)
}

func TestPercentile_MapsShiftRankOntoGlobalDistribution(t *testing.T) {
	engine := NewEngine()

	// Global scores uniform 0..100 so the percentile table is ~identity.
	scores := make([]float64, 101)
	for i := range scores {
		scores[i] = float64(i)
	}
	dist := NewDistribution(scores, DefaultSamplePoints)

	// Top of a 5-candidate shift maps to the 100th percentile.
	top, err := engine.Normalize(models.MethodPercentile, Params{
		RawScore: 42, RankInShift: 1, TotalInShift: 5, GlobalDistribution: dist,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100, top, 0.2)

	// Median of the shift maps near the global median.
	mid, err := engine.Normalize(models.MethodPercentile, Params{
		RawScore: 42, RankInShift: 3, TotalInShift: 5, GlobalDistribution: dist,
	})
	require.NoError(t, err)
	assert.InDelta(t, 50, mid, 0.2)
}

func TestPercentile_RequiresDistribution(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Normalize(models.MethodPercentile, Params{
		RawScore: 42, RankInShift: 1, TotalInShift: 5,
	})
	assert.ErrorIs(t, err, ErrMissingDistribution)
}

func TestPercentile_SingleCandidateShiftFallsBackToRaw(t *testing.T) {
	engine := NewEngine()
	dist := NewDistribution([]float64{10, 20, 30}, 11)

	got, err := engine.Normalize(models.MethodEquating, Params{
		RawScore: 42, RankInShift: 1, TotalInShift: 1, GlobalDistribution: dist,
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
}

func TestModifiedZ_CentersOnMedianWhenAvailable(t *testing.T) {
	engine := NewEngine()
	median := 95.0

	got, err := engine.Normalize(models.MethodModifiedZ, Params{
		RawScore: 115, ShiftMean: 100, ShiftStdDev: 10, ShiftMedian: &median,
		GlobalMean: 110, GlobalStdDev: 20,
	})
	require.NoError(t, err)
	// (115-95)/10 * 20 + 110
	assert.InDelta(t, 150, got, 1e-9)
}

func TestModifiedZ_ConfigOverridesScaleAndOffset(t *testing.T) {
	engine := NewEngine()

	got, err := engine.Normalize(models.MethodModifiedZ, Params{
		RawScore: 110, ShiftMean: 100, ShiftStdDev: 10,
		GlobalMean: 110, GlobalStdDev: 20,
		Config: models.NormalizationSettings{Multiplier: 15, BaseScore: 50},
	})
	require.NoError(t, err)
	assert.InDelta(t, 65, got, 1e-9)
}

func TestCustom_AffineTransform(t *testing.T) {
	engine := NewEngine()

	got, err := engine.Normalize(models.MethodCustom, Params{
		RawScore: 80,
		Config:   models.NormalizationSettings{Multiplier: 0.5, BaseScore: 10},
	})
	require.NoError(t, err)
	assert.InDelta(t, 50, got, 1e-9)

	// No config degrades to identity.
	got, err = engine.Normalize(models.MethodCustom, Params{RawScore: 80})
	require.NoError(t, err)
	assert.Equal(t, 80.0, got)
}

func TestEngine_UnknownMethod(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Normalize(models.NormalizationMethod("rank_sum"), Params{})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestEngine_BulkCapability(t *testing.T) {
	engine := NewEngine()

	cases := map[models.NormalizationMethod]bool{
		models.MethodZScore:     true,
		models.MethodRaw:        true,
		models.MethodPercentile: false,
		models.MethodEquating:   false,
		models.MethodModifiedZ:  false,
		models.MethodCustom:     false,
	}
	for tag, want := range cases {
		got, err := engine.IsBulkCapable(tag)
		require.NoError(t, err)
		assert.Equal(t, want, got, "method %s", tag)
	}
}

func moments(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		sd += (x - mean) * (x - mean)
	}
	sd = math.Sqrt(sd / float64(len(xs)))
	return mean, sd
}
