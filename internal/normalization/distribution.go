package normalization

import (
	"math"
	"sort"
)

// DefaultSamplePoints gives one point per 0.1 percentile across 0-100.
const DefaultSamplePoints = 1001

// Distribution is a sampled percentile-to-score table for one exam, built
// once per normalization run and shared across every row of the exam.
type Distribution struct {
	// percentiles and scores are parallel slices, percentiles ascending.
	percentiles []float64
	scores      []float64
}

// NewDistribution builds the table from the exam's raw scores by sorting once
// and sampling order statistics in memory, rather than issuing one
// order-statistic query per sample point.
func NewDistribution(rawScores []float64, samplePoints int) *Distribution {
	if samplePoints < 2 {
		samplePoints = DefaultSamplePoints
	}
	if len(rawScores) == 0 {
		return &Distribution{}
	}

	sorted := make([]float64, len(rawScores))
	copy(sorted, rawScores)
	sort.Float64s(sorted)

	d := &Distribution{
		percentiles: make([]float64, 0, samplePoints),
		scores:      make([]float64, 0, samplePoints),
	}
	for i := 0; i < samplePoints; i++ {
		pct := float64(i) / float64(samplePoints-1) * 100
		d.percentiles = append(d.percentiles, pct)
		d.scores = append(d.scores, quantile(sorted, pct))
	}
	return d
}

func (d *Distribution) Len() int {
	return len(d.percentiles)
}

// DistributionSnapshot is the serializable form of a Distribution, used to
// carry the table through the cache between pipeline runs.
type DistributionSnapshot struct {
	Percentiles []float64 `json:"percentiles"`
	Scores      []float64 `json:"scores"`
}

func (d *Distribution) Snapshot() DistributionSnapshot {
	return DistributionSnapshot{Percentiles: d.percentiles, Scores: d.scores}
}

func FromSnapshot(s DistributionSnapshot) *Distribution {
	if len(s.Percentiles) != len(s.Scores) {
		return &Distribution{}
	}
	return &Distribution{percentiles: s.Percentiles, scores: s.Scores}
}

// ScoreAt returns the score at the given percentile, linearly interpolated
// between sample points. Percentiles outside [0,100] are clamped.
func (d *Distribution) ScoreAt(pct float64) float64 {
	n := len(d.percentiles)
	if n == 0 {
		return 0
	}
	if pct <= d.percentiles[0] {
		return d.scores[0]
	}
	if pct >= d.percentiles[n-1] {
		return d.scores[n-1]
	}
	i := sort.SearchFloat64s(d.percentiles, pct)
	lo, hi := d.percentiles[i-1], d.percentiles[i]
	if hi == lo {
		return d.scores[i]
	}
	frac := (pct - lo) / (hi - lo)
	return d.scores[i-1] + frac*(d.scores[i]-d.scores[i-1])
}

// quantile computes the pct-th percentile of an ascending-sorted slice using
// linear interpolation between closest ranks, matching PERCENTILE_CONT.
func quantile(sorted []float64, pct float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := pct / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// ShiftPercentile converts a within-shift rank (1 = top, by raw score
// descending) into the percentage of shift-mates the candidate scored at or
// above, matching PERCENT_RANK semantics. Callers guard total <= 1.
func ShiftPercentile(rank, total int64) float64 {
	if total <= 1 {
		return 100
	}
	return float64(total-rank) / float64(total-1) * 100
}
