package normalization

import (
	"github.com/exametrics/normalization-service/internal/models"
)

// zScoreMethod maps a raw score onto the exam-wide distribution by standard
// score: (raw - shiftMean) / shiftStdDev * globalStdDev + globalMean.
type zScoreMethod struct{}

func (zScoreMethod) Tag() models.NormalizationMethod { return models.MethodZScore }
func (zScoreMethod) BulkCapable() bool               { return true }

func (zScoreMethod) Normalize(p Params) (float64, error) {
	// A shift with no score spread cannot be z-normalized. Explicit branch,
	// never a division-by-zero accident.
	if p.ShiftStdDev == 0 {
		return p.RawScore, nil
	}
	z := (p.RawScore - p.ShiftMean) / p.ShiftStdDev
	return z*p.GlobalStdDev + p.GlobalMean, nil
}

// rawMethod is the identity mapping, used when normalization is
// administratively disabled but ranking still needs the field populated.
type rawMethod struct{}

func (rawMethod) Tag() models.NormalizationMethod { return models.MethodRaw }
func (rawMethod) BulkCapable() bool               { return true }

func (rawMethod) Normalize(p Params) (float64, error) {
	return p.RawScore, nil
}

// percentileMethod performs equipercentile mapping: locate the candidate's
// percentile within their own shift, then read the score at that percentile
// off the exam-wide distribution. Registered under both the percentile and
// equating tags.
type percentileMethod struct {
	tag models.NormalizationMethod
}

func (m percentileMethod) Tag() models.NormalizationMethod { return m.tag }
func (percentileMethod) BulkCapable() bool                 { return false }

func (percentileMethod) Normalize(p Params) (float64, error) {
	if p.GlobalDistribution == nil || p.GlobalDistribution.Len() == 0 {
		return 0, ErrMissingDistribution
	}
	// Single-candidate shifts have no within-shift ordering to map from.
	if p.TotalInShift <= 1 {
		return p.RawScore, nil
	}
	pct := ShiftPercentile(p.RankInShift, p.TotalInShift)
	return p.GlobalDistribution.ScoreAt(pct), nil
}

// modifiedZMethod is a robust variant of the z-score: it centers on the
// shift median when the cached median is available, and the scale and offset
// are overridable through the exam's normalization config.
type modifiedZMethod struct{}

func (modifiedZMethod) Tag() models.NormalizationMethod { return models.MethodModifiedZ }
func (modifiedZMethod) BulkCapable() bool               { return false }

func (modifiedZMethod) Normalize(p Params) (float64, error) {
	if p.ShiftStdDev == 0 {
		return p.RawScore, nil
	}
	center := p.ShiftMean
	if p.ShiftMedian != nil {
		center = *p.ShiftMedian
	}
	scale := p.GlobalStdDev
	if p.Config.Multiplier != 0 {
		scale = p.Config.Multiplier
	}
	offset := p.GlobalMean
	if p.Config.BaseScore != 0 {
		offset = p.Config.BaseScore
	}
	z := (p.RawScore - center) / p.ShiftStdDev
	return z*scale + offset, nil
}

// customMethod applies an exam-configured affine transform to the raw score.
// With no config present it degrades to the identity mapping.
type customMethod struct{}

func (customMethod) Tag() models.NormalizationMethod { return models.MethodCustom }
func (customMethod) BulkCapable() bool               { return false }

func (customMethod) Normalize(p Params) (float64, error) {
	mult := p.Config.Multiplier
	if mult == 0 {
		mult = 1
	}
	return p.Config.BaseScore + mult*p.RawScore, nil
}
