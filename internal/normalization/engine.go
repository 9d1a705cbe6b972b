// Package normalization holds all normalization math for the service. The
// engine is pure: no persistence, no I/O, every method is a function from
// statistics to a score, which keeps the formulas independently testable.
package normalization

import (
	"errors"
	"fmt"

	"github.com/exametrics/normalization-service/internal/models"
)

var (
	ErrUnknownMethod       = errors.New("unknown normalization method")
	ErrMissingDistribution = errors.New("global distribution required for equipercentile methods")
)

// Params carries everything a method may need. Not every method reads every
// field; z_score ignores the distribution, percentile ignores the stddevs.
type Params struct {
	RawScore float64

	ShiftMean   float64
	ShiftStdDev float64
	// ShiftMedian is set when the shift's cached median is available; methods
	// that prefer a robust center fall back to ShiftMean when nil.
	ShiftMedian *float64

	GlobalMean   float64
	GlobalStdDev float64

	MaxMarks float64

	// Rank of the candidate within their shift by raw score descending
	// (1 = top scorer) and the shift's candidate count. Only equipercentile
	// methods read these.
	RankInShift  int64
	TotalInShift int64

	Config models.NormalizationSettings

	GlobalDistribution *Distribution
}

// Method is one normalization strategy. BulkCapable methods can be expressed
// as a single set-based SQL update; the rest run through the batched per-row
// path.
type Method interface {
	Tag() models.NormalizationMethod
	BulkCapable() bool
	Normalize(p Params) (float64, error)
}

// Engine dispatches to registered methods by tag. Adding a method is a
// registration, not a change to any caller.
type Engine struct {
	methods map[models.NormalizationMethod]Method
}

func NewEngine() *Engine {
	e := &Engine{methods: make(map[models.NormalizationMethod]Method)}
	e.Register(zScoreMethod{})
	e.Register(rawMethod{})
	e.Register(percentileMethod{tag: models.MethodPercentile})
	e.Register(percentileMethod{tag: models.MethodEquating})
	e.Register(modifiedZMethod{})
	e.Register(customMethod{})
	return e
}

func (e *Engine) Register(m Method) {
	e.methods[m.Tag()] = m
}

// Method returns the strategy registered for the tag.
func (e *Engine) Method(tag models.NormalizationMethod) (Method, error) {
	m, ok := e.methods[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, tag)
	}
	return m, nil
}

// Normalize computes the normalized score for one candidate.
func (e *Engine) Normalize(tag models.NormalizationMethod, p Params) (float64, error) {
	m, err := e.Method(tag)
	if err != nil {
		return 0, err
	}
	return m.Normalize(p)
}

// IsBulkCapable reports whether the method can be applied as one set-based
// update instead of a per-row loop.
func (e *Engine) IsBulkCapable(tag models.NormalizationMethod) (bool, error) {
	m, err := e.Method(tag)
	if err != nil {
		return false, err
	}
	return m.BulkCapable(), nil
}
