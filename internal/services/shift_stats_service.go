package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
)

// ShiftStatsService recomputes and persists cached per-shift statistics and
// the composite difficulty score. It must run to completion for every shift
// of an exam before normalization formulas are applied.
type ShiftStatsService interface {
	ComputeForExam(ctx context.Context, exam *models.Exam) ([]*models.Shift, error)
}

type shiftStatsService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewShiftStatsService(repo repositories.Repository, logger *slog.Logger) ShiftStatsService {
	return &shiftStatsService{
		repo:   repo,
		logger: logger,
	}
}

// Difficulty composite weights: distance of the shift average from max marks,
// coefficient of variation capped at 1, and the topper gap.
const (
	difficultyWeightAvg    = 0.4
	difficultyWeightSpread = 0.3
	difficultyWeightTopper = 0.3

	difficultyHardThreshold     = 0.55
	difficultyModerateThreshold = 0.38

	// Empty shifts get a neutral index instead of erroring.
	difficultyIndexDefault = 0.5
)

func (s *shiftStatsService) ComputeForExam(ctx context.Context, exam *models.Exam) ([]*models.Shift, error) {
	shifts, err := s.repo.Shift().GetByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching shifts for exam %d: %w", exam.ID, err)
	}

	aggregates, err := s.repo.Submission().ShiftAggregates(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("aggregating shift statistics for exam %d: %w", exam.ID, err)
	}
	byShift := make(map[uint]repositories.ShiftAggregate, len(aggregates))
	for _, agg := range aggregates {
		byShift[agg.ShiftID] = agg
	}

	for _, shift := range shifts {
		agg, ok := byShift[shift.ID]
		if !ok {
			agg = repositories.ShiftAggregate{ShiftID: shift.ID}
		}

		shift.CandidateCount = agg.CandidateCount
		shift.AvgRawScore = agg.AvgRawScore
		shift.StdDev = agg.StdDev
		shift.MaxRawScore = agg.MaxRawScore
		shift.MinRawScore = agg.MinRawScore
		shift.MedianRawScore = agg.MedianRawScore

		index, label := DifficultyScore(agg, exam.MaxMarks)
		shift.DifficultyIndex = &index
		shift.DifficultyLabel = &label

		factor := normalizationFactor(agg, exam.MaxMarks)
		shift.NormalizationFactor = &factor

		if err := s.repo.Shift().UpdateStats(ctx, shift); err != nil {
			return nil, fmt.Errorf("persisting statistics for shift %d: %w", shift.ID, err)
		}

		s.logger.Debug("shift statistics updated",
			"exam_id", exam.ID,
			"shift_id", shift.ID,
			"candidates", shift.CandidateCount,
			"difficulty_index", index,
			"difficulty_label", label)
	}

	return shifts, nil
}

// DifficultyScore derives the composite difficulty index and label for one
// shift. Each factor lands in roughly [0,1]; the composite is not clamped
// but realistic data stays near that range.
func DifficultyScore(agg repositories.ShiftAggregate, maxMarks float64) (float64, models.DifficultyLabel) {
	if agg.CandidateCount == 0 || agg.AvgRawScore == nil || maxMarks <= 0 {
		return difficultyIndexDefault, models.DifficultyModerate
	}

	avg := *agg.AvgRawScore

	avgFactor := 1 - avg/maxMarks

	spreadFactor := 0.0
	if agg.StdDev != nil && avg != 0 {
		spreadFactor = *agg.StdDev / avg
		if spreadFactor > 1 {
			spreadFactor = 1
		}
	}

	topperFactor := 0.0
	if agg.MaxRawScore != nil {
		topperFactor = (*agg.MaxRawScore - avg) / maxMarks
	}

	index := difficultyWeightAvg*avgFactor +
		difficultyWeightSpread*spreadFactor +
		difficultyWeightTopper*topperFactor

	return index, difficultyLabel(index)
}

func difficultyLabel(index float64) models.DifficultyLabel {
	switch {
	case index > difficultyHardThreshold:
		return models.DifficultyHard
	case index > difficultyModerateThreshold:
		return models.DifficultyModerate
	default:
		return models.DifficultyEasy
	}
}

// normalizationFactor is the shift average expressed as a fraction of max
// marks, cached for reporting.
func normalizationFactor(agg repositories.ShiftAggregate, maxMarks float64) float64 {
	if agg.AvgRawScore == nil || maxMarks <= 0 {
		return 1
	}
	return *agg.AvgRawScore / maxMarks
}
