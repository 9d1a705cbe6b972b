package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f64(v float64) *float64 { return &v }

func TestDifficultyScore_AverageOnlyComponent(t *testing.T) {
	// Average at half of max marks, no spread, topper equal to the average:
	// only the average-distance component contributes.
	agg := repositories.ShiftAggregate{
		ShiftID:        1,
		CandidateCount: 200,
		AvgRawScore:    f64(50),
		StdDev:         f64(0),
		MaxRawScore:    f64(50),
	}

	index, label := DifficultyScore(agg, 100)

	assert.InDelta(t, 0.20, index, 1e-9)
	assert.Equal(t, models.DifficultyEasy, label)
}

func TestDifficultyScore_HardShift(t *testing.T) {
	// Low average, spread above the average (capped at 1), wide topper gap.
	agg := repositories.ShiftAggregate{
		ShiftID:        2,
		CandidateCount: 500,
		AvgRawScore:    f64(20),
		StdDev:         f64(25),
		MaxRawScore:    f64(80),
	}

	index, label := DifficultyScore(agg, 100)

	// 0.4*0.8 + 0.3*1.0 + 0.3*0.6
	assert.InDelta(t, 0.80, index, 1e-9)
	assert.Equal(t, models.DifficultyHard, label)
}

func TestDifficultyScore_ModerateShift(t *testing.T) {
	agg := repositories.ShiftAggregate{
		ShiftID:        3,
		CandidateCount: 300,
		AvgRawScore:    f64(50),
		StdDev:         f64(20),
		MaxRawScore:    f64(90),
	}

	index, label := DifficultyScore(agg, 100)

	// 0.4*0.5 + 0.3*0.4 + 0.3*0.4
	assert.InDelta(t, 0.44, index, 1e-9)
	assert.Equal(t, models.DifficultyModerate, label)
}

func TestDifficultyScore_EmptyShiftDefaults(t *testing.T) {
	agg := repositories.ShiftAggregate{ShiftID: 4}

	index, label := DifficultyScore(agg, 100)

	assert.Equal(t, 0.5, index)
	assert.Equal(t, models.DifficultyModerate, label)
}

func TestComputeForExam_PersistsStatsForEveryShift(t *testing.T) {
	repo := newMockRepository()
	svc := NewShiftStatsService(repo, testLogger())

	exam := &models.Exam{MaxMarks: 200}
	exam.ID = 7

	shiftA := &models.Shift{ExamID: 7}
	shiftA.ID = 71
	shiftB := &models.Shift{ExamID: 7}
	shiftB.ID = 72

	repo.shift.On("GetByExam", mock.Anything, uint(7)).Return([]*models.Shift{shiftA, shiftB}, nil)
	repo.submission.On("ShiftAggregates", mock.Anything, uint(7)).Return([]repositories.ShiftAggregate{
		{
			ShiftID:        71,
			CandidateCount: 120,
			AvgRawScore:    f64(90),
			StdDev:         f64(18),
			MaxRawScore:    f64(170),
			MinRawScore:    f64(12),
			MedianRawScore: f64(88),
		},
		// Shift 72 has no submissions and is absent from the aggregates.
	}, nil)
	repo.shift.On("UpdateStats", mock.Anything, mock.AnythingOfType("*models.Shift")).Return(nil)

	shifts, err := svc.ComputeForExam(context.Background(), exam)

	require.NoError(t, err)
	require.Len(t, shifts, 2)

	assert.Equal(t, int64(120), shiftA.CandidateCount)
	require.NotNil(t, shiftA.AvgRawScore)
	assert.Equal(t, 90.0, *shiftA.AvgRawScore)
	require.NotNil(t, shiftA.DifficultyIndex)
	require.NotNil(t, shiftA.DifficultyLabel)
	require.NotNil(t, shiftA.NormalizationFactor)
	assert.InDelta(t, 0.45, *shiftA.NormalizationFactor, 1e-9)

	// The empty shift still gets a neutral difficulty and persisted stats.
	assert.Equal(t, int64(0), shiftB.CandidateCount)
	require.NotNil(t, shiftB.DifficultyIndex)
	assert.Equal(t, 0.5, *shiftB.DifficultyIndex)
	assert.Equal(t, models.DifficultyModerate, *shiftB.DifficultyLabel)

	repo.shift.AssertNumberOfCalls(t, "UpdateStats", 2)
}
