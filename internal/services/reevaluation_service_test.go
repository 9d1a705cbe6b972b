package services

import (
	"context"
	"testing"
	"time"

	"github.com/exametrics/normalization-service/internal/cache"
	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/normalization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRankingService is a mock implementation of RankingService
type MockRankingService struct {
	mock.Mock
}

func (m *MockRankingService) RecalculateExam(ctx context.Context, examID uint) (int64, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRankingService) RecalculateAllActive(ctx context.Context, progress ProgressFunc) (int64, error) {
	args := m.Called(ctx, progress)
	return args.Get(0).(int64), args.Error(1)
}

// MockCutoffService is a mock implementation of CutoffService
type MockCutoffService struct {
	mock.Mock
}

func (m *MockCutoffService) PredictForExam(ctx context.Context, examID uint) ([]*models.Cutoff, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Cutoff), args.Error(1)
}

func (m *MockCutoffService) PredictAllActive(ctx context.Context, progress ProgressFunc) (int64, error) {
	args := m.Called(ctx, progress)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCutoffService) GetForExam(ctx context.Context, examID uint) ([]*models.Cutoff, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).([]*models.Cutoff), args.Error(1)
}

func newReevaluationFixture() (*mockRepository, *MockRankingService, *MockCutoffService, *MockCacheService, ReevaluationService) {
	repo := newMockRepository()
	ranking := new(MockRankingService)
	cutoffs := new(MockCutoffService)
	cacheService := new(MockCacheService)
	svc := NewReevaluationService(repo, normalization.NewEngine(), ranking, cutoffs, cacheService, testLogger())
	return repo, ranking, cutoffs, cacheService, svc
}

func TestProcessNewSubmission_DriftBelowThreshold(t *testing.T) {
	repo, ranking, cutoffs, _, svc := newReevaluationFixture()

	// Never normalized, so step one skips and no shift lookup happens.
	exam := &models.Exam{
		HasNormalization:        true,
		MaxMarks:                200,
		ReNormThreshold:         5,
		SubsAtLastNormalization: 1000,
	}
	exam.ID = 3

	repo.exam.On("GetByID", mock.Anything, uint(3)).Return(exam, nil)
	ranking.On("RecalculateExam", mock.Anything, uint(3)).Return(int64(1049), nil)
	repo.submission.On("CountByExam", mock.Anything, uint(3)).Return(int64(1049), nil)

	result, err := svc.ProcessNewSubmission(context.Background(), NewSubmissionEvent{
		SubmissionID: 42, ExamID: 3, ShiftID: 31, RawScore: 150,
	})

	require.NoError(t, err)
	assert.Nil(t, result.NormalizedScore)
	assert.True(t, result.RanksRecalculated)
	assert.False(t, result.Significance.IsSignificant)
	assert.InDelta(t, 4.9, result.Significance.PercentNew, 1e-9)

	cutoffs.AssertNotCalled(t, "PredictForExam", mock.Anything, mock.Anything)
}

func TestProcessNewSubmission_DriftAboveThresholdRefreshesCutoffs(t *testing.T) {
	repo, ranking, cutoffs, _, svc := newReevaluationFixture()

	exam := &models.Exam{
		HasNormalization:        true,
		MaxMarks:                200,
		ReNormThreshold:         5,
		SubsAtLastNormalization: 1000,
	}
	exam.ID = 3

	repo.exam.On("GetByID", mock.Anything, uint(3)).Return(exam, nil)
	ranking.On("RecalculateExam", mock.Anything, uint(3)).Return(int64(1051), nil)
	repo.submission.On("CountByExam", mock.Anything, uint(3)).Return(int64(1051), nil)
	cutoffs.On("PredictForExam", mock.Anything, uint(3)).Return([]*models.Cutoff{}, nil)

	result, err := svc.ProcessNewSubmission(context.Background(), NewSubmissionEvent{
		SubmissionID: 43, ExamID: 3, ShiftID: 31, RawScore: 150,
	})

	require.NoError(t, err)
	assert.True(t, result.Significance.IsSignificant)
	assert.InDelta(t, 5.1, result.Significance.PercentNew, 1e-9)

	cutoffs.AssertCalled(t, "PredictForExam", mock.Anything, uint(3))
}

func TestProcessNewSubmission_FirstSubmissionIsSignificant(t *testing.T) {
	repo, ranking, cutoffs, _, svc := newReevaluationFixture()

	// Zero anchor: any new submission counts as full drift.
	exam := &models.Exam{
		HasNormalization:        true,
		MaxMarks:                200,
		ReNormThreshold:         5,
		SubsAtLastNormalization: 0,
	}
	exam.ID = 4

	repo.exam.On("GetByID", mock.Anything, uint(4)).Return(exam, nil)
	ranking.On("RecalculateExam", mock.Anything, uint(4)).Return(int64(1), nil)
	repo.submission.On("CountByExam", mock.Anything, uint(4)).Return(int64(1), nil)
	cutoffs.On("PredictForExam", mock.Anything, uint(4)).
		Return(nil, NewSkipError(4, "no submissions", ErrNoSubmissions))

	result, err := svc.ProcessNewSubmission(context.Background(), NewSubmissionEvent{
		SubmissionID: 1, ExamID: 4, ShiftID: 41, RawScore: 90,
	})

	// An unready cutoff refresh is tolerated; the pass still succeeds.
	require.NoError(t, err)
	assert.True(t, result.Significance.IsSignificant)
	assert.Equal(t, 100.0, result.Significance.PercentNew)
}

func TestProcessNewSubmission_IncrementalZScoreFromCachedStats(t *testing.T) {
	repo, ranking, cutoffs, cacheService, svc := newReevaluationFixture()

	normalizedAt := time.Now().Add(-time.Hour)
	exam := &models.Exam{
		HasNormalization:        true,
		NormalizationMethod:     models.MethodZScore,
		MaxMarks:                200,
		ReNormThreshold:         5,
		LastNormalizedAt:        &normalizedAt,
		SubsAtLastNormalization: 1000,
	}
	exam.ID = 8

	shift := &models.Shift{
		ExamID:      8,
		AvgRawScore: f64(100),
		StdDev:      f64(10),
	}
	shift.ID = 81

	repo.exam.On("GetByID", mock.Anything, uint(8)).Return(exam, nil)
	repo.shift.On("GetByID", mock.Anything, uint(81)).Return(shift, nil)
	cacheService.On("Get", mock.Anything, cache.GlobalStatsKey(8), mock.Anything).
		Run(func(args mock.Arguments) {
			stats := args.Get(2).(*GlobalStats)
			*stats = GlobalStats{Mean: 95, StdDev: 15, Count: 1000}
		}).
		Return(nil)
	repo.submission.On("UpdateNormalizedScore", mock.Anything, uint(42), 125.0).Return(nil)
	ranking.On("RecalculateExam", mock.Anything, uint(8)).Return(int64(1001), nil)
	repo.submission.On("CountByExam", mock.Anything, uint(8)).Return(int64(1001), nil)

	result, err := svc.ProcessNewSubmission(context.Background(), NewSubmissionEvent{
		SubmissionID: 42, ExamID: 8, ShiftID: 81, RawScore: 120,
	})

	require.NoError(t, err)
	require.NotNil(t, result.NormalizedScore)
	// (120-100)/10 scaled onto the global moments: 95 + 2*15.
	assert.InDelta(t, 125.0, *result.NormalizedScore, 1e-9)
	assert.False(t, result.Significance.IsSignificant)

	repo.submission.AssertCalled(t, "UpdateNormalizedScore", mock.Anything, uint(42), 125.0)
	cutoffs.AssertNotCalled(t, "PredictForExam", mock.Anything, mock.Anything)
}

func TestProcessNewSubmission_SkipsWithoutUsableShiftStats(t *testing.T) {
	repo, ranking, _, _, svc := newReevaluationFixture()

	normalizedAt := time.Now().Add(-time.Hour)
	exam := &models.Exam{
		HasNormalization:        true,
		NormalizationMethod:     models.MethodZScore,
		MaxMarks:                200,
		ReNormThreshold:         5,
		LastNormalizedAt:        &normalizedAt,
		SubsAtLastNormalization: 1000,
	}
	exam.ID = 12

	// Cached stats were never computed for this shift.
	shift := &models.Shift{ExamID: 12}
	shift.ID = 121

	repo.exam.On("GetByID", mock.Anything, uint(12)).Return(exam, nil)
	repo.shift.On("GetByID", mock.Anything, uint(121)).Return(shift, nil)
	ranking.On("RecalculateExam", mock.Anything, uint(12)).Return(int64(1000), nil)
	repo.submission.On("CountByExam", mock.Anything, uint(12)).Return(int64(1001), nil)

	result, err := svc.ProcessNewSubmission(context.Background(), NewSubmissionEvent{
		SubmissionID: 55, ExamID: 12, ShiftID: 121, RawScore: 70,
	})

	require.NoError(t, err)
	assert.Nil(t, result.NormalizedScore)
	assert.True(t, result.RanksRecalculated)
	repo.submission.AssertNotCalled(t, "UpdateNormalizedScore", mock.Anything, mock.Anything, mock.Anything)
}
