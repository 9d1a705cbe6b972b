package services

import (
	"context"
	"time"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/stretchr/testify/mock"
)

// MockExamRepository is a mock implementation of ExamRepository
type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Exam), args.Error(1)
}

func (m *MockExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockExamRepository) List(ctx context.Context, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.Exam), args.Get(1).(int64), args.Error(2)
}

func (m *MockExamRepository) GetActive(ctx context.Context) ([]*models.Exam, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Exam), args.Error(1)
}

func (m *MockExamRepository) StampWatermark(ctx context.Context, examID uint, at time.Time, submissionCount int64) error {
	args := m.Called(ctx, examID, at, submissionCount)
	return args.Error(0)
}

// MockShiftRepository is a mock implementation of ShiftRepository
type MockShiftRepository struct {
	mock.Mock
}

func (m *MockShiftRepository) Create(ctx context.Context, shift *models.Shift) error {
	args := m.Called(ctx, shift)
	return args.Error(0)
}

func (m *MockShiftRepository) GetByID(ctx context.Context, id uint) (*models.Shift, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Shift), args.Error(1)
}

func (m *MockShiftRepository) GetByExam(ctx context.Context, examID uint) ([]*models.Shift, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).([]*models.Shift), args.Error(1)
}

func (m *MockShiftRepository) UpdateStats(ctx context.Context, shift *models.Shift) error {
	args := m.Called(ctx, shift)
	return args.Error(0)
}

// MockSubmissionRepository is a mock implementation of SubmissionRepository
type MockSubmissionRepository struct {
	mock.Mock
}

func (m *MockSubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	args := m.Called(ctx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) GetByRollNumber(ctx context.Context, examID uint, rollNumber string) (*models.Submission, error) {
	args := m.Called(ctx, examID, rollNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	args := m.Called(ctx, examID, filters)
	return args.Get(0).([]*models.Submission), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubmissionRepository) CountByExam(ctx context.Context, examID uint) (int64, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) CountNormalizedByExam(ctx context.Context, examID uint) (int64, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) CountByShift(ctx context.Context, shiftID uint) (int64, error) {
	args := m.Called(ctx, shiftID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) CountHigherInShift(ctx context.Context, shiftID uint, rawScore float64) (int64, error) {
	args := m.Called(ctx, shiftID, rawScore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) ShiftAggregates(ctx context.Context, examID uint) ([]repositories.ShiftAggregate, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).([]repositories.ShiftAggregate), args.Error(1)
}

func (m *MockSubmissionRepository) GlobalAggregates(ctx context.Context, examID uint) (*repositories.ScoreAggregate, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.ScoreAggregate), args.Error(1)
}

func (m *MockSubmissionRepository) RawScoresByExam(ctx context.Context, examID uint) ([]float64, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).([]float64), args.Error(1)
}

func (m *MockSubmissionRepository) ListByShiftOrderedByRaw(ctx context.Context, shiftID uint) ([]*models.Submission, error) {
	args := m.Called(ctx, shiftID)
	return args.Get(0).([]*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) BulkNormalizeZScore(ctx context.Context, examID uint, globalMean, globalStdDev float64) (int64, error) {
	args := m.Called(ctx, examID, globalMean, globalStdDev)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) BulkNormalizeZeroVarianceFallback(ctx context.Context, examID uint) (int64, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) BulkNormalizeRaw(ctx context.Context, examID uint) (int64, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) UpdateNormalizedScores(ctx context.Context, updates []repositories.ScoreUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

func (m *MockSubmissionRepository) UpdateNormalizedScore(ctx context.Context, submissionID uint, score float64) error {
	args := m.Called(ctx, submissionID, score)
	return args.Error(0)
}

func (m *MockSubmissionRepository) RecalculateRanks(ctx context.Context, examID uint) (int64, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) DistinctCategories(ctx context.Context, examID uint) ([]string, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSubmissionRepository) CountNormalizedByCategory(ctx context.Context, examID uint, category string) (int64, error) {
	args := m.Called(ctx, examID, category)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) CategoryPercentileScore(ctx context.Context, examID uint, category string, fraction float64) (*float64, error) {
	args := m.Called(ctx, examID, category, fraction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*float64), args.Error(1)
}

// MockCutoffRepository is a mock implementation of CutoffRepository
type MockCutoffRepository struct {
	mock.Mock
}

func (m *MockCutoffRepository) Upsert(ctx context.Context, cutoff *models.Cutoff) error {
	args := m.Called(ctx, cutoff)
	return args.Error(0)
}

func (m *MockCutoffRepository) GetByExam(ctx context.Context, examID uint) ([]*models.Cutoff, error) {
	args := m.Called(ctx, examID)
	return args.Get(0).([]*models.Cutoff), args.Error(1)
}

func (m *MockCutoffRepository) GetByExamAndCategory(ctx context.Context, examID uint, category string) (*models.Cutoff, error) {
	args := m.Called(ctx, examID, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cutoff), args.Error(1)
}

// MockJobRunRepository is a mock implementation of JobRunRepository
type MockJobRunRepository struct {
	mock.Mock
}

func (m *MockJobRunRepository) Create(ctx context.Context, run *models.JobRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockJobRunRepository) GetByID(ctx context.Context, id uint) (*models.JobRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobRun), args.Error(1)
}

func (m *MockJobRunRepository) List(ctx context.Context, filters repositories.JobRunFilters) ([]*models.JobRun, int64, error) {
	args := m.Called(ctx, filters)
	return args.Get(0).([]*models.JobRun), args.Get(1).(int64), args.Error(2)
}

func (m *MockJobRunRepository) MarkRunning(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRunRepository) UpdateProgress(ctx context.Context, id uint, processed, total int64, message string) error {
	args := m.Called(ctx, id, processed, total, message)
	return args.Error(0)
}

func (m *MockJobRunRepository) MarkSuccess(ctx context.Context, id uint, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

func (m *MockJobRunRepository) MarkFailed(ctx context.Context, id uint, errMessage, errStack string) error {
	args := m.Called(ctx, id, errMessage, errStack)
	return args.Error(0)
}

// mockRepository bundles the entity mocks behind the aggregate interface
type mockRepository struct {
	exam       *MockExamRepository
	shift      *MockShiftRepository
	submission *MockSubmissionRepository
	cutoff     *MockCutoffRepository
	jobRun     *MockJobRunRepository
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		exam:       new(MockExamRepository),
		shift:      new(MockShiftRepository),
		submission: new(MockSubmissionRepository),
		cutoff:     new(MockCutoffRepository),
		jobRun:     new(MockJobRunRepository),
	}
}

func (r *mockRepository) Exam() repositories.ExamRepository             { return r.exam }
func (r *mockRepository) Shift() repositories.ShiftRepository           { return r.shift }
func (r *mockRepository) Submission() repositories.SubmissionRepository { return r.submission }
func (r *mockRepository) Cutoff() repositories.CutoffRepository         { return r.cutoff }
func (r *mockRepository) JobRun() repositories.JobRunRepository         { return r.jobRun }

// MockCacheService is an in-memory stand-in for the Redis cache
type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockCacheService) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}

func (m *MockCacheService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockCacheService) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) ReleaseLock(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
