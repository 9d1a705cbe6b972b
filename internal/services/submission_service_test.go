package services

import (
	"context"
	"testing"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockReevaluationService is a mock implementation of ReevaluationService
type MockReevaluationService struct {
	mock.Mock
}

func (m *MockReevaluationService) ProcessNewSubmission(ctx context.Context, event NewSubmissionEvent) (*ReevaluationResult, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ReevaluationResult), args.Error(1)
}

func newSubmissionFixture() (*mockRepository, *MockReevaluationService, SubmissionService) {
	repo := newMockRepository()
	reevaluation := new(MockReevaluationService)
	svc := NewSubmissionService(repo, reevaluation, testLogger(), utils.NewValidator())
	return repo, reevaluation, svc
}

func validIngestRequest() *CreateSubmissionRequest {
	return &CreateSubmissionRequest{
		RollNumber: "RN-1001",
		ExamID:     1,
		ShiftID:    11,
		Category:   "UR",
		RawScore:   142.5,
	}
}

func TestIngest_RejectsDuplicateRollNumber(t *testing.T) {
	repo, reevaluation, svc := newSubmissionFixture()

	exam := &models.Exam{MaxMarks: 200}
	exam.ID = 1
	shift := &models.Shift{ExamID: 1}
	shift.ID = 11
	existing := &models.Submission{RollNumber: "RN-1001", ExamID: 1}
	existing.ID = 500

	repo.exam.On("GetByID", mock.Anything, uint(1)).Return(exam, nil)
	repo.shift.On("GetByID", mock.Anything, uint(11)).Return(shift, nil)
	repo.submission.On("GetByRollNumber", mock.Anything, uint(1), "RN-1001").Return(existing, nil)

	_, _, err := svc.Ingest(context.Background(), validIngestRequest())

	assert.ErrorIs(t, err, ErrDuplicateRollNumber)
	repo.submission.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	reevaluation.AssertNotCalled(t, "ProcessNewSubmission", mock.Anything, mock.Anything)
}

func TestIngest_RejectsScoreAboveMaxMarks(t *testing.T) {
	repo, _, svc := newSubmissionFixture()

	exam := &models.Exam{MaxMarks: 100}
	exam.ID = 1
	shift := &models.Shift{ExamID: 1}
	shift.ID = 11

	repo.exam.On("GetByID", mock.Anything, uint(1)).Return(exam, nil)
	repo.shift.On("GetByID", mock.Anything, uint(11)).Return(shift, nil)

	req := validIngestRequest()
	req.RawScore = 142.5

	_, _, err := svc.Ingest(context.Background(), req)

	assert.ErrorIs(t, err, ErrBadRequest)
	repo.submission.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngest_RejectsShiftFromAnotherExam(t *testing.T) {
	repo, _, svc := newSubmissionFixture()

	exam := &models.Exam{MaxMarks: 200}
	exam.ID = 1
	shift := &models.Shift{ExamID: 99}
	shift.ID = 11

	repo.exam.On("GetByID", mock.Anything, uint(1)).Return(exam, nil)
	repo.shift.On("GetByID", mock.Anything, uint(11)).Return(shift, nil)

	_, _, err := svc.Ingest(context.Background(), validIngestRequest())

	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestIngest_PersistsAndReevaluates(t *testing.T) {
	repo, reevaluation, svc := newSubmissionFixture()

	exam := &models.Exam{MaxMarks: 200}
	exam.ID = 1
	shift := &models.Shift{ExamID: 1}
	shift.ID = 11

	repo.exam.On("GetByID", mock.Anything, uint(1)).Return(exam, nil)
	repo.shift.On("GetByID", mock.Anything, uint(11)).Return(shift, nil)
	repo.submission.On("GetByRollNumber", mock.Anything, uint(1), "RN-1001").Return(nil, gorm.ErrRecordNotFound)
	repo.submission.On("Create", mock.Anything, mock.AnythingOfType("*models.Submission")).
		Run(func(args mock.Arguments) {
			sub := args.Get(1).(*models.Submission)
			sub.ID = 777
		}).
		Return(nil)
	reevaluation.On("ProcessNewSubmission", mock.Anything, NewSubmissionEvent{
		SubmissionID: 777, ExamID: 1, ShiftID: 11, RawScore: 142.5,
	}).Return(&ReevaluationResult{RanksRecalculated: true}, nil)

	submission, result, err := svc.Ingest(context.Background(), validIngestRequest())

	require.NoError(t, err)
	require.NotNil(t, submission)
	assert.Equal(t, uint(777), submission.ID)
	assert.Nil(t, submission.NormalizedScore)
	require.NotNil(t, result)
	assert.True(t, result.RanksRecalculated)
}

func TestIngest_ReportsReevaluationFailureWithoutRollback(t *testing.T) {
	repo, reevaluation, svc := newSubmissionFixture()

	exam := &models.Exam{MaxMarks: 200}
	exam.ID = 1
	shift := &models.Shift{ExamID: 1}
	shift.ID = 11

	repo.exam.On("GetByID", mock.Anything, uint(1)).Return(exam, nil)
	repo.shift.On("GetByID", mock.Anything, uint(11)).Return(shift, nil)
	repo.submission.On("GetByRollNumber", mock.Anything, uint(1), "RN-1001").Return(nil, gorm.ErrRecordNotFound)
	repo.submission.On("Create", mock.Anything, mock.AnythingOfType("*models.Submission")).Return(nil)
	reevaluation.On("ProcessNewSubmission", mock.Anything, mock.AnythingOfType("services.NewSubmissionEvent")).
		Return(nil, assert.AnError)

	submission, result, err := svc.Ingest(context.Background(), validIngestRequest())

	require.Error(t, err)
	assert.NotNil(t, submission)
	assert.Nil(t, result)
}
