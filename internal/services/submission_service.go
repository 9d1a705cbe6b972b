package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/exametrics/normalization-service/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateSubmissionRequest struct {
	RollNumber    string         `json:"roll_number" validate:"required,min=1,max=50"`
	ExamID        uint           `json:"exam_id" validate:"required"`
	ShiftID       uint           `json:"shift_id" validate:"required"`
	CandidateName string         `json:"candidate_name" validate:"omitempty,max=150"`
	DateOfBirth   *time.Time     `json:"date_of_birth"`
	Category      string         `json:"category" validate:"omitempty,max=20"`
	Gender        string         `json:"gender" validate:"omitempty,max=10"`
	State         string         `json:"state" validate:"omitempty,max=50"`
	RawScore      float64        `json:"raw_score"`
	SectionScores datatypes.JSON `json:"section_scores"`
}

// SubmissionService persists scored submissions arriving from the ingestion
// side and hands each new row to the incremental reevaluation pass.
type SubmissionService interface {
	Ingest(ctx context.Context, req *CreateSubmissionRequest) (*models.Submission, *ReevaluationResult, error)
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error)
}

type submissionService struct {
	repo         repositories.Repository
	reevaluation ReevaluationService
	logger       *slog.Logger
	validator    *utils.Validator
}

func NewSubmissionService(repo repositories.Repository, reevaluation ReevaluationService, logger *slog.Logger, validator *utils.Validator) SubmissionService {
	return &submissionService{
		repo:         repo,
		reevaluation: reevaluation,
		logger:       logger,
		validator:    validator,
	}
}

func (s *submissionService) Ingest(ctx context.Context, req *CreateSubmissionRequest) (*models.Submission, *ReevaluationResult, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, nil, err
	}

	exam, err := s.repo.Exam().GetByID(ctx, req.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: exam %d", ErrExamNotFound, req.ExamID)
	}

	shift, err := s.repo.Shift().GetByID(ctx, req.ShiftID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: shift %d", ErrShiftNotFound, req.ShiftID)
	}
	if shift.ExamID != exam.ID {
		return nil, nil, fmt.Errorf("%w: shift %d does not belong to exam %d", ErrBadRequest, shift.ID, exam.ID)
	}

	if req.RawScore > exam.MaxMarks {
		return nil, nil, fmt.Errorf("%w: raw score %.2f exceeds max marks %.2f", ErrBadRequest, req.RawScore, exam.MaxMarks)
	}

	if _, err := s.repo.Submission().GetByRollNumber(ctx, exam.ID, req.RollNumber); err == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateRollNumber, req.RollNumber)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("checking roll number %s: %w", req.RollNumber, err)
	}

	// Rank and normalized-score fields start null: "pending" until the
	// reevaluation pass or the next full run covers the row.
	submission := &models.Submission{
		RollNumber:    req.RollNumber,
		ExamID:        req.ExamID,
		ShiftID:       req.ShiftID,
		CandidateName: req.CandidateName,
		DateOfBirth:   req.DateOfBirth,
		Category:      req.Category,
		Gender:        req.Gender,
		State:         req.State,
		RawScore:      req.RawScore,
		SectionScores: req.SectionScores,
	}
	if err := s.repo.Submission().Create(ctx, submission); err != nil {
		return nil, nil, fmt.Errorf("persisting submission: %w", err)
	}

	result, err := s.reevaluation.ProcessNewSubmission(ctx, NewSubmissionEvent{
		SubmissionID: submission.ID,
		ExamID:       submission.ExamID,
		ShiftID:      submission.ShiftID,
		RawScore:     submission.RawScore,
	})
	if err != nil {
		// The row is durably stored; reevaluation can be repeated by the next
		// full run, so ingestion reports the failure without rolling back.
		s.logger.Error("incremental reevaluation failed",
			"submission_id", submission.ID, "exam_id", submission.ExamID, "error", err)
		return submission, nil, fmt.Errorf("reevaluating submission %d: %w", submission.ID, err)
	}

	return submission, result, nil
}

func (s *submissionService) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	submission, err := s.repo.Submission().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: submission %d", ErrSubmissionNotFound, id)
		}
		return nil, err
	}
	return submission, nil
}

func (s *submissionService) ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	return s.repo.Submission().ListByExam(ctx, examID, filters)
}
