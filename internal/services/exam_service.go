package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/exametrics/normalization-service/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateExamRequest struct {
	Name                string                     `json:"name" validate:"required,min=1,max=200"`
	Year                int                        `json:"year" validate:"required,min=2000,max=2100"`
	Tier                string                     `json:"tier" validate:"omitempty,max=50"`
	MaxMarks            float64                    `json:"max_marks" validate:"required,gt=0"`
	QuestionCount       int                        `json:"question_count" validate:"required,min=1"`
	MarksPerCorrect     float64                    `json:"marks_per_correct" validate:"omitempty,gt=0"`
	NegativeMarks       float64                    `json:"negative_marks" validate:"omitempty,gte=0"`
	HasNormalization    bool                       `json:"has_normalization"`
	NormalizationMethod models.NormalizationMethod `json:"normalization_method" validate:"omitempty,normalization_method"`
	NormalizationConfig datatypes.JSON             `json:"normalization_config"`
	ReNormThreshold     float64                    `json:"re_norm_threshold" validate:"omitempty,gt=0,lte=100"`
}

type CreateShiftRequest struct {
	ExamID    uint   `json:"exam_id" validate:"required"`
	Name      string `json:"name" validate:"required,min=1,max=100"`
	ShiftDate string `json:"shift_date" validate:"required,datetime=2006-01-02"`
	Slot      string `json:"slot" validate:"omitempty,oneof=morning afternoon evening"`
}

// ExamService covers exam and shift administration around the pipeline.
type ExamService interface {
	Create(ctx context.Context, req *CreateExamRequest) (*models.Exam, error)
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	List(ctx context.Context, filters repositories.ExamFilters) ([]*models.Exam, int64, error)
	GetShifts(ctx context.Context, examID uint) ([]*models.Shift, error)
	AddShift(ctx context.Context, req *CreateShiftRequest) (*models.Shift, error)
}

type examService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *utils.Validator
}

func NewExamService(repo repositories.Repository, logger *slog.Logger, validator *utils.Validator) ExamService {
	return &examService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

func (s *examService) Create(ctx context.Context, req *CreateExamRequest) (*models.Exam, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	method := req.NormalizationMethod
	if method == "" {
		method = models.MethodZScore
	}
	threshold := req.ReNormThreshold
	if threshold == 0 {
		threshold = 5
	}

	exam := &models.Exam{
		Name:                req.Name,
		Year:                req.Year,
		Tier:                req.Tier,
		MaxMarks:            req.MaxMarks,
		QuestionCount:       req.QuestionCount,
		MarksPerCorrect:     req.MarksPerCorrect,
		NegativeMarks:       req.NegativeMarks,
		HasNormalization:    req.HasNormalization,
		NormalizationMethod: method,
		NormalizationConfig: req.NormalizationConfig,
		ReNormThreshold:     threshold,
		IsActive:            true,
	}
	if err := s.repo.Exam().Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("creating exam: %w", err)
	}

	s.logger.Info("exam created", "exam_id", exam.ID, "name", exam.Name, "method", exam.NormalizationMethod)
	return exam, nil
}

func (s *examService) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: exam %d", ErrExamNotFound, id)
		}
		return nil, err
	}
	return exam, nil
}

func (s *examService) List(ctx context.Context, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	return s.repo.Exam().List(ctx, filters)
}

func (s *examService) GetShifts(ctx context.Context, examID uint) ([]*models.Shift, error) {
	if _, err := s.GetByID(ctx, examID); err != nil {
		return nil, err
	}
	return s.repo.Shift().GetByExam(ctx, examID)
}

func (s *examService) AddShift(ctx context.Context, req *CreateShiftRequest) (*models.Shift, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	exam, err := s.GetByID(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	shiftDate, err := utils.ParseDate(req.ShiftDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid shift_date %q", ErrBadRequest, req.ShiftDate)
	}

	shift := &models.Shift{
		ExamID:    exam.ID,
		Name:      req.Name,
		ShiftDate: shiftDate,
		Slot:      req.Slot,
	}
	if err := s.repo.Shift().Create(ctx, shift); err != nil {
		return nil, fmt.Errorf("creating shift: %w", err)
	}

	s.logger.Info("shift created", "exam_id", exam.ID, "shift_id", shift.ID, "name", shift.Name)
	return shift, nil
}
