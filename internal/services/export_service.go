package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// ExportService produces downloadable reports of the pipeline's outputs.
type ExportService interface {
	// ExportExamReport builds an xlsx workbook with the exam's predicted
	// cutoffs and per-shift difficulty statistics.
	ExportExamReport(ctx context.Context, examID uint) ([]byte, error)
}

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
	}
}

func (s *exportService) ExportExamReport(ctx context.Context, examID uint) ([]byte, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("%w: exam %d", ErrExamNotFound, examID)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := s.writeCutoffSheet(ctx, f, examID); err != nil {
		return nil, err
	}
	if err := s.writeShiftSheet(ctx, f, examID); err != nil {
		return nil, err
	}

	// Drop the default sheet so the workbook opens on the cutoffs.
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook for exam %d: %w", examID, err)
	}

	s.logger.Info("exam report exported", "exam_id", examID, "exam_name", exam.Name)
	return buf.Bytes(), nil
}

func (s *exportService) writeCutoffSheet(ctx context.Context, f *excelize.File, examID uint) error {
	cutoffs, err := s.repo.Cutoff().GetByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("loading cutoffs for exam %d: %w", examID, err)
	}

	const sheet = "Cutoffs"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("creating sheet %q: %w", sheet, err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Category", "Post Code", "Expected Cutoff", "Safe Score", "Minimum Score", "Confidence"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, cutoff := range cutoffs {
		values := []interface{}{
			cutoff.Category,
			cutoff.PostCode,
			cutoff.ExpectedCutoff,
			cutoff.SafeScore,
			cutoff.MinimumScore,
			string(cutoff.ConfidenceLevel),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	return nil
}

func (s *exportService) writeShiftSheet(ctx context.Context, f *excelize.File, examID uint) error {
	shifts, err := s.repo.Shift().GetByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("loading shifts for exam %d: %w", examID, err)
	}

	const sheet = "Shift Statistics"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %q: %w", sheet, err)
	}

	headers := []string{"Shift", "Date", "Candidates", "Average", "Std Dev", "Median", "Max", "Min", "Difficulty Index", "Difficulty"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, shift := range shifts {
		values := []interface{}{
			shift.Name,
			shift.ShiftDate.Format("2006-01-02"),
			shift.CandidateCount,
			floatOrEmpty(shift.AvgRawScore),
			floatOrEmpty(shift.StdDev),
			floatOrEmpty(shift.MedianRawScore),
			floatOrEmpty(shift.MaxRawScore),
			floatOrEmpty(shift.MinRawScore),
			floatOrEmpty(shift.DifficultyIndex),
			labelOrEmpty(shift.DifficultyLabel),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
	return nil
}

func floatOrEmpty(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func labelOrEmpty[T ~string](v *T) interface{} {
	if v == nil {
		return ""
	}
	return string(*v)
}
