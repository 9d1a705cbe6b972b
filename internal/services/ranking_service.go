package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/exametrics/normalization-service/internal/events"
	"github.com/exametrics/normalization-service/internal/repositories"
)

// RankingService recomputes the four rank/percentile partitions (overall,
// category, shift, state) for an exam. Ranks are a property of the whole
// submission set, so every run covers the entire exam; re-running with no
// new data is a no-op by value.
type RankingService interface {
	RecalculateExam(ctx context.Context, examID uint) (int64, error)
	RecalculateAllActive(ctx context.Context, progress ProgressFunc) (int64, error)
}

type rankingService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewRankingService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger) RankingService {
	return &rankingService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *rankingService) RecalculateExam(ctx context.Context, examID uint) (int64, error) {
	if _, err := s.repo.Exam().GetByID(ctx, examID); err != nil {
		return 0, fmt.Errorf("%w: exam %d", ErrExamNotFound, examID)
	}

	updated, err := s.repo.Submission().RecalculateRanks(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("recalculating ranks for exam %d: %w", examID, err)
	}

	s.logger.Info("ranks recalculated", "exam_id", examID, "rows", updated)
	s.publishRecalculated(ctx, examID, updated)
	return updated, nil
}

func (s *rankingService) RecalculateAllActive(ctx context.Context, progress ProgressFunc) (int64, error) {
	exams, err := s.repo.Exam().GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving active exams: %w", err)
	}

	total := int64(len(exams))
	var updated int64
	for i, exam := range exams {
		rows, err := s.repo.Submission().RecalculateRanks(ctx, exam.ID)
		if err != nil {
			s.logger.Error("rank recalculation failed, continuing batch",
				"exam_id", exam.ID, "error", err)
			progress(int64(i+1), total, fmt.Sprintf("exam %d failed: %v", exam.ID, err))
			continue
		}
		updated += rows
		s.publishRecalculated(ctx, exam.ID, rows)
		progress(int64(i+1), total, fmt.Sprintf("exam %d: %d rows ranked", exam.ID, rows))
	}

	return updated, nil
}

func (s *rankingService) publishRecalculated(ctx context.Context, examID uint, rows int64) {
	now := time.Now()
	event := &events.PipelineEvent{
		ID:        watermill.NewUUID(),
		Type:      events.EventRanksRecalculated,
		Timestamp: now,
		Source:    "normalization-service",
		Version:   "1.0",
		Data: events.RanksRecalculatedEvent{
			ExamID:       examID,
			RowsUpdated:  rows,
			CalculatedAt: now,
		},
	}
	if err := s.publisher.PublishPipelineEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish ranking event", "exam_id", examID, "error", err)
	}
}
