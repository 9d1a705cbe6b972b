package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/exametrics/normalization-service/internal/cache"
	"github.com/exametrics/normalization-service/internal/events"
	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
)

// JobService is the orchestration layer for pipeline runs: it owns JobRun
// lifecycle transitions, progress accounting, and the one-active-job-per-exam
// guarantee (via a Redis lock). Stages run in the background; callers poll
// the JobRun for liveness.
type JobService interface {
	StartJob(ctx context.Context, jobType models.JobType, examID *uint) (*models.JobRun, error)
	GetJob(ctx context.Context, id uint) (*models.JobRun, error)
	ListJobs(ctx context.Context, filters repositories.JobRunFilters) ([]*models.JobRun, int64, error)
}

type jobService struct {
	repo          repositories.Repository
	normalization NormalizationService
	ranking       RankingService
	cutoffs       CutoffService
	cache         cache.CacheService
	publisher     events.EventPublisher
	logger        *slog.Logger

	lockTTL time.Duration
}

func NewJobService(
	repo repositories.Repository,
	normalizationService NormalizationService,
	rankingService RankingService,
	cutoffService CutoffService,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger *slog.Logger,
) JobService {
	return &jobService{
		repo:          repo,
		normalization: normalizationService,
		ranking:       rankingService,
		cutoffs:       cutoffService,
		cache:         cacheService,
		publisher:     publisher,
		logger:        logger,
		lockTTL:       30 * time.Minute,
	}
}

func (s *jobService) StartJob(ctx context.Context, jobType models.JobType, examID *uint) (*models.JobRun, error) {
	// Concurrent pipeline runs against the same exam interleave writes. An
	// exam-scoped job holds that exam's lock; an all-exams job holds the
	// catalogue lock plus every active exam's lock, so the two scopes can
	// never write the same exam concurrently.
	var lockKeys []string
	if examID != nil {
		if _, err := s.repo.Exam().GetByID(ctx, *examID); err != nil {
			return nil, fmt.Errorf("%w: exam %d", ErrExamNotFound, *examID)
		}
		lockKeys = []string{cache.ExamJobLockKey(*examID)}
	} else {
		exams, err := s.repo.Exam().GetActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving active exams: %w", err)
		}
		lockKeys = make([]string, 0, len(exams)+1)
		lockKeys = append(lockKeys, cache.AllExamsJobLockKey)
		for _, exam := range exams {
			lockKeys = append(lockKeys, cache.ExamJobLockKey(exam.ID))
		}
	}

	if err := s.acquireLocks(ctx, lockKeys); err != nil {
		return nil, err
	}

	run := &models.JobRun{
		JobType: jobType,
		Status:  models.JobStatusPending,
		ExamID:  examID,
	}
	if err := s.repo.JobRun().Create(ctx, run); err != nil {
		s.releaseLocks(ctx, lockKeys)
		return nil, fmt.Errorf("creating job run: %w", err)
	}

	// The run outlives the request; it carries its own context and reports
	// through the JobRun row.
	go s.execute(run, jobType, examID, lockKeys)

	return run, nil
}

// acquireLocks takes every key or none: a partial grab is rolled back before
// reporting the conflict.
func (s *jobService) acquireLocks(ctx context.Context, keys []string) error {
	for i, key := range keys {
		acquired, err := s.cache.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			s.releaseLocks(ctx, keys[:i])
			return fmt.Errorf("acquiring job lock %q: %w", key, err)
		}
		if !acquired {
			s.releaseLocks(ctx, keys[:i])
			return ErrJobAlreadyActive
		}
	}
	return nil
}

func (s *jobService) releaseLocks(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.cache.ReleaseLock(ctx, key); err != nil {
			s.logger.Warn("failed to release job lock", "key", key, "error", err)
		}
	}
}

func (s *jobService) GetJob(ctx context.Context, id uint) (*models.JobRun, error) {
	run, err := s.repo.JobRun().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: job run %d", ErrJobNotFound, id)
	}
	return run, nil
}

func (s *jobService) ListJobs(ctx context.Context, filters repositories.JobRunFilters) ([]*models.JobRun, int64, error) {
	return s.repo.JobRun().List(ctx, filters)
}

func (s *jobService) execute(run *models.JobRun, jobType models.JobType, examID *uint, lockKeys []string) {
	ctx := context.Background()

	defer s.releaseLocks(ctx, lockKeys)
	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("panic: %v", r)
			s.failJob(ctx, run, message, string(debug.Stack()))
		}
	}()

	if err := s.repo.JobRun().MarkRunning(ctx, run.ID); err != nil {
		s.logger.Error("failed to mark job running", "job_run_id", run.ID, "error", err)
		return
	}

	progress := func(processed, total int64, message string) {
		if err := s.repo.JobRun().UpdateProgress(ctx, run.ID, processed, total, message); err != nil {
			s.logger.Warn("failed to update job progress", "job_run_id", run.ID, "error", err)
		}
	}

	message, err := s.runStage(ctx, jobType, examID, progress)
	if err != nil {
		s.failJob(ctx, run, err.Error(), errorStack(err))
		return
	}

	if err := s.repo.JobRun().MarkSuccess(ctx, run.ID, message); err != nil {
		s.logger.Error("failed to mark job success", "job_run_id", run.ID, "error", err)
	}
	s.logger.Info("job completed", "job_run_id", run.ID, "job_type", jobType, "message", message)
}

func (s *jobService) runStage(ctx context.Context, jobType models.JobType, examID *uint, progress ProgressFunc) (string, error) {
	switch jobType {
	case models.JobTypeNormalization:
		if examID != nil {
			processed, err := s.normalization.NormalizeExam(ctx, *examID, progress)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("normalized %d submissions for exam %d", processed, *examID), nil
		}
		processed, err := s.normalization.NormalizeAllActive(ctx, progress)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("normalized %d submissions across active exams", processed), nil

	case models.JobTypeRankCalculation:
		if examID != nil {
			rows, err := s.ranking.RecalculateExam(ctx, *examID)
			if err != nil {
				return "", err
			}
			progress(1, 1, fmt.Sprintf("exam %d: %d rows ranked", *examID, rows))
			return fmt.Sprintf("ranked %d submissions for exam %d", rows, *examID), nil
		}
		rows, err := s.ranking.RecalculateAllActive(ctx, progress)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ranked %d submissions across active exams", rows), nil

	case models.JobTypeCutoffPrediction:
		if examID != nil {
			cutoffs, err := s.cutoffs.PredictForExam(ctx, *examID)
			if err != nil {
				// The readiness gate is a documented skip, not a job failure.
				if IsSkip(err) {
					progress(1, 1, err.Error())
					return err.Error(), nil
				}
				return "", err
			}
			progress(1, 1, fmt.Sprintf("exam %d: %d cutoffs predicted", *examID, len(cutoffs)))
			return fmt.Sprintf("predicted %d cutoffs for exam %d", len(cutoffs), *examID), nil
		}
		predicted, err := s.cutoffs.PredictAllActive(ctx, progress)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("predicted %d cutoffs across active exams", predicted), nil

	default:
		return "", fmt.Errorf("%w: unknown job type %q", ErrBadRequest, jobType)
	}
}

func (s *jobService) failJob(ctx context.Context, run *models.JobRun, message, stack string) {
	s.logger.Error("job failed", "job_run_id", run.ID, "job_type", run.JobType, "error", message)

	if err := s.repo.JobRun().MarkFailed(ctx, run.ID, message, stack); err != nil {
		s.logger.Error("failed to mark job failed", "job_run_id", run.ID, "error", err)
	}

	now := time.Now()
	event := &events.PipelineEvent{
		ID:        watermill.NewUUID(),
		Type:      events.EventJobFailed,
		Timestamp: now,
		Source:    "normalization-service",
		Version:   "1.0",
		Data: events.JobFailedEvent{
			JobRunID: run.ID,
			JobType:  string(run.JobType),
			ExamID:   run.ExamID,
			Error:    message,
			FailedAt: now,
		},
	}
	if err := s.publisher.PublishPipelineEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish job failure event", "job_run_id", run.ID, "error", err)
	}
}

// errorStack renders the wrapped error chain, the closest analogue to a
// stack trace for plain error values.
func errorStack(err error) string {
	stack := ""
	for depth := 0; err != nil; depth++ {
		stack += fmt.Sprintf("%*s%s\n", depth*2, "", err.Error())
		err = errors.Unwrap(err)
	}
	return stack
}
