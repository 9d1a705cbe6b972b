package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/exametrics/normalization-service/internal/cache"
	"github.com/exametrics/normalization-service/internal/events"
	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/normalization"
	"github.com/exametrics/normalization-service/internal/repositories"
)

// ProgressFunc receives incremental progress while a pipeline stage runs.
// Implementations must be cheap; they are called at every sub-phase and
// batch boundary.
type ProgressFunc func(processed, total int64, message string)

// GlobalStats is the exam-wide raw score statistics snapshot cached between
// the full run and the incremental path.
type GlobalStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int64   `json:"count"`
}

// NormalizationService runs the full batch normalization pipeline: shift
// statistics, global statistics, method application, watermark stamping.
type NormalizationService interface {
	// NormalizeExam runs the pipeline for one exam and returns the number of
	// submissions accounted for (processed or deliberately skipped).
	NormalizeExam(ctx context.Context, examID uint, progress ProgressFunc) (int64, error)

	// NormalizeAllActive runs the pipeline across every active exam. One
	// exam's failure does not abort the rest of the batch.
	NormalizeAllActive(ctx context.Context, progress ProgressFunc) (int64, error)
}

type normalizationService struct {
	repo       repositories.Repository
	engine     *normalization.Engine
	shiftStats ShiftStatsService
	cache      cache.CacheService
	publisher  events.EventPublisher
	logger     *slog.Logger

	batchSize    int
	samplePoints int
	cacheTTL     time.Duration
}

func NewNormalizationService(
	repo repositories.Repository,
	engine *normalization.Engine,
	shiftStats ShiftStatsService,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger *slog.Logger,
	batchSize int,
) NormalizationService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &normalizationService{
		repo:         repo,
		engine:       engine,
		shiftStats:   shiftStats,
		cache:        cacheService,
		publisher:    publisher,
		logger:       logger,
		batchSize:    batchSize,
		samplePoints: normalization.DefaultSamplePoints,
		cacheTTL:     24 * time.Hour,
	}
}

func (s *normalizationService) NormalizeExam(ctx context.Context, examID uint, progress ProgressFunc) (int64, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		return 0, fmt.Errorf("%w: exam %d", ErrExamNotFound, examID)
	}

	total, err := s.repo.Submission().CountByExam(ctx, exam.ID)
	if err != nil {
		return 0, fmt.Errorf("counting submissions for exam %d: %w", exam.ID, err)
	}

	if !exam.HasNormalization {
		// Administrative skip: the submissions still count toward progress so
		// batch totals stay consistent.
		progress(total, total, fmt.Sprintf("exam %d skipped: normalization disabled", exam.ID))
		return total, nil
	}

	processed := int64(0)
	if err := s.normalizeExam(ctx, exam, total, &processed, total, progress); err != nil {
		return processed, err
	}
	return total, nil
}

func (s *normalizationService) NormalizeAllActive(ctx context.Context, progress ProgressFunc) (int64, error) {
	exams, err := s.repo.Exam().GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving active exams: %w", err)
	}

	counts := make([]int64, len(exams))
	var total int64
	for i, exam := range exams {
		count, err := s.repo.Submission().CountByExam(ctx, exam.ID)
		if err != nil {
			return 0, fmt.Errorf("counting submissions for exam %d: %w", exam.ID, err)
		}
		counts[i] = count
		total += count
	}

	var processed int64
	for i, exam := range exams {
		if !exam.HasNormalization {
			processed += counts[i]
			progress(processed, total, fmt.Sprintf("exam %d skipped: normalization disabled", exam.ID))
			continue
		}

		examStart := processed
		if err := s.normalizeExam(ctx, exam, counts[i], &processed, total, progress); err != nil {
			// One bad exam must not abort the batch. Progress accounting
			// still advances past its submissions.
			s.logger.Error("exam normalization failed, continuing batch",
				"exam_id", exam.ID, "error", err)
			processed = examStart + counts[i]
			progress(processed, total, fmt.Sprintf("exam %d failed: %v", exam.ID, err))
		}
	}

	return processed, nil
}

// normalizeExam runs the per-exam pipeline. examTotal is the exam's own
// submission count; total is the whole batch's denominator.
func (s *normalizationService) normalizeExam(ctx context.Context, exam *models.Exam, examTotal int64, processed *int64, total int64, progress ProgressFunc) error {
	startProcessed := *processed

	if examTotal == 0 {
		progress(*processed, total, fmt.Sprintf("exam %d skipped: no submissions", exam.ID))
		return nil
	}

	method, err := s.engine.Method(exam.NormalizationMethod)
	if err != nil {
		// Unknown method is a configuration error: skip with note.
		*processed = startProcessed + examTotal
		progress(*processed, total, fmt.Sprintf("exam %d skipped: %v", exam.ID, err))
		return nil
	}

	progress(*processed, total, fmt.Sprintf("exam %d: computing shift statistics", exam.ID))
	shifts, err := s.shiftStats.ComputeForExam(ctx, exam)
	if err != nil {
		return fmt.Errorf("shift statistics for exam %d: %w", exam.ID, err)
	}

	progress(*processed, total, fmt.Sprintf("exam %d: computing global statistics", exam.ID))
	global, err := s.globalStats(ctx, exam.ID)
	if err != nil {
		return err
	}

	if method.BulkCapable() {
		if err := s.applyBulk(ctx, exam, global); err != nil {
			return err
		}
		*processed = startProcessed + examTotal
		progress(*processed, total, fmt.Sprintf("exam %d: normalized in bulk (%s)", exam.ID, exam.NormalizationMethod))
	} else {
		if err := s.applyPerRow(ctx, exam, shifts, global, processed, total, progress); err != nil {
			return err
		}
		*processed = startProcessed + examTotal
	}

	// The watermark is stamped only after every write above has committed,
	// so a crash mid-run leaves the last-known-good anchor.
	now := time.Now()
	if err := s.repo.Exam().StampWatermark(ctx, exam.ID, now, global.Count); err != nil {
		return fmt.Errorf("stamping watermark for exam %d: %w", exam.ID, err)
	}

	s.publishCompleted(ctx, exam, global.Count, now)
	progress(*processed, total, fmt.Sprintf("exam %d: normalization complete", exam.ID))
	return nil
}

// globalStats computes and caches the exam-wide raw score moments.
func (s *normalizationService) globalStats(ctx context.Context, examID uint) (*GlobalStats, error) {
	agg, err := s.repo.Submission().GlobalAggregates(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("global aggregates for exam %d: %w", examID, err)
	}
	if agg.Count == 0 || agg.Mean == nil {
		return nil, fmt.Errorf("%w: exam %d", ErrNoSubmissions, examID)
	}

	stats := &GlobalStats{Mean: *agg.Mean, Count: agg.Count}
	if agg.StdDev != nil {
		stats.StdDev = *agg.StdDev
	}

	if err := s.cache.Set(ctx, cache.GlobalStatsKey(examID), stats, s.cacheTTL); err != nil {
		// Cache failures degrade the incremental path, never the full run.
		s.logger.Warn("failed to cache global statistics", "exam_id", examID, "error", err)
	}
	return stats, nil
}

// applyBulk handles the set-based methods: z_score splits into the non-zero
// stddev update and the zero-variance raw fallback; raw is one statement.
func (s *normalizationService) applyBulk(ctx context.Context, exam *models.Exam, global *GlobalStats) error {
	switch exam.NormalizationMethod {
	case models.MethodZScore:
		updated, err := s.repo.Submission().BulkNormalizeZScore(ctx, exam.ID, global.Mean, global.StdDev)
		if err != nil {
			return fmt.Errorf("bulk z-score for exam %d: %w", exam.ID, err)
		}
		fallback, err := s.repo.Submission().BulkNormalizeZeroVarianceFallback(ctx, exam.ID)
		if err != nil {
			return fmt.Errorf("zero-variance fallback for exam %d: %w", exam.ID, err)
		}
		s.logger.Info("bulk z-score applied",
			"exam_id", exam.ID, "normalized", updated, "raw_fallback", fallback)
	case models.MethodRaw:
		updated, err := s.repo.Submission().BulkNormalizeRaw(ctx, exam.ID)
		if err != nil {
			return fmt.Errorf("bulk raw passthrough for exam %d: %w", exam.ID, err)
		}
		s.logger.Info("bulk raw passthrough applied", "exam_id", exam.ID, "normalized", updated)
	default:
		return fmt.Errorf("%w: %q marked bulk-capable", ErrUnknownMethod, exam.NormalizationMethod)
	}
	return nil
}

// applyPerRow iterates shift by shift, submission by submission within a
// shift ordered by raw score descending, and applies updates in bounded
// batches so no single transaction grows with the exam.
func (s *normalizationService) applyPerRow(ctx context.Context, exam *models.Exam, shifts []*models.Shift, global *GlobalStats, processed *int64, total int64, progress ProgressFunc) error {
	var dist *normalization.Distribution
	needsDistribution := exam.NormalizationMethod == models.MethodPercentile ||
		exam.NormalizationMethod == models.MethodEquating
	if needsDistribution {
		var err error
		dist, err = s.buildDistribution(ctx, exam.ID)
		if err != nil {
			return err
		}
	}

	settings := exam.Settings()

	for _, shift := range shifts {
		if shift.CandidateCount == 0 {
			continue
		}

		submissions, err := s.repo.Submission().ListByShiftOrderedByRaw(ctx, shift.ID)
		if err != nil {
			return fmt.Errorf("listing submissions for shift %d: %w", shift.ID, err)
		}

		shiftMean, shiftStdDev := 0.0, 0.0
		if shift.AvgRawScore != nil {
			shiftMean = *shift.AvgRawScore
		}
		if shift.StdDev != nil {
			shiftStdDev = *shift.StdDev
		}

		batch := make([]repositories.ScoreUpdate, 0, s.batchSize)
		// Competition rank: tied raw scores share a rank, and the rank jumps
		// past the tied block once the score strictly drops.
		rank := int64(1)
		for i, sub := range submissions {
			if i > 0 && sub.RawScore < submissions[i-1].RawScore {
				rank = int64(i + 1)
			}
			score, err := s.engine.Normalize(exam.NormalizationMethod, normalization.Params{
				RawScore:           sub.RawScore,
				ShiftMean:          shiftMean,
				ShiftStdDev:        shiftStdDev,
				ShiftMedian:        shift.MedianRawScore,
				GlobalMean:         global.Mean,
				GlobalStdDev:       global.StdDev,
				MaxMarks:           exam.MaxMarks,
				RankInShift:        rank,
				TotalInShift:       int64(len(submissions)),
				Config:             settings,
				GlobalDistribution: dist,
			})
			if err != nil {
				return fmt.Errorf("normalizing submission %d: %w", sub.ID, err)
			}

			batch = append(batch, repositories.ScoreUpdate{SubmissionID: sub.ID, NormalizedScore: score})
			if len(batch) >= s.batchSize {
				if err := s.flushBatch(ctx, exam.ID, batch, processed, total, progress); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := s.flushBatch(ctx, exam.ID, batch, processed, total, progress); err != nil {
			return err
		}
	}
	return nil
}

func (s *normalizationService) flushBatch(ctx context.Context, examID uint, batch []repositories.ScoreUpdate, processed *int64, total int64, progress ProgressFunc) error {
	if len(batch) == 0 {
		return nil
	}
	if err := s.repo.Submission().UpdateNormalizedScores(ctx, batch); err != nil {
		return fmt.Errorf("applying score batch for exam %d: %w", examID, err)
	}
	*processed += int64(len(batch))
	progress(*processed, total, fmt.Sprintf("exam %d: %d submissions normalized", examID, *processed))
	return nil
}

// buildDistribution produces the sampled percentile table shared by every
// row of the exam, and caches it for the incremental path.
func (s *normalizationService) buildDistribution(ctx context.Context, examID uint) (*normalization.Distribution, error) {
	scores, err := s.repo.Submission().RawScoresByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("loading raw scores for exam %d: %w", examID, err)
	}
	dist := normalization.NewDistribution(scores, s.samplePoints)

	if err := s.cache.Set(ctx, cache.DistributionKey(examID), dist.Snapshot(), s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache score distribution", "exam_id", examID, "error", err)
	}
	return dist, nil
}

func (s *normalizationService) publishCompleted(ctx context.Context, exam *models.Exam, covered int64, at time.Time) {
	event := &events.PipelineEvent{
		ID:        watermill.NewUUID(),
		Type:      events.EventNormalizationCompleted,
		Timestamp: at,
		Source:    "normalization-service",
		Version:   "1.0",
		Data: events.NormalizationCompletedEvent{
			ExamID:              exam.ID,
			NormalizationMethod: string(exam.NormalizationMethod),
			SubmissionsCovered:  covered,
			CompletedAt:         at,
		},
	}
	if err := s.publisher.PublishPipelineEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish normalization event", "exam_id", exam.ID, "error", err)
	}
}
