package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/exametrics/normalization-service/internal/cache"
	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/normalization"
	"github.com/exametrics/normalization-service/internal/repositories"
)

// NewSubmissionEvent is the payload the ingestion endpoint hands over right
// after a submission is persisted.
type NewSubmissionEvent struct {
	SubmissionID uint    `json:"submission_id" validate:"required"`
	ExamID       uint    `json:"exam_id" validate:"required"`
	ShiftID      uint    `json:"shift_id" validate:"required"`
	RawScore     float64 `json:"raw_score"`
}

// Significance describes how far the exam has drifted from its last full
// normalization.
type Significance struct {
	IsSignificant bool    `json:"is_significant"`
	NewCount      int64   `json:"new_count"`
	TotalCount    int64   `json:"total_count"`
	PercentNew    float64 `json:"percent_new"`
	Threshold     float64 `json:"threshold"`
}

// ReevaluationResult reports what the incremental pass did for one new
// submission.
type ReevaluationResult struct {
	NormalizedScore   *float64     `json:"normalized_score"`
	RanksRecalculated bool         `json:"ranks_recalculated"`
	Significance      Significance `json:"significance"`
}

// ReevaluationService is the incremental counterpart of the full pipeline:
// O(1) normalization of the new row from cached shift statistics, a full
// re-rank (cheap enough to always run), and a significance check deciding
// whether cutoffs deserve a refresh. The significance threshold is the knob
// trading cutoff freshness against recomputation cost.
type ReevaluationService interface {
	ProcessNewSubmission(ctx context.Context, event NewSubmissionEvent) (*ReevaluationResult, error)
}

type reevaluationService struct {
	repo    repositories.Repository
	engine  *normalization.Engine
	ranking RankingService
	cutoffs CutoffService
	cache   cache.CacheService
	logger  *slog.Logger
}

func NewReevaluationService(
	repo repositories.Repository,
	engine *normalization.Engine,
	ranking RankingService,
	cutoffs CutoffService,
	cacheService cache.CacheService,
	logger *slog.Logger,
) ReevaluationService {
	return &reevaluationService{
		repo:    repo,
		engine:  engine,
		ranking: ranking,
		cutoffs: cutoffs,
		cache:   cacheService,
		logger:  logger,
	}
}

func (s *reevaluationService) ProcessNewSubmission(ctx context.Context, event NewSubmissionEvent) (*ReevaluationResult, error) {
	exam, err := s.repo.Exam().GetByID(ctx, event.ExamID)
	if err != nil {
		return nil, fmt.Errorf("%w: exam %d", ErrExamNotFound, event.ExamID)
	}

	result := &ReevaluationResult{}

	// Step 1: normalize just this row from cached shift statistics. A nil
	// score here is the legitimate "not yet normalized" state.
	score, err := s.normalizeIncremental(ctx, exam, event)
	if err != nil {
		return nil, err
	}
	if score != nil {
		if err := s.repo.Submission().UpdateNormalizedScore(ctx, event.SubmissionID, *score); err != nil {
			return nil, fmt.Errorf("persisting normalized score for submission %d: %w", event.SubmissionID, err)
		}
		result.NormalizedScore = score
	}

	// Step 2: ranks always recompute over the whole exam. They must never
	// silently go stale relative to the submission set.
	if _, err := s.ranking.RecalculateExam(ctx, exam.ID); err != nil {
		return nil, err
	}
	result.RanksRecalculated = true

	// Step 3: significance decides whether cutoffs get refreshed.
	significance, err := s.checkSignificance(ctx, exam)
	if err != nil {
		return nil, err
	}
	result.Significance = *significance

	if significance.IsSignificant {
		if _, err := s.cutoffs.PredictForExam(ctx, exam.ID); err != nil {
			// Incomplete normalization is expected while drift accumulates;
			// the next full run covers it.
			if IsSkip(err) {
				s.logger.Info("cutoff refresh skipped", "exam_id", exam.ID, "reason", err)
			} else {
				return nil, err
			}
		}
	}

	return result, nil
}

// normalizeIncremental applies the exam's method to one row using shift
// statistics as cached by the last full run. Skips, leaving the score nil,
// when the exam has never been normalized, normalization is disabled, or the
// shift has no usable cached statistics.
func (s *reevaluationService) normalizeIncremental(ctx context.Context, exam *models.Exam, event NewSubmissionEvent) (*float64, error) {
	if !exam.HasNormalization || exam.LastNormalizedAt == nil {
		s.logger.Debug("incremental normalization skipped",
			"exam_id", exam.ID,
			"submission_id", event.SubmissionID,
			"reason", "exam not yet normalized")
		return nil, nil
	}

	shift, err := s.repo.Shift().GetByID(ctx, event.ShiftID)
	if err != nil {
		return nil, fmt.Errorf("%w: shift %d", ErrShiftNotFound, event.ShiftID)
	}
	if !shift.HasUsableStats() {
		s.logger.Debug("incremental normalization skipped",
			"exam_id", exam.ID,
			"shift_id", shift.ID,
			"reason", "no cached shift statistics")
		return nil, nil
	}

	params := normalization.Params{
		RawScore:    event.RawScore,
		ShiftMean:   *shift.AvgRawScore,
		ShiftStdDev: *shift.StdDev,
		ShiftMedian: shift.MedianRawScore,
		MaxMarks:    exam.MaxMarks,
		Config:      exam.Settings(),
	}

	global, err := s.cachedGlobalStats(ctx, exam.ID)
	if err != nil {
		return nil, err
	}
	params.GlobalMean = global.Mean
	params.GlobalStdDev = global.StdDev

	method, err := s.engine.Method(exam.NormalizationMethod)
	if err != nil {
		// Unknown method is a configuration problem: skip, don't fail the
		// ingestion callback.
		s.logger.Warn("incremental normalization skipped",
			"exam_id", exam.ID, "reason", err)
		return nil, nil
	}

	if !method.BulkCapable() {
		if err := s.fillEquipercentileParams(ctx, exam, event, &params); err != nil {
			return nil, err
		}
		if params.GlobalDistribution == nil &&
			(exam.NormalizationMethod == models.MethodPercentile || exam.NormalizationMethod == models.MethodEquating) {
			// No cached distribution to map against; the next full run will
			// normalize this row.
			return nil, nil
		}
	}

	score, err := method.Normalize(params)
	if err != nil {
		return nil, fmt.Errorf("normalizing submission %d: %w", event.SubmissionID, err)
	}
	return &score, nil
}

// cachedGlobalStats reads the exam-wide moments cached by the last full run,
// falling back to one aggregate query on a cache miss.
func (s *reevaluationService) cachedGlobalStats(ctx context.Context, examID uint) (*GlobalStats, error) {
	var stats GlobalStats
	err := s.cache.Get(ctx, cache.GlobalStatsKey(examID), &stats)
	if err == nil && stats.Count > 0 {
		return &stats, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("global stats cache read failed", "exam_id", examID, "error", err)
	}

	agg, aggErr := s.repo.Submission().GlobalAggregates(ctx, examID)
	if aggErr != nil {
		return nil, fmt.Errorf("global aggregates for exam %d: %w", examID, aggErr)
	}
	if agg.Count == 0 || agg.Mean == nil {
		return nil, fmt.Errorf("%w: exam %d", ErrNoSubmissions, examID)
	}
	fresh := &GlobalStats{Mean: *agg.Mean, Count: agg.Count}
	if agg.StdDev != nil {
		fresh.StdDev = *agg.StdDev
	}
	return fresh, nil
}

// fillEquipercentileParams resolves rank-in-shift and the cached global
// distribution for the per-row methods.
func (s *reevaluationService) fillEquipercentileParams(ctx context.Context, exam *models.Exam, event NewSubmissionEvent, params *normalization.Params) error {
	higher, err := s.repo.Submission().CountHigherInShift(ctx, event.ShiftID, event.RawScore)
	if err != nil {
		return fmt.Errorf("ranking submission %d in shift %d: %w", event.SubmissionID, event.ShiftID, err)
	}
	total, err := s.repo.Submission().CountByShift(ctx, event.ShiftID)
	if err != nil {
		return fmt.Errorf("counting shift %d: %w", event.ShiftID, err)
	}
	params.RankInShift = higher + 1
	params.TotalInShift = total

	var snapshot normalization.DistributionSnapshot
	err = s.cache.Get(ctx, cache.DistributionKey(exam.ID), &snapshot)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	if err != nil {
		s.logger.Warn("distribution cache read failed", "exam_id", exam.ID, "error", err)
		return nil
	}
	dist := normalization.FromSnapshot(snapshot)
	if dist.Len() > 0 {
		params.GlobalDistribution = dist
	}
	return nil
}

// checkSignificance computes submission growth since the last full
// normalization against the exam's threshold.
func (s *reevaluationService) checkSignificance(ctx context.Context, exam *models.Exam) (*Significance, error) {
	total, err := s.repo.Submission().CountByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("counting submissions for exam %d: %w", exam.ID, err)
	}

	threshold := exam.ReNormThreshold
	if threshold <= 0 {
		threshold = 5
	}

	anchor := exam.SubsAtLastNormalization
	newCount := total - anchor
	if newCount < 0 {
		newCount = 0
	}

	percentNew := 0.0
	if anchor == 0 {
		if newCount > 0 {
			percentNew = 100
		}
	} else {
		percentNew = float64(newCount) / float64(anchor) * 100
	}

	return &Significance{
		IsSignificant: percentNew >= threshold,
		NewCount:      newCount,
		TotalCount:    total,
		PercentNew:    percentNew,
		Threshold:     threshold,
	}, nil
}
