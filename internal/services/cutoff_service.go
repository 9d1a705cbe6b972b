package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/exametrics/normalization-service/internal/events"
	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
)

// DefaultSelectionRatios is the policy table for category selection: the
// fraction of a category's candidate pool expected to be selected. Exams can
// override per category through their normalization config.
var DefaultSelectionRatios = map[string]float64{
	"UR":  0.15,
	"OBC": 0.18,
	"EWS": 0.18,
	"SC":  0.20,
	"ST":  0.25,
}

const (
	// Proceed only when at least this fraction of the exam's submissions
	// carry a normalized score.
	cutoffReadinessRatio = 0.90

	// Fixed-margin bands around the statistical cutoff.
	cutoffSafeMargin = 5.0

	// Data points needed before a prediction is labeled high confidence.
	cutoffHighConfidencePoints = 100

	// Fallback ratio for categories absent from both the exam config and the
	// default table.
	fallbackSelectionRatio = 0.15
)

// CutoffService predicts category-wise cutoffs from the normalized score
// distribution via percentile selection ratios.
type CutoffService interface {
	// PredictForExam computes and upserts cutoffs for every category present
	// in the exam's submissions. Returns ErrNormalizationIncomplete (wrapped)
	// when fewer than 90% of submissions are normalized.
	PredictForExam(ctx context.Context, examID uint) ([]*models.Cutoff, error)

	PredictAllActive(ctx context.Context, progress ProgressFunc) (int64, error)

	GetForExam(ctx context.Context, examID uint) ([]*models.Cutoff, error)
}

type cutoffService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewCutoffService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger) CutoffService {
	return &cutoffService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *cutoffService) PredictForExam(ctx context.Context, examID uint) ([]*models.Cutoff, error) {
	exam, err := s.repo.Exam().GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("%w: exam %d", ErrExamNotFound, examID)
	}

	total, err := s.repo.Submission().CountByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("counting submissions for exam %d: %w", exam.ID, err)
	}
	if total == 0 {
		return nil, NewSkipError(exam.ID, "no submissions",
			fmt.Errorf("%w: exam %d", ErrNoSubmissions, exam.ID))
	}

	normalized, err := s.repo.Submission().CountNormalizedByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("counting normalized submissions for exam %d: %w", exam.ID, err)
	}

	// Readiness gate: a partially normalized set produces misleading
	// cutoffs, so the exam is skipped with the reason, not approximated.
	coverage := float64(normalized) / float64(total)
	if coverage < cutoffReadinessRatio {
		return nil, NewSkipError(exam.ID,
			fmt.Sprintf("%.1f%% normalization coverage, need %.0f%%", coverage*100, cutoffReadinessRatio*100),
			fmt.Errorf("%w: exam %d", ErrNormalizationIncomplete, exam.ID))
	}

	categories, err := s.repo.Submission().DistinctCategories(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("listing categories for exam %d: %w", exam.ID, err)
	}

	ratios := s.selectionRatios(exam)
	cutoffs := make([]*models.Cutoff, 0, len(categories))
	for _, category := range categories {
		cutoff, err := s.predictCategory(ctx, exam, category, ratios)
		if err != nil {
			return nil, err
		}
		if cutoff == nil {
			continue
		}
		cutoffs = append(cutoffs, cutoff)
	}

	s.publishUpdated(ctx, exam.ID, categories)
	return cutoffs, nil
}

func (s *cutoffService) predictCategory(ctx context.Context, exam *models.Exam, category string, ratios map[string]float64) (*models.Cutoff, error) {
	points, err := s.repo.Submission().CountNormalizedByCategory(ctx, exam.ID, category)
	if err != nil {
		return nil, fmt.Errorf("counting normalized scores for exam %d category %s: %w", exam.ID, category, err)
	}
	if points == 0 {
		s.logger.Debug("category has no normalized scores, skipping",
			"exam_id", exam.ID, "category", category)
		return nil, nil
	}

	ratio, ok := ratios[category]
	if !ok {
		ratio = fallbackSelectionRatio
	}

	// expectedCutoff is the score such that `ratio` of the category scores
	// above it: the (1 - ratio)-th percentile of normalized scores.
	score, err := s.repo.Submission().CategoryPercentileScore(ctx, exam.ID, category, 1-ratio)
	if err != nil {
		return nil, fmt.Errorf("percentile score for exam %d category %s: %w", exam.ID, category, err)
	}
	if score == nil {
		return nil, nil
	}

	confidence := models.ConfidenceMedium
	if points > cutoffHighConfidencePoints {
		confidence = models.ConfidenceHigh
	}

	basis, _ := json.Marshal(models.PredictionBasisData{
		Methodology:    "percentile_selection_ratio",
		Factors:        []string{"normalized_score_distribution", "category_selection_ratio"},
		DataPoints:     points,
		SelectionRatio: ratio,
	})

	cutoff := &models.Cutoff{
		ExamID:          exam.ID,
		Category:        category,
		PostCode:        models.PostCodePrediction,
		ExpectedCutoff:  *score,
		SafeScore:       *score + cutoffSafeMargin,
		MinimumScore:    *score - cutoffSafeMargin,
		ConfidenceLevel: confidence,
		PredictionBasis: basis,
	}

	if err := s.repo.Cutoff().Upsert(ctx, cutoff); err != nil {
		return nil, fmt.Errorf("upserting cutoff for exam %d category %s: %w", exam.ID, category, err)
	}

	s.logger.Info("cutoff predicted",
		"exam_id", exam.ID,
		"category", category,
		"expected_cutoff", cutoff.ExpectedCutoff,
		"confidence", confidence,
		"data_points", points)
	return cutoff, nil
}

func (s *cutoffService) PredictAllActive(ctx context.Context, progress ProgressFunc) (int64, error) {
	exams, err := s.repo.Exam().GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving active exams: %w", err)
	}

	total := int64(len(exams))
	var predicted int64
	for i, exam := range exams {
		cutoffs, err := s.PredictForExam(ctx, exam.ID)
		if err != nil {
			// Skip-notes (incomplete normalization, empty exams) and hard
			// failures both leave the rest of the batch running.
			if IsSkip(err) {
				s.logger.Info("cutoff prediction skipped",
					"exam_id", exam.ID, "reason", err)
				progress(int64(i+1), total, err.Error())
			} else {
				s.logger.Error("cutoff prediction failed, continuing batch",
					"exam_id", exam.ID, "error", err)
				progress(int64(i+1), total, fmt.Sprintf("exam %d failed: %v", exam.ID, err))
			}
			continue
		}
		predicted += int64(len(cutoffs))
		progress(int64(i+1), total, fmt.Sprintf("exam %d: %d cutoffs predicted", exam.ID, len(cutoffs)))
	}

	return predicted, nil
}

func (s *cutoffService) GetForExam(ctx context.Context, examID uint) ([]*models.Cutoff, error) {
	return s.repo.Cutoff().GetByExam(ctx, examID)
}

// selectionRatios merges exam-level overrides over the default policy table.
func (s *cutoffService) selectionRatios(exam *models.Exam) map[string]float64 {
	ratios := make(map[string]float64, len(DefaultSelectionRatios))
	for category, ratio := range DefaultSelectionRatios {
		ratios[category] = ratio
	}
	for category, ratio := range exam.Settings().SelectionRatios {
		if ratio > 0 && ratio < 1 {
			ratios[category] = ratio
		}
	}
	return ratios
}

func (s *cutoffService) publishUpdated(ctx context.Context, examID uint, categories []string) {
	now := time.Now()
	event := &events.PipelineEvent{
		ID:        watermill.NewUUID(),
		Type:      events.EventCutoffsUpdated,
		Timestamp: now,
		Source:    "normalization-service",
		Version:   "1.0",
		Data: events.CutoffsUpdatedEvent{
			ExamID:     examID,
			Categories: categories,
			UpdatedAt:  now,
		},
	}
	if err := s.publisher.PublishPipelineEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish cutoff event", "exam_id", examID, "error", err)
	}
}
