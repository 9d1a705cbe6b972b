package postgres

import (
	"context"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"gorm.io/gorm"
)

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

func (s SubmissionPostgreSQL) Create(ctx context.Context, submission *models.Submission) error {
	return s.db.WithContext(ctx).Create(submission).Error
}

func (s SubmissionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s SubmissionPostgreSQL) GetByRollNumber(ctx context.Context, examID uint, rollNumber string) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Where("exam_id = ? AND roll_number = ?", examID, rollNumber).
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s SubmissionPostgreSQL) ListByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	var submissions []*models.Submission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Submission{}).Where("exam_id = ?", examID)
	query = s.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.Limit, filters.Offset, filters.SortBy, filters.SortOrder,
		map[string]bool{"raw_score": true, "normalized_score": true, "overall_rank": true, "created_at": true})

	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (s SubmissionPostgreSQL) CountByExam(ctx context.Context, examID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("exam_id = ?", examID).
		Count(&count).Error
	return count, err
}

func (s SubmissionPostgreSQL) CountNormalizedByExam(ctx context.Context, examID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("exam_id = ? AND normalized_score IS NOT NULL", examID).
		Count(&count).Error
	return count, err
}

func (s SubmissionPostgreSQL) CountByShift(ctx context.Context, shiftID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("shift_id = ?", shiftID).
		Count(&count).Error
	return count, err
}

func (s SubmissionPostgreSQL) CountHigherInShift(ctx context.Context, shiftID uint, rawScore float64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("shift_id = ? AND raw_score > ?", shiftID, rawScore).
		Count(&count).Error
	return count, err
}

func (s SubmissionPostgreSQL) ShiftAggregates(ctx context.Context, examID uint) ([]repositories.ShiftAggregate, error) {
	var aggregates []repositories.ShiftAggregate
	err := s.db.WithContext(ctx).Raw(`
		SELECT shift_id,
		       COUNT(*)                                                        AS candidate_count,
		       AVG(raw_score)                                                  AS avg_raw_score,
		       STDDEV_POP(raw_score)                                           AS std_dev,
		       MAX(raw_score)                                                  AS max_raw_score,
		       MIN(raw_score)                                                  AS min_raw_score,
		       PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY raw_score)          AS median_raw_score
		FROM submissions
		WHERE exam_id = ? AND deleted_at IS NULL
		GROUP BY shift_id`, examID).
		Scan(&aggregates).Error
	if err != nil {
		return nil, err
	}
	return aggregates, nil
}

func (s SubmissionPostgreSQL) GlobalAggregates(ctx context.Context, examID uint) (*repositories.ScoreAggregate, error) {
	var aggregate repositories.ScoreAggregate
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*)              AS count,
		       AVG(raw_score)        AS mean,
		       STDDEV_POP(raw_score) AS std_dev
		FROM submissions
		WHERE exam_id = ? AND deleted_at IS NULL`, examID).
		Scan(&aggregate).Error
	if err != nil {
		return nil, err
	}
	return &aggregate, nil
}

func (s SubmissionPostgreSQL) RawScoresByExam(ctx context.Context, examID uint) ([]float64, error) {
	var scores []float64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("exam_id = ?", examID).
		Order("raw_score asc").
		Pluck("raw_score", &scores).Error
	return scores, err
}

func (s SubmissionPostgreSQL) ListByShiftOrderedByRaw(ctx context.Context, shiftID uint) ([]*models.Submission, error) {
	var submissions []*models.Submission
	err := s.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		Order("raw_score desc, id asc").
		Find(&submissions).Error
	return submissions, err
}

// BulkNormalizeZScore applies the z-score formula as one set-based update
// across every submission of the exam whose shift has positive stddev.
func (s SubmissionPostgreSQL) BulkNormalizeZScore(ctx context.Context, examID uint, globalMean, globalStdDev float64) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		UPDATE submissions s
		SET normalized_score = (s.raw_score - sh.avg_raw_score) / sh.std_dev * ? + ?,
		    updated_at = NOW()
		FROM shifts sh
		WHERE s.shift_id = sh.id
		  AND s.exam_id = ?
		  AND s.deleted_at IS NULL
		  AND sh.avg_raw_score IS NOT NULL
		  AND sh.std_dev IS NOT NULL
		  AND sh.std_dev > 0`, globalStdDev, globalMean, examID)
	return result.RowsAffected, result.Error
}

// BulkNormalizeZeroVarianceFallback sets normalized = raw for submissions in
// shifts with no score spread, the documented z-score fallback.
func (s SubmissionPostgreSQL) BulkNormalizeZeroVarianceFallback(ctx context.Context, examID uint) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		UPDATE submissions s
		SET normalized_score = s.raw_score,
		    updated_at = NOW()
		FROM shifts sh
		WHERE s.shift_id = sh.id
		  AND s.exam_id = ?
		  AND s.deleted_at IS NULL
		  AND (sh.avg_raw_score IS NULL OR sh.std_dev IS NULL OR sh.std_dev = 0)`, examID)
	return result.RowsAffected, result.Error
}

// BulkNormalizeRaw populates normalized = raw for the whole exam, used by the
// raw method when normalization is administratively disabled.
func (s SubmissionPostgreSQL) BulkNormalizeRaw(ctx context.Context, examID uint) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		UPDATE submissions
		SET normalized_score = raw_score,
		    updated_at = NOW()
		WHERE exam_id = ? AND deleted_at IS NULL`, examID)
	return result.RowsAffected, result.Error
}

// UpdateNormalizedScores applies one batch of per-row scores inside a single
// transaction, so a batch either fully applies or not at all.
func (s SubmissionPostgreSQL) UpdateNormalizedScores(ctx context.Context, updates []repositories.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&models.Submission{}).
				Where("id = ?", u.SubmissionID).
				Update("normalized_score", u.NormalizedScore).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s SubmissionPostgreSQL) UpdateNormalizedScore(ctx context.Context, submissionID uint, score float64) error {
	return s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", submissionID).
		Update("normalized_score", score).Error
}

// RecalculateRanks recomputes every rank/percentile partition for an exam in
// one statement. Ordering is total: normalized score, then raw score, then
// date of birth, all descending, with competition ranking on ties.
// Percentiles run ascending so they read "percent scored at or below you".
func (s SubmissionPostgreSQL) RecalculateRanks(ctx context.Context, examID uint) (int64, error) {
	result := s.db.WithContext(ctx).Exec(`
		WITH ranked AS (
			SELECT id,
			       RANK() OVER (
			           ORDER BY normalized_score DESC NULLS LAST, raw_score DESC, date_of_birth DESC NULLS LAST
			       ) AS overall_rank,
			       PERCENT_RANK() OVER (
			           ORDER BY normalized_score ASC NULLS FIRST, raw_score ASC, date_of_birth ASC NULLS FIRST
			       ) * 100 AS overall_percentile,
			       RANK() OVER (
			           PARTITION BY category
			           ORDER BY normalized_score DESC NULLS LAST, raw_score DESC, date_of_birth DESC NULLS LAST
			       ) AS category_rank,
			       PERCENT_RANK() OVER (
			           PARTITION BY category
			           ORDER BY normalized_score ASC NULLS FIRST, raw_score ASC, date_of_birth ASC NULLS FIRST
			       ) * 100 AS category_percentile,
			       RANK() OVER (
			           PARTITION BY shift_id
			           ORDER BY normalized_score DESC NULLS LAST, raw_score DESC, date_of_birth DESC NULLS LAST
			       ) AS shift_rank,
			       PERCENT_RANK() OVER (
			           PARTITION BY shift_id
			           ORDER BY normalized_score ASC NULLS FIRST, raw_score ASC, date_of_birth ASC NULLS FIRST
			       ) * 100 AS shift_percentile,
			       RANK() OVER (
			           PARTITION BY state
			           ORDER BY normalized_score DESC NULLS LAST, raw_score DESC, date_of_birth DESC NULLS LAST
			       ) AS state_rank,
			       PERCENT_RANK() OVER (
			           PARTITION BY state
			           ORDER BY normalized_score ASC NULLS FIRST, raw_score ASC, date_of_birth ASC NULLS FIRST
			       ) * 100 AS state_percentile
			FROM submissions
			WHERE exam_id = ? AND deleted_at IS NULL
		)
		UPDATE submissions s
		SET overall_rank        = r.overall_rank,
		    overall_percentile  = r.overall_percentile,
		    category_rank       = r.category_rank,
		    category_percentile = r.category_percentile,
		    shift_rank          = r.shift_rank,
		    shift_percentile    = r.shift_percentile,
		    state_rank          = r.state_rank,
		    state_percentile    = r.state_percentile,
		    updated_at          = NOW()
		FROM ranked r
		WHERE s.id = r.id`, examID)
	return result.RowsAffected, result.Error
}

func (s SubmissionPostgreSQL) DistinctCategories(ctx context.Context, examID uint) ([]string, error) {
	var categories []string
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("exam_id = ? AND category <> ''", examID).
		Distinct().
		Order("category asc").
		Pluck("category", &categories).Error
	return categories, err
}

func (s SubmissionPostgreSQL) CountNormalizedByCategory(ctx context.Context, examID uint, category string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("exam_id = ? AND category = ? AND normalized_score IS NOT NULL", examID, category).
		Count(&count).Error
	return count, err
}

func (s SubmissionPostgreSQL) CategoryPercentileScore(ctx context.Context, examID uint, category string, fraction float64) (*float64, error) {
	var score *float64
	err := s.db.WithContext(ctx).Raw(`
		SELECT PERCENTILE_CONT(?) WITHIN GROUP (ORDER BY normalized_score)
		FROM submissions
		WHERE exam_id = ? AND category = ? AND normalized_score IS NOT NULL AND deleted_at IS NULL`,
		fraction, examID, category).
		Scan(&score).Error
	if err != nil {
		return nil, err
	}
	return score, nil
}

func (s SubmissionPostgreSQL) applyFilters(query *gorm.DB, filters repositories.SubmissionFilters) *gorm.DB {
	if filters.ShiftID != nil {
		query = query.Where("shift_id = ?", *filters.ShiftID)
	}
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.State != nil {
		query = query.Where("state = ?", *filters.State)
	}
	return query
}
