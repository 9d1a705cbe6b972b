package repositories

import (
	"context"
	"time"

	"github.com/exametrics/normalization-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ExamFilters struct {
	Year             *int    `json:"year"`
	Tier             *string `json:"tier"`
	IsActive         *bool   `json:"is_active"`
	HasNormalization *bool   `json:"has_normalization"`
	Limit            int     `json:"limit"`
	Offset           int     `json:"offset"`
	SortBy           string  `json:"sort_by"`    // "created_at", "name", "year"
	SortOrder        string  `json:"sort_order"` // "asc", "desc"
}

type SubmissionFilters struct {
	ShiftID   *uint   `json:"shift_id"`
	Category  *string `json:"category"`
	State     *string `json:"state"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`    // "raw_score", "normalized_score", "overall_rank"
	SortOrder string  `json:"sort_order"` // "asc", "desc"
}

type JobRunFilters struct {
	JobType *models.JobType   `json:"job_type"`
	Status  *models.JobStatus `json:"status"`
	ExamID  *uint             `json:"exam_id"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// ===== AGGREGATE RESULT STRUCTS =====

// ShiftAggregate is one shift's statistics computed server-side in a single
// grouped query over the shift's submissions.
type ShiftAggregate struct {
	ShiftID        uint     `json:"shift_id"`
	CandidateCount int64    `json:"candidate_count"`
	AvgRawScore    *float64 `json:"avg_raw_score"`
	StdDev         *float64 `json:"std_dev"`
	MaxRawScore    *float64 `json:"max_raw_score"`
	MinRawScore    *float64 `json:"min_raw_score"`
	MedianRawScore *float64 `json:"median_raw_score"`
}

// ScoreAggregate holds exam-wide raw score statistics.
type ScoreAggregate struct {
	Count  int64    `json:"count"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"std_dev"`
}

// ScoreUpdate is one row of a batched normalized-score write.
type ScoreUpdate struct {
	SubmissionID    uint
	NormalizedScore float64
}

// ===== REPOSITORY INTERFACES =====

type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	Update(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filters ExamFilters) ([]*models.Exam, int64, error)

	// GetActive returns active exams, the target set for "all exams" jobs.
	GetActive(ctx context.Context) ([]*models.Exam, error)

	// StampWatermark records a completed full normalization run. Called only
	// after every write of the run has committed.
	StampWatermark(ctx context.Context, examID uint, at time.Time, submissionCount int64) error
}

type ShiftRepository interface {
	Create(ctx context.Context, shift *models.Shift) error
	GetByID(ctx context.Context, id uint) (*models.Shift, error)
	GetByExam(ctx context.Context, examID uint) ([]*models.Shift, error)

	// UpdateStats persists the cached statistic fields and stamps
	// stats_updated_at. The only write path for shift statistics.
	UpdateStats(ctx context.Context, shift *models.Shift) error
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	GetByRollNumber(ctx context.Context, examID uint, rollNumber string) (*models.Submission, error)
	ListByExam(ctx context.Context, examID uint, filters SubmissionFilters) ([]*models.Submission, int64, error)

	CountByExam(ctx context.Context, examID uint) (int64, error)
	CountNormalizedByExam(ctx context.Context, examID uint) (int64, error)
	CountByShift(ctx context.Context, shiftID uint) (int64, error)

	// CountHigherInShift counts shift-mates scoring strictly above the given
	// raw score, giving the incremental path a rank-in-shift without listing
	// the whole shift.
	CountHigherInShift(ctx context.Context, shiftID uint, rawScore float64) (int64, error)

	// ShiftAggregates computes per-shift count/avg/stddev/max/min/median for
	// every shift of the exam in one grouped query.
	ShiftAggregates(ctx context.Context, examID uint) ([]ShiftAggregate, error)

	// GlobalAggregates computes the exam-wide raw score mean and stddev.
	GlobalAggregates(ctx context.Context, examID uint) (*ScoreAggregate, error)

	// RawScoresByExam returns every raw score of the exam, ascending. Feeds
	// the sampled global distribution for equipercentile methods.
	RawScoresByExam(ctx context.Context, examID uint) ([]float64, error)

	// ListByShiftOrderedByRaw returns a shift's submissions ordered raw score
	// descending, giving each row's rank-in-shift by position.
	ListByShiftOrderedByRaw(ctx context.Context, shiftID uint) ([]*models.Submission, error)

	// Bulk set-based paths for bulk-capable methods.
	BulkNormalizeZScore(ctx context.Context, examID uint, globalMean, globalStdDev float64) (int64, error)
	BulkNormalizeZeroVarianceFallback(ctx context.Context, examID uint) (int64, error)
	BulkNormalizeRaw(ctx context.Context, examID uint) (int64, error)

	// UpdateNormalizedScores applies one bounded batch atomically.
	UpdateNormalizedScores(ctx context.Context, updates []ScoreUpdate) error

	UpdateNormalizedScore(ctx context.Context, submissionID uint, score float64) error

	// RecalculateRanks recomputes all four rank/percentile partitions for the
	// exam with window functions in a single statement.
	RecalculateRanks(ctx context.Context, examID uint) (int64, error)

	DistinctCategories(ctx context.Context, examID uint) ([]string, error)
	CountNormalizedByCategory(ctx context.Context, examID uint, category string) (int64, error)

	// CategoryPercentileScore returns the normalized score at the given
	// fraction (0..1) within (exam, category) via PERCENTILE_CONT.
	CategoryPercentileScore(ctx context.Context, examID uint, category string, fraction float64) (*float64, error)
}

type CutoffRepository interface {
	Upsert(ctx context.Context, cutoff *models.Cutoff) error
	GetByExam(ctx context.Context, examID uint) ([]*models.Cutoff, error)
	GetByExamAndCategory(ctx context.Context, examID uint, category string) (*models.Cutoff, error)
}

type JobRunRepository interface {
	Create(ctx context.Context, run *models.JobRun) error
	GetByID(ctx context.Context, id uint) (*models.JobRun, error)
	List(ctx context.Context, filters JobRunFilters) ([]*models.JobRun, int64, error)

	MarkRunning(ctx context.Context, id uint) error
	UpdateProgress(ctx context.Context, id uint, processed, total int64, message string) error
	MarkSuccess(ctx context.Context, id uint, message string) error
	MarkFailed(ctx context.Context, id uint, errMessage, errStack string) error
}

// Repository aggregates all entity repositories behind one dependency.
type Repository interface {
	Exam() ExamRepository
	Shift() ShiftRepository
	Submission() SubmissionRepository
	Cutoff() CutoffRepository
	JobRun() JobRunRepository
}
