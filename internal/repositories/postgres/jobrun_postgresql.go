package postgres

import (
	"context"
	"time"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobRunPostgreSQL struct {
	db *gorm.DB
}

func NewJobRunPostgreSQL(db *gorm.DB) repositories.JobRunRepository {
	return &JobRunPostgreSQL{db: db}
}

func (j JobRunPostgreSQL) Create(ctx context.Context, run *models.JobRun) error {
	return j.db.WithContext(ctx).Create(run).Error
}

func (j JobRunPostgreSQL) GetByID(ctx context.Context, id uint) (*models.JobRun, error) {
	var run models.JobRun
	if err := j.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (j JobRunPostgreSQL) List(ctx context.Context, filters repositories.JobRunFilters) ([]*models.JobRun, int64, error) {
	var runs []*models.JobRun
	var total int64

	query := j.db.WithContext(ctx).Model(&models.JobRun{})
	if filters.JobType != nil {
		query = query.Where("job_type = ?", *filters.JobType)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.ExamID != nil {
		query = query.Where("exam_id = ?", *filters.ExamID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.Limit, filters.Offset, "created_at", "desc",
		map[string]bool{"created_at": true})

	if err := query.Find(&runs).Error; err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

func (j JobRunPostgreSQL) MarkRunning(ctx context.Context, id uint) error {
	now := time.Now()
	return j.db.WithContext(ctx).Model(&models.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.JobStatusRunning,
			"started_at": now,
		}).Error
}

// UpdateProgress writes processed/total counts and the derived percentage so
// a concurrent poller always sees live state.
func (j JobRunPostgreSQL) UpdateProgress(ctx context.Context, id uint, processed, total int64, message string) error {
	percent := 0.0
	if total > 0 {
		percent = float64(processed) / float64(total) * 100
	}
	updates := map[string]interface{}{
		"records_processed": processed,
		"total_records":     total,
		"progress_percent":  percent,
	}
	if message != "" {
		updates["metadata"] = datatypes.JSON(resultMessageJSON(message))
	}
	return j.db.WithContext(ctx).Model(&models.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (j JobRunPostgreSQL) MarkSuccess(ctx context.Context, id uint, message string) error {
	now := time.Now()
	return j.db.WithContext(ctx).Model(&models.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           models.JobStatusSuccess,
			"progress_percent": 100.0,
			"completed_at":     now,
			"metadata":         datatypes.JSON(resultMessageJSON(message)),
		}).Error
}

func (j JobRunPostgreSQL) MarkFailed(ctx context.Context, id uint, errMessage, errStack string) error {
	now := time.Now()
	return j.db.WithContext(ctx).Model(&models.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.JobStatusFailed,
			"completed_at":  now,
			"error_message": errMessage,
			"error_stack":   errStack,
		}).Error
}
