package postgres

import (
	"context"
	"time"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"gorm.io/gorm"
)

type ExamPostgreSQL struct {
	db *gorm.DB
}

func NewExamPostgreSQL(db *gorm.DB) repositories.ExamRepository {
	return &ExamPostgreSQL{db: db}
}

func (e ExamPostgreSQL) Create(ctx context.Context, exam *models.Exam) error {
	return e.db.WithContext(ctx).Create(exam).Error
}

func (e ExamPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (e ExamPostgreSQL) Update(ctx context.Context, exam *models.Exam) error {
	return e.db.WithContext(ctx).Save(exam).Error
}

func (e ExamPostgreSQL) Delete(ctx context.Context, id uint) error {
	return e.db.WithContext(ctx).Delete(&models.Exam{}, id).Error
}

func (e ExamPostgreSQL) List(ctx context.Context, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	var exams []*models.Exam
	var total int64

	query := e.db.WithContext(ctx).Model(&models.Exam{})
	query = e.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters.Limit, filters.Offset, filters.SortBy, filters.SortOrder,
		map[string]bool{"created_at": true, "name": true, "year": true})

	if err := query.Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

func (e ExamPostgreSQL) GetActive(ctx context.Context) ([]*models.Exam, error) {
	var exams []*models.Exam
	if err := e.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&exams).Error; err != nil {
		return nil, err
	}
	return exams, nil
}

func (e ExamPostgreSQL) StampWatermark(ctx context.Context, examID uint, at time.Time, submissionCount int64) error {
	return e.db.WithContext(ctx).Model(&models.Exam{}).
		Where("id = ?", examID).
		Updates(map[string]interface{}{
			"last_normalized_at":         at,
			"subs_at_last_normalization": submissionCount,
		}).Error
}

func (e ExamPostgreSQL) applyFilters(query *gorm.DB, filters repositories.ExamFilters) *gorm.DB {
	if filters.Year != nil {
		query = query.Where("year = ?", *filters.Year)
	}
	if filters.Tier != nil {
		query = query.Where("tier = ?", *filters.Tier)
	}
	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}
	if filters.HasNormalization != nil {
		query = query.Where("has_normalization = ?", *filters.HasNormalization)
	}
	return query
}
