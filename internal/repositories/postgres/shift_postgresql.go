package postgres

import (
	"context"
	"time"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"gorm.io/gorm"
)

type ShiftPostgreSQL struct {
	db *gorm.DB
}

func NewShiftPostgreSQL(db *gorm.DB) repositories.ShiftRepository {
	return &ShiftPostgreSQL{db: db}
}

func (s ShiftPostgreSQL) Create(ctx context.Context, shift *models.Shift) error {
	return s.db.WithContext(ctx).Create(shift).Error
}

func (s ShiftPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Shift, error) {
	var shift models.Shift
	if err := s.db.WithContext(ctx).First(&shift, id).Error; err != nil {
		return nil, err
	}
	return &shift, nil
}

func (s ShiftPostgreSQL) GetByExam(ctx context.Context, examID uint) ([]*models.Shift, error) {
	var shifts []*models.Shift
	if err := s.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("shift_date asc, id asc").
		Find(&shifts).Error; err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s ShiftPostgreSQL) UpdateStats(ctx context.Context, shift *models.Shift) error {
	now := time.Now()
	shift.StatsUpdatedAt = &now

	return s.db.WithContext(ctx).Model(&models.Shift{}).
		Where("id = ?", shift.ID).
		Updates(map[string]interface{}{
			"candidate_count":      shift.CandidateCount,
			"avg_raw_score":        shift.AvgRawScore,
			"std_dev":              shift.StdDev,
			"max_raw_score":        shift.MaxRawScore,
			"min_raw_score":        shift.MinRawScore,
			"median_raw_score":     shift.MedianRawScore,
			"difficulty_index":     shift.DifficultyIndex,
			"difficulty_label":     shift.DifficultyLabel,
			"normalization_factor": shift.NormalizationFactor,
			"stats_updated_at":     shift.StatsUpdatedAt,
		}).Error
}
