package postgres

import (
	"context"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CutoffPostgreSQL struct {
	db *gorm.DB
}

func NewCutoffPostgreSQL(db *gorm.DB) repositories.CutoffRepository {
	return &CutoffPostgreSQL{db: db}
}

// Upsert writes the prediction keyed on (exam_id, category, post_code),
// overwriting any prior prediction for the same key. Cutoffs are a
// point-in-time snapshot, not an append-only history.
func (c CutoffPostgreSQL) Upsert(ctx context.Context, cutoff *models.Cutoff) error {
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "exam_id"}, {Name: "category"}, {Name: "post_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"expected_cutoff", "safe_score", "minimum_score",
			"confidence_level", "prediction_basis", "updated_at",
		}),
	}).Create(cutoff).Error
}

func (c CutoffPostgreSQL) GetByExam(ctx context.Context, examID uint) ([]*models.Cutoff, error) {
	var cutoffs []*models.Cutoff
	if err := c.db.WithContext(ctx).
		Where("exam_id = ?", examID).
		Order("category asc, post_code asc").
		Find(&cutoffs).Error; err != nil {
		return nil, err
	}
	return cutoffs, nil
}

func (c CutoffPostgreSQL) GetByExamAndCategory(ctx context.Context, examID uint, category string) (*models.Cutoff, error) {
	var cutoff models.Cutoff
	if err := c.db.WithContext(ctx).
		Where("exam_id = ? AND category = ? AND post_code = ?", examID, category, models.PostCodePrediction).
		First(&cutoff).Error; err != nil {
		return nil, err
	}
	return &cutoff, nil
}
