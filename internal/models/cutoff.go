package models

import (
	"time"

	"gorm.io/datatypes"
)

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// PostCodePrediction marks statistically predicted cutoffs, as opposed to
// post-specific official cutoffs loaded from outside.
const PostCodePrediction = "PREDICTION"

type Cutoff struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	ExamID   uint   `json:"exam_id" gorm:"not null;uniqueIndex:idx_cutoffs_exam_category_post" validate:"required"`
	Category string `json:"category" gorm:"not null;size:20;uniqueIndex:idx_cutoffs_exam_category_post" validate:"required,max=20"`
	PostCode string `json:"post_code" gorm:"not null;size:30;uniqueIndex:idx_cutoffs_exam_category_post;default:PREDICTION"`

	ExpectedCutoff float64 `json:"expected_cutoff"`
	SafeScore      float64 `json:"safe_score"`
	MinimumScore   float64 `json:"minimum_score"`

	ConfidenceLevel ConfidenceLevel `json:"confidence_level" gorm:"size:10;default:medium"`

	// PredictionBasis records methodology, contributing factors and the data
	// point count behind the prediction.
	PredictionBasis datatypes.JSON `json:"prediction_basis" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam Exam `json:"-" gorm:"foreignKey:ExamID"`
}

func (Cutoff) TableName() string {
	return "cutoffs"
}

// PredictionBasisData is the decoded shape of Cutoff.PredictionBasis.
type PredictionBasisData struct {
	Methodology    string   `json:"methodology"`
	Factors        []string `json:"factors"`
	DataPoints     int64    `json:"data_points"`
	SelectionRatio float64  `json:"selection_ratio"`
}
