package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NormalizationMethod string

const (
	MethodZScore     NormalizationMethod = "z_score"
	MethodRaw        NormalizationMethod = "raw"
	MethodPercentile NormalizationMethod = "percentile"
	MethodModifiedZ  NormalizationMethod = "modified_z"
	MethodEquating   NormalizationMethod = "equating"
	MethodCustom     NormalizationMethod = "custom"
)

type Exam struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Year int    `json:"year" gorm:"not null;index" validate:"required,min=2000,max=2100"`
	Tier string `json:"tier" gorm:"size:50"`

	// Marking scheme
	MaxMarks        float64 `json:"max_marks" gorm:"not null" validate:"required,gt=0"`
	QuestionCount   int     `json:"question_count" gorm:"not null" validate:"required,min=1"`
	MarksPerCorrect float64 `json:"marks_per_correct" gorm:"default:2"`
	NegativeMarks   float64 `json:"negative_marks" gorm:"default:0.5"`

	// Normalization settings
	HasNormalization    bool                `json:"has_normalization" gorm:"default:false"`
	NormalizationMethod NormalizationMethod `json:"normalization_method" gorm:"default:z_score" validate:"omitempty,oneof=z_score raw percentile modified_z equating custom"`
	NormalizationConfig datatypes.JSON      `json:"normalization_config" gorm:"type:jsonb"`

	// Normalization watermark. Stamped only after a full run commits, so a
	// crash mid-run leaves the last-known-good anchor in place.
	LastNormalizedAt        *time.Time `json:"last_normalized_at"`
	SubsAtLastNormalization int64      `json:"subs_at_last_normalization" gorm:"default:0"`
	ReNormThreshold         float64    `json:"re_norm_threshold" gorm:"default:5" validate:"omitempty,gt=0,lte=100"`

	IsActive bool `json:"is_active" gorm:"default:true;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Shifts      []Shift      `json:"shifts,omitempty" gorm:"foreignKey:ExamID"`
	Submissions []Submission `json:"-" gorm:"foreignKey:ExamID"`
}

func (Exam) TableName() string {
	return "exams"
}

// NormalizationSettings is the decoded shape of Exam.NormalizationConfig.
type NormalizationSettings struct {
	// Per-category selection ratios for cutoff prediction. Categories absent
	// here fall back to the default policy table.
	SelectionRatios map[string]float64 `json:"selection_ratios,omitempty"`

	// modified_z / custom parameters
	Multiplier float64 `json:"multiplier,omitempty"`
	BaseScore  float64 `json:"base_score,omitempty"`
}

// Settings decodes NormalizationConfig, returning zero settings when the
// column is empty or malformed.
func (e *Exam) Settings() NormalizationSettings {
	var s NormalizationSettings
	if len(e.NormalizationConfig) == 0 {
		return s
	}
	_ = json.Unmarshal(e.NormalizationConfig, &s)
	return s
}
