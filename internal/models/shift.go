package models

import (
	"time"

	"gorm.io/gorm"
)

type DifficultyLabel string

const (
	DifficultyEasy     DifficultyLabel = "Easy"
	DifficultyModerate DifficultyLabel = "Moderate"
	DifficultyHard     DifficultyLabel = "Hard"
)

type Shift struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	ExamID uint   `json:"exam_id" gorm:"not null;index" validate:"required"`
	Name   string `json:"name" gorm:"not null;size:100" validate:"required,min=1,max=100"`

	ShiftDate time.Time `json:"shift_date" gorm:"not null;index"`
	Slot      string    `json:"slot" gorm:"size:20"` // "morning", "afternoon", "evening"

	// Cached statistics, recomputed wholesale by the aggregation step of each
	// full normalization run. Never patched piecemeal.
	CandidateCount  int64            `json:"candidate_count" gorm:"default:0"`
	AvgRawScore     *float64         `json:"avg_raw_score"`
	StdDev          *float64         `json:"std_dev"`
	MaxRawScore     *float64         `json:"max_raw_score"`
	MinRawScore     *float64         `json:"min_raw_score"`
	MedianRawScore  *float64         `json:"median_raw_score"`
	DifficultyIndex *float64         `json:"difficulty_index"`
	DifficultyLabel *DifficultyLabel `json:"difficulty_label" gorm:"size:20"`

	NormalizationFactor *float64   `json:"normalization_factor"`
	StatsUpdatedAt      *time.Time `json:"stats_updated_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Exam        Exam         `json:"-" gorm:"foreignKey:ExamID"`
	Submissions []Submission `json:"-" gorm:"foreignKey:ShiftID"`
}

func (Shift) TableName() string {
	return "shifts"
}

// HasUsableStats reports whether the incremental path can normalize against
// the cached values without re-aggregating.
func (s *Shift) HasUsableStats() bool {
	return s.AvgRawScore != nil && s.StdDev != nil
}
