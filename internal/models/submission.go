package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Submission struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	RollNumber string `json:"roll_number" gorm:"not null;size:50;uniqueIndex:idx_submissions_roll_exam" validate:"required,min=1,max=50"`
	ExamID     uint   `json:"exam_id" gorm:"not null;index;uniqueIndex:idx_submissions_roll_exam" validate:"required"`
	ShiftID    uint   `json:"shift_id" gorm:"not null;index" validate:"required"`

	CandidateName string     `json:"candidate_name" gorm:"size:150"`
	DateOfBirth   *time.Time `json:"date_of_birth"`

	// Demographic partition keys
	Category string `json:"category" gorm:"size:20;index" validate:"omitempty,max=20"`
	Gender   string `json:"gender" gorm:"size:10"`
	State    string `json:"state" gorm:"size:50;index"`

	// Scoring. RawScore is shift-local; NormalizedScore is nil until a
	// normalization pass has covered this row.
	RawScore        float64        `json:"raw_score" gorm:"not null"`
	NormalizedScore *float64       `json:"normalized_score" gorm:"index"`
	SectionScores   datatypes.JSON `json:"section_scores" gorm:"type:jsonb"`

	// Rank fields are a snapshot of the submission set at the time ranks were
	// last computed; any later insert makes them stale until the next re-rank.
	OverallRank  *int `json:"overall_rank"`
	CategoryRank *int `json:"category_rank"`
	ShiftRank    *int `json:"shift_rank"`
	StateRank    *int `json:"state_rank"`

	OverallPercentile  *float64 `json:"overall_percentile"`
	CategoryPercentile *float64 `json:"category_percentile"`
	ShiftPercentile    *float64 `json:"shift_percentile"`
	StatePercentile    *float64 `json:"state_percentile"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Exam  Exam  `json:"-" gorm:"foreignKey:ExamID"`
	Shift Shift `json:"-" gorm:"foreignKey:ShiftID"`
}

func (Submission) TableName() string {
	return "submissions"
}
