package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobType string

const (
	JobTypeNormalization    JobType = "normalization"
	JobTypeRankCalculation  JobType = "rank_calculation"
	JobTypeCutoffPrediction JobType = "cutoff_prediction"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// JobRun is the execution record for one pipeline invocation. Progress fields
// are updated incrementally while the job runs so a poller can distinguish a
// slow job from a stuck one.
type JobRun struct {
	ID      uint      `json:"id" gorm:"primaryKey"`
	JobType JobType   `json:"job_type" gorm:"not null;index" validate:"required,oneof=normalization rank_calculation cutoff_prediction"`
	Status  JobStatus `json:"status" gorm:"not null;default:pending;index"`

	// Scope: nil ExamID means "all active exams".
	ExamID *uint `json:"exam_id" gorm:"index"`

	TotalRecords     int64   `json:"total_records" gorm:"default:0"`
	RecordsProcessed int64   `json:"records_processed" gorm:"default:0"`
	ProgressPercent  float64 `json:"progress_percent" gorm:"default:0"`

	Metadata datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	ErrorMessage *string `json:"error_message" gorm:"type:text"`
	ErrorStack   *string `json:"error_stack" gorm:"type:text"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (JobRun) TableName() string {
	return "job_runs"
}

// IsTerminal reports whether the run has reached a final status.
func (j *JobRun) IsTerminal() bool {
	return j.Status == JobStatusSuccess || j.Status == JobStatusFailed
}
