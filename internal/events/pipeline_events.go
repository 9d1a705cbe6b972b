package events

import (
	"time"
)

// EventType represents different types of pipeline events
type EventType string

const (
	// Normalization events
	EventNormalizationCompleted EventType = "normalization.completed"

	// Ranking events
	EventRanksRecalculated EventType = "ranks.recalculated"

	// Cutoff events
	EventCutoffsUpdated EventType = "cutoffs.updated"

	// Job events
	EventJobFailed EventType = "job.failed"
)

// PipelineEvent is the base event structure for all pipeline events
type PipelineEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Pipeline event payloads

type NormalizationCompletedEvent struct {
	ExamID              uint      `json:"exam_id"`
	NormalizationMethod string    `json:"normalization_method"`
	SubmissionsCovered  int64     `json:"submissions_covered"`
	CompletedAt         time.Time `json:"completed_at"`
}

type RanksRecalculatedEvent struct {
	ExamID       uint      `json:"exam_id"`
	RowsUpdated  int64     `json:"rows_updated"`
	CalculatedAt time.Time `json:"calculated_at"`
}

type CutoffsUpdatedEvent struct {
	ExamID     uint      `json:"exam_id"`
	Categories []string  `json:"categories"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type JobFailedEvent struct {
	JobRunID uint      `json:"job_run_id"`
	JobType  string    `json:"job_type"`
	ExamID   *uint     `json:"exam_id,omitempty"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
