package postgres

import (
	"github.com/exametrics/normalization-service/internal/repositories"
	"gorm.io/gorm"
)

type repository struct {
	exam       repositories.ExamRepository
	shift      repositories.ShiftRepository
	submission repositories.SubmissionRepository
	cutoff     repositories.CutoffRepository
	jobRun     repositories.JobRunRepository
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &repository{
		exam:       NewExamPostgreSQL(db),
		shift:      NewShiftPostgreSQL(db),
		submission: NewSubmissionPostgreSQL(db),
		cutoff:     NewCutoffPostgreSQL(db),
		jobRun:     NewJobRunPostgreSQL(db),
	}
}

func (r *repository) Exam() repositories.ExamRepository             { return r.exam }
func (r *repository) Shift() repositories.ShiftRepository           { return r.shift }
func (r *repository) Submission() repositories.SubmissionRepository { return r.submission }
func (r *repository) Cutoff() repositories.CutoffRepository         { return r.cutoff }
func (r *repository) JobRun() repositories.JobRunRepository         { return r.jobRun }
