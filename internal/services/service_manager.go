package services

import (
	"log/slog"

	"github.com/exametrics/normalization-service/internal/cache"
	"github.com/exametrics/normalization-service/internal/events"
	"github.com/exametrics/normalization-service/internal/normalization"
	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/exametrics/normalization-service/internal/utils"
)

// ServiceManager wires and exposes every service of the pipeline.
type ServiceManager interface {
	Exam() ExamService
	Submission() SubmissionService
	ShiftStats() ShiftStatsService
	Normalization() NormalizationService
	Ranking() RankingService
	Cutoff() CutoffService
	Reevaluation() ReevaluationService
	Job() JobService
	Export() ExportService
}

type serviceManager struct {
	exam          ExamService
	submission    SubmissionService
	shiftStats    ShiftStatsService
	normalization NormalizationService
	ranking       RankingService
	cutoff        CutoffService
	reevaluation  ReevaluationService
	job           JobService
	export        ExportService
}

func NewServiceManager(
	repo repositories.Repository,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *utils.Validator,
	batchSize int,
) ServiceManager {
	engine := normalization.NewEngine()

	shiftStats := NewShiftStatsService(repo, logger)
	normalizationSvc := NewNormalizationService(repo, engine, shiftStats, cacheService, publisher, logger, batchSize)
	ranking := NewRankingService(repo, publisher, logger)
	cutoff := NewCutoffService(repo, publisher, logger)
	reevaluation := NewReevaluationService(repo, engine, ranking, cutoff, cacheService, logger)
	job := NewJobService(repo, normalizationSvc, ranking, cutoff, cacheService, publisher, logger)

	return &serviceManager{
		exam:          NewExamService(repo, logger, validator),
		submission:    NewSubmissionService(repo, reevaluation, logger, validator),
		shiftStats:    shiftStats,
		normalization: normalizationSvc,
		ranking:       ranking,
		cutoff:        cutoff,
		reevaluation:  reevaluation,
		job:           job,
		export:        NewExportService(repo, logger),
	}
}

func (m *serviceManager) Exam() ExamService                   { return m.exam }
func (m *serviceManager) Submission() SubmissionService       { return m.submission }
func (m *serviceManager) ShiftStats() ShiftStatsService       { return m.shiftStats }
func (m *serviceManager) Normalization() NormalizationService { return m.normalization }
func (m *serviceManager) Ranking() RankingService             { return m.ranking }
func (m *serviceManager) Cutoff() CutoffService               { return m.cutoff }
func (m *serviceManager) Reevaluation() ReevaluationService   { return m.reevaluation }
func (m *serviceManager) Job() JobService                     { return m.job }
func (m *serviceManager) Export() ExportService               { return m.export }
