package handlers

import (
	"github.com/exametrics/normalization-service/internal/services"
	"github.com/exametrics/normalization-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	examHandler       *ExamHandler
	submissionHandler *SubmissionHandler
	jobHandler        *JobHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		examHandler: NewExamHandler(
			serviceManager.Exam(),
			serviceManager.Cutoff(),
			serviceManager.Export(),
			validator,
			logger,
		),
		submissionHandler: NewSubmissionHandler(serviceManager.Submission(), validator, logger),
		jobHandler:        NewJobHandler(serviceManager.Job(), validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Exam routes
		exams := v1.Group("/exams")
		{
			exams.POST("", hm.examHandler.CreateExam)
			exams.GET("", hm.examHandler.ListExams)
			exams.GET("/:id", hm.examHandler.GetExam)
			exams.GET("/:id/shifts", hm.examHandler.GetShifts)
			exams.POST("/:id/shifts", hm.examHandler.AddShift)
			exams.GET("/:id/cutoffs", hm.examHandler.GetCutoffs)
			exams.GET("/:id/report", hm.examHandler.ExportReport)
			exams.GET("/:id/submissions", hm.submissionHandler.ListByExam)
		}

		// Submission routes
		submissions := v1.Group("/submissions")
		{
			submissions.POST("", hm.submissionHandler.IngestSubmission)
			submissions.GET("/:id", hm.submissionHandler.GetSubmission)
		}

		// Job routes
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", hm.jobHandler.StartJob)
			jobs.GET("", hm.jobHandler.ListJobs)
			jobs.GET("/:id", hm.jobHandler.GetJob)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "normalization-service",
		})
	})
}
