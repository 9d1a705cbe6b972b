package handlers

import (
	"net/http"

	"github.com/exametrics/normalization-service/internal/models"
	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/exametrics/normalization-service/internal/services"
	"github.com/exametrics/normalization-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	BaseHandler
	jobService services.JobService
	validator  *utils.Validator
}

type StartJobRequest struct {
	JobType models.JobType `json:"job_type" validate:"required,job_type"`
	ExamID  *uint          `json:"exam_id"`
}

func NewJobHandler(
	jobService services.JobService,
	validator *utils.Validator,
	logger utils.Logger,
) *JobHandler {
	return &JobHandler{
		BaseHandler: NewBaseHandler(logger),
		jobService:  jobService,
		validator:   validator,
	}
}

// StartJob launches a background pipeline job and returns its run record
// @Summary Start pipeline job
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body StartJobRequest true "Job parameters"
// @Success 202 {object} models.JobRun
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /jobs [post]
func (h *JobHandler) StartJob(c *gin.Context) {
	var req StartJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Starting job", "job_type", req.JobType, "exam_id", req.ExamID)

	run, err := h.jobService.StartJob(c.Request.Context(), req.JobType, req.ExamID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, run)
}

// GetJob returns a job run with its current progress
// @Summary Get job run
// @Tags jobs
// @Produce json
// @Param id path uint true "Job run ID"
// @Success 200 {object} models.JobRun
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	run, err := h.jobService.GetJob(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// ListJobs returns job runs matching optional filters
// @Summary List job runs
// @Tags jobs
// @Produce json
// @Success 200 {object} ListResponse
// @Router /jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	filters := repositories.JobRunFilters{
		ExamID: h.parseUintQueryPtr(c, "exam_id"),
		Limit:  h.parseIntQuery(c, "limit", 20),
		Offset: h.parseIntQuery(c, "offset", 0),
	}
	if jobType := c.Query("job_type"); jobType != "" {
		jt := models.JobType(jobType)
		filters.JobType = &jt
	}
	if status := c.Query("status"); status != "" {
		st := models.JobStatus(status)
		filters.Status = &st
	}

	runs, total, err := h.jobService.ListJobs(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Data: runs, Total: total})
}
