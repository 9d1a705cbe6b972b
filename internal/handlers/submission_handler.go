package handlers

import (
	"net/http"

	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/exametrics/normalization-service/internal/services"
	"github.com/exametrics/normalization-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	validator         *utils.Validator
}

func NewSubmissionHandler(
	submissionService services.SubmissionService,
	validator *utils.Validator,
	logger utils.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		validator:         validator,
	}
}

// IngestSubmission persists a scored submission and runs the incremental
// reevaluation pass on it
// @Summary Ingest submission
// @Tags submissions
// @Accept json
// @Produce json
// @Param submission body services.CreateSubmissionRequest true "Submission data"
// @Success 201 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /submissions [post]
func (h *SubmissionHandler) IngestSubmission(c *gin.Context) {
	var req services.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Ingesting submission",
		"roll_number", req.RollNumber,
		"exam_id", req.ExamID,
		"shift_id", req.ShiftID)

	submission, result, err := h.submissionService.Ingest(c.Request.Context(), &req)
	if err != nil {
		// The row may have been persisted before the reevaluation pass failed.
		// Report the failure but include what was stored.
		if submission != nil {
			h.LogError(c, err, "Reevaluation failed after ingest", "submission_id", submission.ID)
			c.JSON(http.StatusAccepted, SuccessResponse{
				Message: "Submission stored, reevaluation pending",
				Data:    submission,
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Submission ingested",
		Data: gin.H{
			"submission":   submission,
			"reevaluation": result,
		},
	})
}

// GetSubmission returns a single submission by ID
// @Summary Get submission
// @Tags submissions
// @Produce json
// @Param id path uint true "Submission ID"
// @Success 200 {object} models.Submission
// @Failure 404 {object} ErrorResponse
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	submission, err := h.submissionService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ListByExam returns an exam's submissions with scores, ranks and percentiles
// @Summary List exam submissions
// @Tags submissions
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} ListResponse
// @Router /exams/{id}/submissions [get]
func (h *SubmissionHandler) ListByExam(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	filters := repositories.SubmissionFilters{
		ShiftID:   h.parseUintQueryPtr(c, "shift_id"),
		Category:  h.parseStringQueryPtr(c, "category"),
		State:     h.parseStringQueryPtr(c, "state"),
		Limit:     h.parseIntQuery(c, "limit", 50),
		Offset:    h.parseIntQuery(c, "offset", 0),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	submissions, total, err := h.submissionService.ListByExam(c.Request.Context(), examID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Data: submissions, Total: total})
}
