package handlers

import (
	"fmt"
	"net/http"

	"github.com/exametrics/normalization-service/internal/repositories"
	"github.com/exametrics/normalization-service/internal/services"
	"github.com/exametrics/normalization-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ExamHandler struct {
	BaseHandler
	examService   services.ExamService
	cutoffService services.CutoffService
	exportService services.ExportService
	validator     *utils.Validator
}

func NewExamHandler(
	examService services.ExamService,
	cutoffService services.CutoffService,
	exportService services.ExportService,
	validator *utils.Validator,
	logger utils.Logger,
) *ExamHandler {
	return &ExamHandler{
		BaseHandler:   NewBaseHandler(logger),
		examService:   examService,
		cutoffService: cutoffService,
		exportService: exportService,
		validator:     validator,
	}
}

// CreateExam registers a new exam
// @Summary Create exam
// @Tags exams
// @Accept json
// @Produce json
// @Param exam body services.CreateExamRequest true "Exam data"
// @Success 201 {object} models.Exam
// @Failure 400 {object} ErrorResponse
// @Router /exams [post]
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req services.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating exam", "name", req.Name, "year", req.Year)

	exam, err := h.examService.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, exam)
}

// GetExam returns a single exam by ID
// @Summary Get exam
// @Tags exams
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} models.Exam
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id} [get]
func (h *ExamHandler) GetExam(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// ListExams returns exams matching optional filters
// @Summary List exams
// @Tags exams
// @Produce json
// @Success 200 {object} ListResponse
// @Router /exams [get]
func (h *ExamHandler) ListExams(c *gin.Context) {
	filters := repositories.ExamFilters{
		Tier:             h.parseStringQueryPtr(c, "tier"),
		IsActive:         h.parseBoolQueryPtr(c, "is_active"),
		HasNormalization: h.parseBoolQueryPtr(c, "has_normalization"),
		Limit:            h.parseIntQuery(c, "limit", 20),
		Offset:           h.parseIntQuery(c, "offset", 0),
		SortBy:           c.Query("sort_by"),
		SortOrder:        c.Query("sort_order"),
	}
	if year := h.parseIntQuery(c, "year", 0); year > 0 {
		filters.Year = &year
	}

	exams, total, err := h.examService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Data: exams, Total: total})
}

// GetShifts returns the exam's shifts with their cached statistics
// @Summary List exam shifts
// @Tags exams
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/shifts [get]
func (h *ExamHandler) GetShifts(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	shifts, err := h.examService.GetShifts(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": shifts})
}

// AddShift registers a new shift under an exam
// @Summary Add shift
// @Tags exams
// @Accept json
// @Produce json
// @Param id path uint true "Exam ID"
// @Param shift body services.CreateShiftRequest true "Shift data"
// @Success 201 {object} models.Shift
// @Failure 400 {object} ErrorResponse
// @Router /exams/{id}/shifts [post]
func (h *ExamHandler) AddShift(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.CreateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.ExamID = id

	h.LogRequest(c, "Adding shift", "exam_id", id, "name", req.Name)

	shift, err := h.examService.AddShift(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, shift)
}

// GetCutoffs returns the predicted cutoffs for an exam
// @Summary Get predicted cutoffs
// @Tags cutoffs
// @Produce json
// @Param id path uint true "Exam ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/cutoffs [get]
func (h *ExamHandler) GetCutoffs(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	cutoffs, err := h.cutoffService.GetForExam(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cutoffs})
}

// ExportReport streams an xlsx report with the exam's cutoffs and shift statistics
// @Summary Export exam report
// @Tags exams
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Exam ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/report [get]
func (h *ExamHandler) ExportReport(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Exporting exam report", "exam_id", id)

	report, err := h.exportService.ExportExamReport(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("exam_%d_report.xlsx", id)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		report)
}
