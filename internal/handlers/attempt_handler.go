package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ascholar/testing-service/internal/export"
	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"github.com/ascholar/testing-service/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type AttemptHandler struct {
	engine   services.AttemptEngine
	exporter export.ResultsExporter
	logger   *slog.Logger
}

func NewAttemptHandler(engine services.AttemptEngine, exporter export.ResultsExporter, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{
		engine:   engine,
		exporter: exporter,
		logger:   logger,
	}
}

// Register creates a new attempt for the calling candidate
// @Router /tests/{test_id}/register [post]
func (h *AttemptHandler) Register(c *gin.Context) {
	testID, ok := parseIDParam(c, "test_id")
	if !ok {
		return
	}
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	attempt, err := h.engine.Register(c.Request.Context(), &services.RegisterRequest{
		TestID:      testID,
		CandidateID: candID,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{Message: "Registered for test", Data: attempt})
}

// Start begins the timed window of a registered attempt
// @Router /attempts/{id}/start [post]
func (h *AttemptHandler) Start(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	var body struct {
		SessionData map[string]interface{} `json:"session_data"`
	}
	// The body is optional session metadata; ignore absence.
	_ = c.ShouldBindJSON(&body)

	req := &services.StartRequest{
		AttemptID:   attemptID,
		CandidateID: candID,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	}
	if body.SessionData != nil {
		if data, err := json.Marshal(body.SessionData); err == nil {
			req.SessionData = datatypes.JSON(data)
		}
	}

	attempt, err := h.engine.Start(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Attempt started", Data: attempt})
}

// SubmitAnswer records one answer for an in-progress attempt
// @Router /attempts/{id}/answers [post]
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.AttemptID = attemptID
	req.CandidateID = candID

	answer, err := h.engine.SubmitAnswer(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Answer recorded", Data: answer})
}

// SubmitTest completes an in-progress attempt
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitTest(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	var req services.SubmitTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.AttemptID = attemptID
	req.CandidateID = candID

	attempt, err := h.engine.SubmitTest(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Test submitted", Data: attempt})
}

// GetAttempt returns one attempt owned by the caller
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	attempt, err := h.engine.GetAttempt(c.Request.Context(), attemptID, candID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetRemainingTime returns the seconds left in the attempt window
// @Router /attempts/{id}/remaining-time [get]
func (h *AttemptHandler) GetRemainingTime(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	remaining, err := h.engine.GetRemainingTime(c.Request.Context(), attemptID, candID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt_id":        attemptID,
		"remaining_seconds": int(remaining.Seconds()),
	})
}

// ListMyAttempts returns the caller's attempt history
// @Router /attempts [get]
func (h *AttemptHandler) ListMyAttempts(c *gin.Context) {
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	filters := parseAttemptFilters(c)
	attempts, total, err := h.engine.ListCandidateAttempts(c.Request.Context(), candID, filters)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempts": attempts,
		"total":    total,
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

// RecordFlag stores a proctoring flag raised by the client
// @Router /attempts/{id}/flags [post]
func (h *AttemptHandler) RecordFlag(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	candID, ok := candidateID(c)
	if !ok {
		return
	}

	var req services.ProctoringFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.AttemptID = attemptID
	req.CandidateID = candID

	attempt, err := h.engine.RecordProctoringFlag(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Flag recorded", Data: attempt})
}

// ApplyReview applies a moderation decision to an attempt
// @Router /attempts/{id}/review [post]
func (h *AttemptHandler) ApplyReview(c *gin.Context) {
	attemptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	reviewerID, ok := candidateID(c)
	if !ok {
		return
	}

	var req services.ReviewDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.AttemptID = attemptID
	req.ReviewerID = reviewerID

	attempt, err := h.engine.ApplyReviewDecision(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Review decision applied", Data: attempt})
}

// ExportResults streams an xlsx of all attempts for a test
// @Router /tests/{test_id}/results/export [get]
func (h *AttemptHandler) ExportResults(c *gin.Context) {
	testID, ok := parseIDParam(c, "test_id")
	if !ok {
		return
	}

	data, err := h.exporter.ExportTestResults(c.Request.Context(), testID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("test-%d-results.xlsx", testID)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func parseAttemptFilters(c *gin.Context) repositories.AttemptFilters {
	filters := repositories.AttemptFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if raw := c.Query("status"); raw != "" {
		status := models.TestStatus(raw)
		filters.Status = &status
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filters.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset > 0 {
			filters.Offset = offset
		}
	}
	if raw := c.Query("date_from"); raw != "" {
		if from, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.DateFrom = &from
		}
	}
	if raw := c.Query("date_to"); raw != "" {
		if to, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.DateTo = &to
		}
	}
	return filters
}
