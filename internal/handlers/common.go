package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ascholar/testing-service/internal/services"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== CANDIDATE IDENTITY =====

const candidateIDKey = "candidate_id"

// CandidateAuth resolves the calling candidate from the X-Candidate-ID
// header set by the upstream gateway. Identity and token validation live
// outside this service.
func CandidateAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Candidate-ID")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Candidate not authenticated",
			})
			return
		}
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Message: "Invalid candidate identity",
			})
			return
		}
		c.Set(candidateIDKey, uint(id))
		c.Next()
	}
}

func candidateID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(candidateIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Candidate not authenticated",
		})
		return 0, false
	}
	return value.(uint), true
}

// parseIDParam reads a positive integer path parameter, responding with 400
// on failure.
func parseIDParam(c *gin.Context, param string) (uint, bool) {
	raw := c.Param(param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "must be a positive integer",
		})
		return 0, false
	}
	return uint(id), true
}

// handleServiceError maps engine errors onto HTTP status codes.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
			Code:    "validation_failed",
		})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
			Code:    "not_found",
		})
	case services.IsForbidden(err):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: err.Error(),
			Code:    "forbidden",
		})
	case services.IsRateLimited(err):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Message: err.Error(),
			Code:    "rate_limited",
		})
	case services.IsTimeExpired(err):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
			Code:    "time_expired",
		})
	case services.IsPaymentFailure(err):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{
			Message: err.Error(),
			Code:    "payment_failed",
		})
	case errors.Is(err, services.ErrPaymentNotVerified):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{
			Message: err.Error(),
			Code:    "payment_not_verified",
		})
	case errors.Is(err, services.ErrTestUnavailable),
		errors.Is(err, services.ErrRegistrationClosed),
		errors.Is(err, services.ErrTestInactive):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
			Code:    "test_unavailable",
		})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
			Code:    "conflict",
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
			Code:    "internal_error",
		})
	}
}

// HealthCheck reports service liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
