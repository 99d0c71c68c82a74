package services

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/ascholar/testing-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrConflict         = errors.New("resource conflict")

	// Test specific errors
	ErrTestNotFound         = errors.New("test not found")
	ErrTestUnavailable      = errors.New("test is not available")
	ErrRegistrationClosed   = errors.New("registration deadline has passed")
	ErrTestInactive         = errors.New("test is not active")
	ErrCandidateNotFound    = errors.New("candidate not found")
	ErrCandidateNotEligible = errors.New("candidate is not eligible to take tests")

	// Attempt specific errors
	ErrAttemptNotFound       = errors.New("attempt not found")
	ErrDuplicateAttempt      = errors.New("candidate already has an active attempt for this test")
	ErrAttemptNotInProgress  = errors.New("attempt is not in progress")
	ErrAttemptAlreadyStarted = errors.New("attempt has already been started")
	ErrAttemptNotStartable   = errors.New("attempt cannot be started in its current state")
	ErrAttemptTimeExpired    = errors.New("attempt time has expired")
	ErrPaymentNotVerified    = errors.New("payment has not been verified")
	ErrPaymentFailed         = errors.New("payment processing failed")
	ErrRateLimitExceeded     = errors.New("too many answer submissions, slow down")
	ErrInvalidReviewStatus   = errors.New("invalid review status for attempt")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// InvalidStateError reports an operation attempted against an attempt whose
// status does not permit it.
type InvalidStateError struct {
	AttemptID uint   `json:"attempt_id"`
	Status    string `json:"status"`
	Operation string `json:"operation"`
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s attempt %d in status %s", e.Operation, e.AttemptID, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrConflict
}

// TimeExpiredError carries the allowed and elapsed durations of an attempt
// whose time ran out.
type TimeExpiredError struct {
	AttemptID uint          `json:"attempt_id"`
	Allowed   time.Duration `json:"allowed"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (e *TimeExpiredError) Error() string {
	return fmt.Sprintf("attempt %d time expired: %s elapsed of %s allowed",
		e.AttemptID, e.Elapsed, e.Allowed)
}

func (e *TimeExpiredError) Unwrap() error {
	return ErrAttemptTimeExpired
}

// PaymentError wraps a failure from the payment provider.
type PaymentError struct {
	TestID      uint   `json:"test_id"`
	CandidateID uint   `json:"candidate_id"`
	Reason      string `json:"reason"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed for candidate %d on test %d: %s",
		e.CandidateID, e.TestID, e.Reason)
}

func (e *PaymentError) Unwrap() error {
	return ErrPaymentFailed
}

type PermissionError struct {
	CandidateID uint   `json:"candidate_id"`
	ResourceID  uint   `json:"resource_id"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Reason      string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: candidate %d cannot %s %s %d - %s",
		pe.CandidateID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func (pe *PermissionError) Unwrap() error {
	return ErrForbidden
}

// ===== ERROR HELPERS =====

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewPermissionError(candidateID, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		CandidateID: candidateID,
		ResourceID:  resourceID,
		Resource:    resource,
		Action:      action,
		Reason:      reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrCandidateNotFound)
}

// IsForbidden checks if error represents a permission failure
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrCandidateNotEligible)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateAttempt) ||
		errors.Is(err, ErrAttemptAlreadyStarted)
}

// IsRateLimited checks if error represents an answer submission rate limit
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsTimeExpired checks if error represents an expired attempt window
func IsTimeExpired(err error) bool {
	return errors.Is(err, ErrAttemptTimeExpired)
}

// IsPaymentFailure checks if error represents a payment processing failure
func IsPaymentFailure(err error) bool {
	return errors.Is(err, ErrPaymentFailed)
}
