package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of notification events
type EventType string

const (
	// Attempt lifecycle events
	EventAttemptRegistered    EventType = "attempt.registered"
	EventAttemptStarted       EventType = "attempt.started"
	EventAttemptCompleted     EventType = "attempt.completed"
	EventAttemptAutoSubmitted EventType = "attempt.auto_submitted"

	// Candidate events
	EventHighPerformance EventType = "candidate.high_performance"
	EventProfileUpdate   EventType = "candidate.profile_update"

	// Proctoring and review events
	EventProctoringFlag EventType = "proctoring.flag_raised"
	EventReviewDecision EventType = "review.decision_applied"

	// System events
	EventAuditRecorded EventType = "system.audit_recorded"
)

// NotificationEvent is the base event structure for all notification events
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Attempt lifecycle event payloads

type AttemptRegisteredEvent struct {
	AttemptID        uint      `json:"attempt_id"`
	TestID           uint      `json:"test_id"`
	TestTitle        string    `json:"test_title"`
	CandidateID      uint      `json:"candidate_id"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	RegisteredAt     time.Time `json:"registered_at"`
}

type AttemptStartedEvent struct {
	AttemptID       uint      `json:"attempt_id"`
	TestID          uint      `json:"test_id"`
	TestTitle       string    `json:"test_title"`
	CandidateID     uint      `json:"candidate_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationMinutes int       `json:"duration_minutes"`
}

type AttemptCompletedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	TestID        uint      `json:"test_id"`
	TestTitle     string    `json:"test_title"`
	CandidateID   uint      `json:"candidate_id"`
	CompletedAt   time.Time `json:"completed_at"`
	Score         float64   `json:"score"`
	Passed        bool      `json:"passed"`
	AutoSubmitted bool      `json:"auto_submitted"`
}

// Candidate event payloads

type HighPerformanceEvent struct {
	CandidateID uint    `json:"candidate_id"`
	TestID      uint    `json:"test_id"`
	TestTitle   string  `json:"test_title"`
	Score       float64 `json:"score"`
	Threshold   float64 `json:"threshold"`
}

type ProfileUpdateEvent struct {
	CandidateID uint    `json:"candidate_id"`
	TestID      uint    `json:"test_id"`
	Score       float64 `json:"score"`
	Status      string  `json:"status"`
}

// Proctoring and review event payloads

type ProctoringFlagEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	CandidateID uint      `json:"candidate_id"`
	FlagType    string    `json:"flag_type"`
	Detail      string    `json:"detail,omitempty"`
	RaisedAt    time.Time `json:"raised_at"`
}

type ReviewDecisionEvent struct {
	AttemptID  uint      `json:"attempt_id"`
	ReviewerID uint      `json:"reviewer_id"`
	Decision   string    `json:"decision"`
	Reason     string    `json:"reason,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// System event payloads

type AuditRecordedEvent struct {
	Action     string                 `json:"action"`
	AttemptIDs []uint                 `json:"attempt_ids,omitempty"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Event factory functions

func newEvent(eventType EventType, data interface{}) *NotificationEvent {
	return &NotificationEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "testing-service",
		Version:   "1.0",
		Data:      data,
	}
}

func NewAttemptRegisteredEvent(attemptID, testID uint, title string, candidateID uint, paymentRef string, registeredAt time.Time) *NotificationEvent {
	return newEvent(EventAttemptRegistered, AttemptRegisteredEvent{
		AttemptID:        attemptID,
		TestID:           testID,
		TestTitle:        title,
		CandidateID:      candidateID,
		PaymentReference: paymentRef,
		RegisteredAt:     registeredAt,
	})
}

func NewAttemptStartedEvent(attemptID, testID uint, title string, candidateID uint, startedAt time.Time, durationMinutes int) *NotificationEvent {
	return newEvent(EventAttemptStarted, AttemptStartedEvent{
		AttemptID:       attemptID,
		TestID:          testID,
		TestTitle:       title,
		CandidateID:     candidateID,
		StartedAt:       startedAt,
		DurationMinutes: durationMinutes,
	})
}

func NewAttemptCompletedEvent(attemptID, testID uint, title string, candidateID uint, completedAt time.Time, score float64, passed, autoSubmitted bool) *NotificationEvent {
	eventType := EventAttemptCompleted
	if autoSubmitted {
		eventType = EventAttemptAutoSubmitted
	}
	return newEvent(eventType, AttemptCompletedEvent{
		AttemptID:     attemptID,
		TestID:        testID,
		TestTitle:     title,
		CandidateID:   candidateID,
		CompletedAt:   completedAt,
		Score:         score,
		Passed:        passed,
		AutoSubmitted: autoSubmitted,
	})
}

func NewHighPerformanceEvent(candidateID, testID uint, title string, score, threshold float64) *NotificationEvent {
	return newEvent(EventHighPerformance, HighPerformanceEvent{
		CandidateID: candidateID,
		TestID:      testID,
		TestTitle:   title,
		Score:       score,
		Threshold:   threshold,
	})
}

func NewProfileUpdateEvent(candidateID, testID uint, score float64, status string) *NotificationEvent {
	return newEvent(EventProfileUpdate, ProfileUpdateEvent{
		CandidateID: candidateID,
		TestID:      testID,
		Score:       score,
		Status:      status,
	})
}

func NewProctoringFlagEvent(attemptID, candidateID uint, flagType, detail string, raisedAt time.Time) *NotificationEvent {
	return newEvent(EventProctoringFlag, ProctoringFlagEvent{
		AttemptID:   attemptID,
		CandidateID: candidateID,
		FlagType:    flagType,
		Detail:      detail,
		RaisedAt:    raisedAt,
	})
}

func NewReviewDecisionEvent(attemptID, reviewerID uint, decision, reason string, decidedAt time.Time) *NotificationEvent {
	return newEvent(EventReviewDecision, ReviewDecisionEvent{
		AttemptID:  attemptID,
		ReviewerID: reviewerID,
		Decision:   decision,
		Reason:     reason,
		DecidedAt:  decidedAt,
	})
}

func NewAuditRecordedEvent(action string, attemptIDs []uint, detail map[string]interface{}, recordedAt time.Time) *NotificationEvent {
	return newEvent(EventAuditRecorded, AuditRecordedEvent{
		Action:     action,
		AttemptIDs: attemptIDs,
		Detail:     detail,
		RecordedAt: recordedAt,
	})
}

// GenerateEventID returns a unique identifier for a new event
func GenerateEventID() string {
	return uuid.NewString()
}
