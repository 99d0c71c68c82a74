package models

import (
	"time"

	"gorm.io/datatypes"
)

type TestStatus string

const (
	StatusRegistered      TestStatus = "REGISTERED"
	StatusPaymentPending  TestStatus = "PAYMENT_PENDING"
	StatusPaymentVerified TestStatus = "PAYMENT_VERIFIED"
	StatusInProgress      TestStatus = "IN_PROGRESS"
	StatusPaused          TestStatus = "PAUSED"
	StatusCompleted       TestStatus = "COMPLETED"
	StatusAutoSubmitted   TestStatus = "AUTO_SUBMITTED"
	StatusGraded          TestStatus = "GRADED"
	StatusUnderReview     TestStatus = "UNDER_REVIEW"
	StatusDisqualified    TestStatus = "DISQUALIFIED"
	StatusCancelled       TestStatus = "CANCELLED"
)

// ActiveStatuses are the statuses that count toward the one-active-attempt
// invariant: a candidate may hold at most one attempt per test in any of
// these.
func ActiveStatuses() []TestStatus {
	return []TestStatus{StatusRegistered, StatusInProgress}
}

// ReviewStatuses are the statuses an external moderation decision may move
// an attempt into, regardless of its current state.
func ReviewStatuses() []TestStatus {
	return []TestStatus{StatusGraded, StatusUnderReview, StatusDisqualified, StatusCancelled}
}

// TestAttempt is one candidate's run at one test. Rows are created on
// registration and mutated only through the lifecycle engine; the core
// never deletes them.
type TestAttempt struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	TestID      uint       `json:"test_id" gorm:"not null;index:idx_attempt_test_candidate"`
	CandidateID uint       `json:"candidate_id" gorm:"not null;index:idx_attempt_test_candidate"`
	Status      TestStatus `json:"status" gorm:"not null;size:20;default:REGISTERED;index"`

	// Timing
	StartedAt        *time.Time `json:"started_at" gorm:"index"`
	CompletedAt      *time.Time `json:"completed_at"`
	TimeSpentSeconds *int       `json:"time_spent_seconds"`

	// Proctoring counters, advisory only
	TabSwitchCount      int `json:"tab_switch_count" gorm:"default:0"`
	FullscreenExitCount int `json:"fullscreen_exit_count" gorm:"default:0"`

	// Client metadata, recorded on start
	IPAddress   string         `json:"ip_address" gorm:"size:45"`
	UserAgent   string         `json:"user_agent" gorm:"size:500"`
	SessionData datatypes.JSON `json:"session_data" gorm:"type:jsonb"`

	// Payment
	PaymentReference string  `json:"payment_reference" gorm:"size:64"`
	PaymentVerified  bool    `json:"payment_verified" gorm:"not null;default:false"`
	PaymentAmount    float64 `json:"payment_amount"`

	CurrentQuestionIndex int      `json:"current_question_index" gorm:"default:0"`
	Score                *float64 `json:"score"` // nil until computed

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Defense in depth for read-then-write paths outside the row lock.
	Version int `json:"version" gorm:"default:1"`

	Test      Test         `json:"test" gorm:"foreignKey:TestID"`
	Candidate Candidate    `json:"candidate" gorm:"foreignKey:CandidateID"`
	Answers   []TestAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

func (a *TestAttempt) IsInProgress() bool {
	return a.Status == StatusInProgress
}

func (a *TestAttempt) IsCompleted() bool {
	return a.Status == StatusCompleted || a.Status == StatusAutoSubmitted
}

// CanStart reports whether the attempt satisfies the start preconditions
// that depend on the attempt row itself.
func (a *TestAttempt) CanStart() bool {
	return a.Status == StatusRegistered && a.PaymentVerified && a.StartedAt == nil
}

// RemainingTime returns how much of the allotted duration is left at the
// given instant, clamped to zero. An attempt that never started has no
// remaining time.
func (a *TestAttempt) RemainingTime(now time.Time, allowed time.Duration) time.Duration {
	if a.StartedAt == nil || !a.IsInProgress() {
		return 0
	}
	remaining := allowed - now.Sub(*a.StartedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeExpired reports whether the elapsed time exceeds the allotted
// duration. An attempt with no startedAt cannot be expired by the duration
// check.
func (a *TestAttempt) TimeExpired(now time.Time, allowed time.Duration) bool {
	if a.StartedAt == nil {
		return false
	}
	return now.Sub(*a.StartedAt) > allowed
}

// HasSuspiciousActivity flags attempts with excessive tab switches or any
// fullscreen exit. Advisory metadata, not a transition trigger.
func (a *TestAttempt) HasSuspiciousActivity() bool {
	return a.TabSwitchCount > 3 || a.FullscreenExitCount > 0
}
