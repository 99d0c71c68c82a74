package models

import (
	"time"
)

type Test struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:255" validate:"required,min=3,max=255"`
	Description string  `json:"description" gorm:"type:text"`
	Category    string  `json:"category" gorm:"not null;size:100;index"`
	Duration    int     `json:"duration" gorm:"not null" validate:"required,min=5,max=300"` // minutes
	Fee         float64 `json:"fee" gorm:"not null"`

	TotalQuestions int      `json:"total_questions"`
	PassingScore   *float64 `json:"passing_score"`

	// Availability window
	StartTime            *time.Time `json:"start_time"`
	EndTime              *time.Time `json:"end_time"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	IsActive             bool       `json:"is_active" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Version int `json:"version" gorm:"default:1"`

	Attempts []TestAttempt `json:"-" gorm:"foreignKey:TestID"`
}

func (Test) TableName() string {
	return "tests"
}

// DurationLimit returns the allotted test time as a duration.
func (t *Test) DurationLimit() time.Duration {
	return time.Duration(t.Duration) * time.Minute
}

// IsAvailable reports whether the test can be taken at the given instant:
// the test is active and now falls inside the start/end window. A nil
// boundary leaves that side of the window open.
func (t *Test) IsAvailable(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	afterStart := t.StartTime == nil || !now.Before(*t.StartTime)
	beforeEnd := t.EndTime == nil || !now.After(*t.EndTime)
	return afterStart && beforeEnd
}

// IsRegistrationOpen reports whether new registrations are still accepted.
func (t *Test) IsRegistrationOpen(now time.Time) bool {
	return t.RegistrationDeadline == nil || now.Before(*t.RegistrationDeadline)
}
