package models

import "time"

// TestAnswer is one stored response to one question within an attempt.
// Unique per (attempt, question): resubmission updates the existing row.
type TestAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`

	Answer    string `json:"answer" gorm:"type:text;not null" validate:"required,max=10000"`
	IsCorrect *bool  `json:"is_correct"` // nil until graded

	TimeSpentSeconds int    `json:"time_spent_seconds" gorm:"not null"`
	QuestionType     string `json:"question_type" gorm:"size:50"`
	QuestionPoints   int    `json:"question_points" gorm:"default:1"`

	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Version int `json:"version" gorm:"default:1"`

	Attempt TestAttempt `json:"-" gorm:"foreignKey:AttemptID"`
}

func (TestAnswer) TableName() string {
	return "test_answers"
}

func (a *TestAnswer) IsGraded() bool {
	return a.IsCorrect != nil
}

func (a *TestAnswer) IsCorrectAnswer() bool {
	return a.IsCorrect != nil && *a.IsCorrect
}
