package models

import "time"

type Candidate struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Email    string `json:"email" gorm:"not null;size:255;uniqueIndex" validate:"required,email"`
	FullName string `json:"full_name" gorm:"not null;size:255"`

	Enabled  bool `json:"enabled" gorm:"not null;default:true"`
	Verified bool `json:"verified" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// CanTakeTests reports whether the candidate is eligible to register for
// and sit tests.
func (c *Candidate) CanTakeTests() bool {
	return c.Enabled && c.Verified
}
