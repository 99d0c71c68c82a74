package postgres

import (
	"context"
	"errors"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

// GetForUpdate locks the (attempt, question) answer row for the duration of
// the enclosing transaction. Concurrent submissions for the same question
// serialize here; submissions for different questions of the same attempt
// lock different rows and do not.
func (r *AnswerPostgreSQL) GetForUpdate(ctx context.Context, attemptID, questionID uint) (*models.TestAnswer, error) {
	var answer models.TestAnswer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &answer, nil
}

func (r *AnswerPostgreSQL) Save(ctx context.Context, answer *models.TestAnswer) error {
	if answer.ID != 0 {
		answer.Version++
	}
	return r.db.WithContext(ctx).Save(answer).Error
}

func (r *AnswerPostgreSQL) GetByAttempt(ctx context.Context, attemptID uint) ([]*models.TestAnswer, error) {
	var answers []*models.TestAnswer
	if err := r.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("answered_at ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func (r *AnswerPostgreSQL) CountByAttempt(ctx context.Context, attemptID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TestAnswer{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error
	return count, err
}
