package postgres

import (
	"context"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"gorm.io/gorm"
)

type CandidatePostgreSQL struct {
	db *gorm.DB
}

func NewCandidatePostgreSQL(db *gorm.DB) repositories.CandidateRepository {
	return &CandidatePostgreSQL{db: db}
}

func (r *CandidatePostgreSQL) GetByID(ctx context.Context, id uint) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := r.db.WithContext(ctx).First(&candidate, id).Error; err != nil {
		return nil, err
	}
	return &candidate, nil
}
