package postgres

import (
	"context"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"gorm.io/gorm"
)

type TestPostgreSQL struct {
	db *gorm.DB
}

func NewTestPostgreSQL(db *gorm.DB) repositories.TestRepository {
	return &TestPostgreSQL{db: db}
}

func (r *TestPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Test, error) {
	var test models.Test
	if err := r.db.WithContext(ctx).First(&test, id).Error; err != nil {
		return nil, err
	}
	return &test, nil
}
