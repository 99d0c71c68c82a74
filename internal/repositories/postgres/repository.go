package postgres

import (
	"context"

	"github.com/ascholar/testing-service/internal/repositories"
	"gorm.io/gorm"
)

type postgresRepository struct {
	db        *gorm.DB
	attempt   repositories.AttemptRepository
	answer    repositories.AnswerRepository
	test      repositories.TestRepository
	candidate repositories.CandidateRepository
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &postgresRepository{
		db:        db,
		attempt:   NewAttemptPostgreSQL(db),
		answer:    NewAnswerPostgreSQL(db),
		test:      NewTestPostgreSQL(db),
		candidate: NewCandidatePostgreSQL(db),
	}
}

func (r *postgresRepository) Attempt() repositories.AttemptRepository     { return r.attempt }
func (r *postgresRepository) Answer() repositories.AnswerRepository       { return r.answer }
func (r *postgresRepository) Test() repositories.TestRepository           { return r.test }
func (r *postgresRepository) Candidate() repositories.CandidateRepository { return r.candidate }

// Transaction runs fn with a repository bound to one database transaction.
// Row locks taken inside fn are held until commit or rollback.
func (r *postgresRepository) Transaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
