package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ascholar/testing-service/internal/models"
	"gorm.io/gorm"
)

// Repository aggregates the entity repositories behind one handle.
// Transaction runs fn against a repository bound to a single database
// transaction; returning an error rolls the transaction back.
type Repository interface {
	Attempt() AttemptRepository
	Answer() AnswerRepository
	Test() TestRepository
	Candidate() CandidateRepository

	Transaction(ctx context.Context, fn func(Repository) error) error
}

// AttemptRepository owns test attempt persistence.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.TestAttempt) error
	GetByID(ctx context.Context, id uint) (*models.TestAttempt, error)
	GetByIDWithTest(ctx context.Context, id uint) (*models.TestAttempt, error)

	// Update persists the full row. Callers must hold the row lock taken by
	// GetActiveForUpdate; unlocked read-then-write paths go through
	// UpdateOptimistic instead.
	Update(ctx context.Context, attempt *models.TestAttempt) error

	// UpdateOptimistic persists the full row only while the stored version
	// still matches the one the attempt was loaded with. Returns
	// ErrVersionConflict when another writer committed in between.
	UpdateOptimistic(ctx context.Context, attempt *models.TestAttempt) error

	// TouchIfInProgress bumps the attempt's updated_at and version, but only
	// while the attempt is still IN_PROGRESS. Reports whether a row matched,
	// so a caller inside a transaction can roll back work that must not land
	// on a finalized attempt.
	TouchIfInProgress(ctx context.Context, attemptID uint, at time.Time) (bool, error)

	// GetActiveForUpdate loads the candidate's active attempt for the test
	// under an exclusive row lock, blocking concurrent exclusive readers of
	// the same (test, candidate) rows until the enclosing transaction ends.
	// Returns (nil, nil) when no active attempt exists.
	GetActiveForUpdate(ctx context.Context, testID, candidateID uint) (*models.TestAttempt, error)

	GetByStatus(ctx context.Context, status models.TestStatus) ([]*models.TestAttempt, error)
	GetByCandidate(ctx context.Context, candidateID uint, filters AttemptFilters) ([]*models.TestAttempt, int64, error)
	GetByTest(ctx context.Context, testID uint) ([]*models.TestAttempt, error)
}

// AnswerRepository owns test answer persistence.
type AnswerRepository interface {
	// GetForUpdate loads the answer for (attempt, question) under an
	// exclusive row lock. Returns (nil, nil) when the answer does not exist
	// yet; the caller inserts inside the same transaction.
	GetForUpdate(ctx context.Context, attemptID, questionID uint) (*models.TestAnswer, error)

	Save(ctx context.Context, answer *models.TestAnswer) error
	GetByAttempt(ctx context.Context, attemptID uint) ([]*models.TestAnswer, error)
	CountByAttempt(ctx context.Context, attemptID uint) (int64, error)
}

type TestRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Test, error)
}

type CandidateRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Candidate, error)
}

// AttemptFilters narrows and pages candidate attempt listings.
type AttemptFilters struct {
	Status    *models.TestStatus `json:"status"`
	DateFrom  *time.Time         `json:"date_from"`
	DateTo    *time.Time         `json:"date_to"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
	SortBy    string             `json:"sort_by"`    // "created_at", "started_at", "score"
	SortOrder string             `json:"sort_order"` // "asc", "desc"
}

// ErrVersionConflict reports that a version-guarded write matched no row:
// the attempt changed between the read and the write.
var ErrVersionConflict = errors.New("attempt version conflict")

// IsNotFoundError reports whether err represents a missing row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsVersionConflictError reports whether err is an optimistic locking
// conflict.
func IsVersionConflictError(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
