package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.TestAttempt) error {
	return a.db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithTest(ctx context.Context, id uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.db.WithContext(ctx).
		Preload("Test").
		Preload("Candidate").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Update assumes the caller holds the row lock from GetActiveForUpdate.
func (a *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.TestAttempt) error {
	attempt.Version++
	return a.db.WithContext(ctx).Save(attempt).Error
}

// UpdateOptimistic guards the write with the version the attempt was loaded
// at, so an unlocked read-then-write cannot overwrite a row another session
// finalized in the meantime.
func (a *AttemptPostgreSQL) UpdateOptimistic(ctx context.Context, attempt *models.TestAttempt) error {
	loadedVersion := attempt.Version
	attempt.Version++
	result := a.db.WithContext(ctx).Model(attempt).
		Select("*").Omit("created_at", "Test", "Candidate", "Answers").
		Where("version = ?", loadedVersion).
		Updates(attempt)
	if result.Error != nil {
		attempt.Version = loadedVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		attempt.Version = loadedVersion
		return repositories.ErrVersionConflict
	}
	return nil
}

func (a *AttemptPostgreSQL) TouchIfInProgress(ctx context.Context, attemptID uint, at time.Time) (bool, error) {
	result := a.db.WithContext(ctx).Model(&models.TestAttempt{}).
		Where("id = ? AND status = ?", attemptID, models.StatusInProgress).
		Updates(map[string]interface{}{
			"updated_at": at,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetActiveForUpdate takes a SELECT ... FOR UPDATE on any active attempt
// rows for the (test, candidate) pair. Must run inside a transaction; the
// lock is released when the transaction ends.
func (a *AttemptPostgreSQL) GetActiveForUpdate(ctx context.Context, testID, candidateID uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	err := a.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("test_id = ? AND candidate_id = ? AND status IN ?", testID, candidateID, models.ActiveStatuses()).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByStatus(ctx context.Context, status models.TestStatus) ([]*models.TestAttempt, error) {
	var attempts []*models.TestAttempt
	if err := a.db.WithContext(ctx).
		Where("status = ?", status).
		Preload("Test").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) GetByCandidate(ctx context.Context, candidateID uint, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	var attempts []*models.TestAttempt
	var total int64

	query := a.db.WithContext(ctx).Model(&models.TestAttempt{}).Where("candidate_id = ?", candidateID)
	query = applyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPaginationAndSort(query, filters)
	if err := query.Preload("Test").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByTest(ctx context.Context, testID uint) ([]*models.TestAttempt, error) {
	var attempts []*models.TestAttempt
	if err := a.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Preload("Candidate").
		Order("created_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func applyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

func applyPaginationAndSort(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	sortBy := filters.SortBy
	switch sortBy {
	case "created_at", "started_at", "score":
	default:
		sortBy = "created_at"
	}
	order := "DESC"
	if filters.SortOrder == "asc" {
		order = "ASC"
	}
	query = query.Order(sortBy + " " + order)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	return query
}
