package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// stubRepo serves just the lookups the exporter needs.
type stubRepo struct {
	repositories.Repository
	test     *models.Test
	attempts []*models.TestAttempt
}

func (r *stubRepo) Test() repositories.TestRepository       { return stubTestRepo{test: r.test} }
func (r *stubRepo) Attempt() repositories.AttemptRepository { return stubAttemptRepo{attempts: r.attempts} }

type stubTestRepo struct {
	repositories.TestRepository
	test *models.Test
}

func (r stubTestRepo) GetByID(context.Context, uint) (*models.Test, error) {
	return r.test, nil
}

type stubAttemptRepo struct {
	repositories.AttemptRepository
	attempts []*models.TestAttempt
}

func (r stubAttemptRepo) GetByTest(context.Context, uint) ([]*models.TestAttempt, error) {
	return r.attempts, nil
}

func TestExportTestResults(t *testing.T) {
	passing := 60.0
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(45 * time.Minute)
	score := 72.5
	spent := 2700

	repo := &stubRepo{
		test: &models.Test{ID: 1, Title: "Qualifier", Duration: 60, PassingScore: &passing},
		attempts: []*models.TestAttempt{
			{
				ID:               11,
				TestID:           1,
				CandidateID:      5,
				Candidate:        models.Candidate{ID: 5, FullName: "Dana Whitfield"},
				Status:           models.StatusCompleted,
				StartedAt:        &started,
				CompletedAt:      &completed,
				Score:            &score,
				TimeSpentSeconds: &spent,
				TabSwitchCount:   1,
			},
			{
				ID:          12,
				TestID:      1,
				CandidateID: 6,
				Candidate:   models.Candidate{ID: 6, FullName: "Priya Nair"},
				Status:      models.StatusRegistered,
			},
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exporter := NewResultsExporter(repo, logger)

	data, err := exporter.ExportTestResults(context.Background(), 1)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Attempt ID", rows[0][0])
	assert.Equal(t, "11", rows[1][0])
	assert.Equal(t, "Dana Whitfield", rows[1][2])
	assert.Equal(t, "COMPLETED", rows[1][3])
	assert.Equal(t, "72.50", rows[1][6])
	assert.Equal(t, "true", rows[1][7])
	assert.Equal(t, "45.0", rows[1][8])

	// Unfinished attempt leaves score fields blank.
	assert.Equal(t, "12", rows[2][0])
	assert.Equal(t, "REGISTERED", rows[2][3])
}
