package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// ResultsExporter renders a test's attempts as a spreadsheet for offline
// review.
type ResultsExporter interface {
	ExportTestResults(ctx context.Context, testID uint) ([]byte, error)
}

type resultsExporter struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewResultsExporter(repo repositories.Repository, logger *slog.Logger) ResultsExporter {
	return &resultsExporter{repo: repo, logger: logger}
}

func (s *resultsExporter) ExportTestResults(ctx context.Context, testID uint) ([]byte, error) {
	test, err := s.repo.Test().GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	attempts, err := s.repo.Attempt().GetByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test attempts: %w", err)
	}

	f := excelize.NewFile()
	sheetName := "Results"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Attempt ID", "Candidate ID", "Candidate Name", "Status", "Started At",
		"Completed At", "Score", "Passed", "Time Spent (minutes)",
		"Tab Switches", "Fullscreen Exits", "Suspicious",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, attempt := range attempts {
		row := attemptRow(test, attempt)
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Exported test results",
		"test_id", testID,
		"attempts", len(attempts))

	return buf.Bytes(), nil
}

func attemptRow(test *models.Test, attempt *models.TestAttempt) []interface{} {
	formatTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}

	score := ""
	passed := ""
	if attempt.Score != nil {
		score = fmt.Sprintf("%.2f", *attempt.Score)
		if test.PassingScore != nil {
			passed = fmt.Sprintf("%t", *attempt.Score >= *test.PassingScore)
		}
	}

	timeSpent := ""
	if attempt.TimeSpentSeconds != nil {
		timeSpent = fmt.Sprintf("%.1f", float64(*attempt.TimeSpentSeconds)/60)
	}

	return []interface{}{
		attempt.ID,
		attempt.CandidateID,
		attempt.Candidate.FullName,
		string(attempt.Status),
		formatTime(attempt.StartedAt),
		formatTime(attempt.CompletedAt),
		score,
		passed,
		timeSpent,
		attempt.TabSwitchCount,
		attempt.FullscreenExitCount,
		fmt.Sprintf("%t", attempt.HasSuspiciousActivity()),
	}
}
