package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ascholar/testing-service/internal/events"
	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweeperFixture struct {
	*engineFixture
	sweeper *ExpirySweeper
}

func newSweeperFixture(t *testing.T) *sweeperFixture {
	t.Helper()

	ef := newEngineFixture(t, scoring.NewBinaryScorer())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sweeper := NewExpirySweeper(
		newMemoryRepository(ef.store),
		ef.engine,
		NewEventAuditRecorder(ef.publisher),
		ef.clock,
		time.Minute,
		logger,
	)
	return &sweeperFixture{engineFixture: ef, sweeper: sweeper}
}

// startAttemptFor registers and starts an attempt for the given candidate on
// test 1.
func (f *sweeperFixture) startAttemptFor(t *testing.T, candidateID uint) *models.TestAttempt {
	t.Helper()
	ctx := context.Background()

	f.store.putCandidate(&models.Candidate{
		ID:       candidateID,
		Email:    fmt.Sprintf("c%d@example.com", candidateID),
		FullName: fmt.Sprintf("Candidate %d", candidateID),
		Enabled:  true,
		Verified: true,
	})

	attempt, err := f.engine.Register(ctx, &RegisterRequest{TestID: 1, CandidateID: candidateID})
	require.NoError(t, err)

	started, err := f.engine.Start(ctx, &StartRequest{AttemptID: attempt.ID, CandidateID: candidateID})
	require.NoError(t, err)
	return started
}

func TestSweeperAutoSubmitsExpiredAttempts(t *testing.T) {
	f := newSweeperFixture(t)

	var attempts []*models.TestAttempt
	for candidateID := uint(1); candidateID <= 3; candidateID++ {
		attempts = append(attempts, f.startAttemptFor(t, candidateID))
	}

	f.clock.Advance(61 * time.Minute)
	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	for _, attempt := range attempts {
		assert.Equal(t, models.StatusAutoSubmitted, f.store.attemptStatus(attempt.ID))
	}

	swept := f.publisher.EventsOfType(events.EventAttemptAutoSubmitted)
	assert.Len(t, swept, 3)

	audits := f.publisher.EventsOfType(events.EventAuditRecorded)
	require.Len(t, audits, 1)
}

func TestSweeperLeavesUnexpiredAttemptsAlone(t *testing.T) {
	f := newSweeperFixture(t)
	started := f.startAttemptFor(t, 1)

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	assert.Equal(t, models.StatusInProgress, f.store.attemptStatus(started.ID))
	assert.Empty(t, f.publisher.EventsOfType(events.EventAttemptAutoSubmitted))
	assert.Empty(t, f.publisher.EventsOfType(events.EventAuditRecorded))
}

func TestSweeperIgnoresRegisteredAttempts(t *testing.T) {
	f := newSweeperFixture(t)

	attempt, err := f.engine.Register(context.Background(), &RegisterRequest{TestID: 1, CandidateID: 1})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	assert.Equal(t, models.StatusRegistered, f.store.attemptStatus(attempt.ID))
}

func TestSweeperRacingLiveSubmitSingleFinalizer(t *testing.T) {
	f := newSweeperFixture(t)
	started := f.startAttemptFor(t, 1)
	f.clock.Advance(61 * time.Minute)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = f.sweeper.RunOnce(context.Background())
	}()
	go func() {
		defer wg.Done()
		_, _ = f.engine.SubmitTest(context.Background(), &SubmitTestRequest{
			AttemptID: started.ID, CandidateID: 1, ForceSubmit: true,
		})
	}()
	wg.Wait()

	final := f.store.attemptStatus(started.ID)
	assert.Contains(t, []models.TestStatus{models.StatusCompleted, models.StatusAutoSubmitted}, final)
	assert.Len(t, f.publisher.EventsOfType(events.EventProfileUpdate), 1)
}
