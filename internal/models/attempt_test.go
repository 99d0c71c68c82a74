package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingTimeClampsToZero(t *testing.T) {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	attempt := &TestAttempt{Status: StatusInProgress, StartedAt: &started}

	assert.Equal(t, 40*time.Minute, attempt.RemainingTime(started.Add(20*time.Minute), time.Hour))
	assert.Equal(t, time.Duration(0), attempt.RemainingTime(started.Add(2*time.Hour), time.Hour))
}

func TestRemainingTimeWithoutStart(t *testing.T) {
	attempt := &TestAttempt{Status: StatusRegistered}
	assert.Equal(t, time.Duration(0), attempt.RemainingTime(time.Now(), time.Hour))
}

func TestTimeExpired(t *testing.T) {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	attempt := &TestAttempt{Status: StatusInProgress, StartedAt: &started}

	assert.False(t, attempt.TimeExpired(started.Add(time.Hour), time.Hour))
	assert.True(t, attempt.TimeExpired(started.Add(time.Hour+time.Second), time.Hour))

	unstarted := &TestAttempt{Status: StatusRegistered}
	assert.False(t, unstarted.TimeExpired(started.Add(24*time.Hour), time.Hour))
}

func TestCanStart(t *testing.T) {
	attempt := &TestAttempt{Status: StatusRegistered, PaymentVerified: true}
	assert.True(t, attempt.CanStart())

	attempt.PaymentVerified = false
	assert.False(t, attempt.CanStart())

	started := time.Now()
	verified := &TestAttempt{Status: StatusRegistered, PaymentVerified: true, StartedAt: &started}
	assert.False(t, verified.CanStart())
}

func TestHasSuspiciousActivity(t *testing.T) {
	assert.False(t, (&TestAttempt{TabSwitchCount: 3}).HasSuspiciousActivity())
	assert.True(t, (&TestAttempt{TabSwitchCount: 4}).HasSuspiciousActivity())
	assert.True(t, (&TestAttempt{FullscreenExitCount: 1}).HasSuspiciousActivity())
}

func TestTestAvailabilityWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	open := &Test{IsActive: true, StartTime: &start, EndTime: &end}
	assert.True(t, open.IsAvailable(now))
	assert.False(t, open.IsAvailable(end.Add(time.Second)))

	inactive := &Test{IsActive: false}
	assert.False(t, inactive.IsAvailable(now))

	unbounded := &Test{IsActive: true}
	assert.True(t, unbounded.IsAvailable(now))
}
