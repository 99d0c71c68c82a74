package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
)

// ExpirySweeper periodically auto-submits attempts whose time ran out while
// the candidate was away.
type ExpirySweeper struct {
	repo     repositories.Repository
	engine   AttemptEngine
	audit    AuditRecorder
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
}

func NewExpirySweeper(
	repo repositories.Repository,
	engine AttemptEngine,
	audit AuditRecorder,
	clock Clock,
	interval time.Duration,
	logger *slog.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		repo:     repo,
		engine:   engine,
		audit:    audit,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	s.logger.Info("Expiry sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Expiry sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep pass. A failure on one attempt never
// stops the rest of the batch.
func (s *ExpirySweeper) RunOnce(ctx context.Context) error {
	inProgress, err := s.repo.Attempt().GetByStatus(ctx, models.StatusInProgress)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var submitted []uint
	for _, attempt := range inProgress {
		if !attempt.TimeExpired(now, attempt.Test.DurationLimit()) {
			continue
		}

		if _, err := s.engine.AutoSubmit(ctx, attempt.ID); err != nil {
			s.logger.Error("Failed to auto-submit expired attempt",
				"attempt_id", attempt.ID, "error", err)
			continue
		}
		submitted = append(submitted, attempt.ID)
	}

	if len(submitted) > 0 {
		s.logger.Info("Auto-submitted expired attempts", "count", len(submitted))
		if err := s.audit.Record(ctx, "auto_submit_sweep", submitted,
			map[string]interface{}{"count": len(submitted), "swept_at": now}); err != nil {
			s.logger.Warn("Failed to record sweep audit event", "error", err)
		}
	}

	return nil
}
