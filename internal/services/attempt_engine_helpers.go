package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ascholar/testing-service/internal/cache"
	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
)

// errAlreadyFinalized signals that the attempt left IN_PROGRESS under a
// concurrent writer before this operation could commit.
var errAlreadyFinalized = errors.New("attempt already finalized")

// loadOwnedAttempt fetches the attempt with its test and verifies the caller
// owns it.
func (s *attemptEngine) loadOwnedAttempt(ctx context.Context, attemptID, candidateID uint, action string) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetByIDWithTest(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.CandidateID != candidateID {
		return nil, NewPermissionError(candidateID, attemptID, "attempt", action, "attempt belongs to another candidate")
	}
	return attempt, nil
}

// completeAttempt moves an IN_PROGRESS attempt to the given terminal status,
// computing and storing the score. The status check re-runs under the row
// lock so a live submit and the expiry sweep can never both finalize the
// same attempt.
func (s *attemptEngine) completeAttempt(ctx context.Context, attempt *models.TestAttempt, finalStatus models.TestStatus) (*models.TestAttempt, error) {
	now := s.clock.Now()

	answers, err := s.repo.Answer().GetByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	score, err := s.scorer.Score(answers)
	if err != nil {
		// Scoring failures never block completion.
		s.logger.Error("Scoring failed, completing with zero score",
			"attempt_id", attempt.ID, "error", err)
		score = 0
		if auditErr := s.audit.Record(ctx, "scoring_failed", []uint{attempt.ID},
			map[string]interface{}{"error": err.Error()}); auditErr != nil {
			s.logger.Warn("Failed to record scoring audit event",
				"attempt_id", attempt.ID, "error", auditErr)
		}
	}

	var finalized *models.TestAttempt
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Attempt().GetActiveForUpdate(ctx, attempt.TestID, attempt.CandidateID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		if locked == nil || locked.ID != attempt.ID || !locked.IsInProgress() {
			return errAlreadyFinalized
		}

		locked.Status = finalStatus
		locked.CompletedAt = &now
		locked.Score = &score
		if locked.StartedAt != nil {
			spent := int(now.Sub(*locked.StartedAt).Seconds())
			locked.TimeSpentSeconds = &spent
		}

		if err := tx.Attempt().Update(ctx, locked); err != nil {
			return fmt.Errorf("failed to finalize attempt: %w", err)
		}
		finalized = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	finalized.Test = attempt.Test

	s.invalidateAttemptCache(ctx, finalized.ID)

	s.logger.Info("Test attempt finalized",
		"attempt_id", finalized.ID,
		"status", finalized.Status,
		"score", score)

	return finalized, nil
}

// publishCompletion emits the post-commit events for a finalized attempt.
// Delivery failures are logged, never returned, the attempt is already
// durable.
func (s *attemptEngine) publishCompletion(ctx context.Context, attempt *models.TestAttempt, test *models.Test, autoSubmitted bool) {
	if err := s.notifier.ProfileUpdate(ctx, attempt); err != nil {
		s.logger.Warn("Failed to publish profile update",
			"attempt_id", attempt.ID, "error", err)
	}

	if err := s.notifier.AttemptCompleted(ctx, attempt, test, autoSubmitted); err != nil {
		s.logger.Warn("Failed to publish completion notification",
			"attempt_id", attempt.ID, "error", err)
	}

	if attempt.Score != nil && *attempt.Score >= s.cfg.HighPerformerThreshold {
		if err := s.notifier.HighPerformance(ctx, attempt, test, s.cfg.HighPerformerThreshold); err != nil {
			s.logger.Warn("Failed to publish high performer notification",
				"attempt_id", attempt.ID, "error", err)
		}
	}
}

// ===== READ ACCESSORS =====

func (s *attemptEngine) GetAttempt(ctx context.Context, attemptID, candidateID uint) (*models.TestAttempt, error) {
	cacheKey := attemptCacheKey(attemptID)

	var cached models.TestAttempt
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		if cached.CandidateID != candidateID {
			return nil, NewPermissionError(candidateID, attemptID, "attempt", "read", "attempt belongs to another candidate")
		}
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Attempt cache read failed", "attempt_id", attemptID, "error", err)
	}

	attempt, err := s.loadOwnedAttempt(ctx, attemptID, candidateID, "read")
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey, attempt, s.cfg.AttemptCacheTTL); err != nil {
		s.logger.Warn("Attempt cache write failed", "attempt_id", attemptID, "error", err)
	}

	return attempt, nil
}

func (s *attemptEngine) GetRemainingTime(ctx context.Context, attemptID, candidateID uint) (time.Duration, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, candidateID, "read")
	if err != nil {
		return 0, err
	}
	return attempt.RemainingTime(s.clock.Now(), attempt.Test.DurationLimit()), nil
}

func (s *attemptEngine) ListCandidateAttempts(ctx context.Context, candidateID uint, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	return s.repo.Attempt().GetByCandidate(ctx, candidateID, filters)
}

// ===== PROCTORING AND REVIEW =====

func (s *attemptEngine) RecordProctoringFlag(ctx context.Context, req *ProctoringFlagRequest) (*models.TestAttempt, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadOwnedAttempt(ctx, req.AttemptID, req.CandidateID, "flag")
	if err != nil {
		return nil, err
	}

	if !attempt.IsInProgress() {
		return nil, &InvalidStateError{AttemptID: attempt.ID, Status: string(attempt.Status), Operation: "flag"}
	}

	switch req.FlagType {
	case FlagTabSwitch:
		attempt.TabSwitchCount++
	case FlagFullscreenExit:
		attempt.FullscreenExitCount++
	}

	// The write runs without the row lock; the version guard keeps it from
	// resurrecting an attempt a concurrent finalizer closed after our read.
	if err := s.repo.Attempt().UpdateOptimistic(ctx, attempt); err != nil {
		if repositories.IsVersionConflictError(err) {
			return nil, &InvalidStateError{AttemptID: attempt.ID, Status: string(attempt.Status), Operation: "flag"}
		}
		return nil, fmt.Errorf("failed to record proctoring flag: %w", err)
	}

	s.invalidateAttemptCache(ctx, attempt.ID)

	if err := s.notifier.ProctoringFlagRaised(ctx, attempt, req.FlagType, req.Detail); err != nil {
		s.logger.Warn("Failed to publish proctoring flag event",
			"attempt_id", attempt.ID, "error", err)
	}

	if attempt.HasSuspiciousActivity() {
		if auditErr := s.audit.Record(ctx, "suspicious_activity", []uint{attempt.ID},
			map[string]interface{}{
				"flag_type":             req.FlagType,
				"detail":                req.Detail,
				"tab_switch_count":      attempt.TabSwitchCount,
				"fullscreen_exit_count": attempt.FullscreenExitCount,
			}); auditErr != nil {
			s.logger.Warn("Failed to record proctoring audit event",
				"attempt_id", attempt.ID, "error", auditErr)
		}
	}

	return attempt, nil
}

func (s *attemptEngine) ApplyReviewDecision(ctx context.Context, req *ReviewDecisionRequest) (*models.TestAttempt, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByIDWithTest(ctx, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	previous := attempt.Status
	attempt.Status = req.Status
	if err := s.repo.Attempt().UpdateOptimistic(ctx, attempt); err != nil {
		if repositories.IsVersionConflictError(err) {
			return nil, &InvalidStateError{AttemptID: attempt.ID, Status: string(previous), Operation: "review"}
		}
		return nil, fmt.Errorf("failed to apply review decision: %w", err)
	}

	s.invalidateAttemptCache(ctx, attempt.ID)

	if err := s.notifier.ReviewDecisionApplied(ctx, attempt, req.ReviewerID, req.Reason); err != nil {
		s.logger.Warn("Failed to publish review decision event",
			"attempt_id", attempt.ID, "error", err)
	}

	if auditErr := s.audit.Record(ctx, "review_decision", []uint{attempt.ID},
		map[string]interface{}{
			"reviewer_id":     req.ReviewerID,
			"previous_status": string(previous),
			"new_status":      string(req.Status),
			"reason":          req.Reason,
		}); auditErr != nil {
		s.logger.Warn("Failed to record review audit event",
			"attempt_id", attempt.ID, "error", auditErr)
	}

	s.logger.Info("Review decision applied",
		"attempt_id", attempt.ID,
		"from", previous,
		"to", req.Status)

	return attempt, nil
}

// ===== CACHE =====

func attemptCacheKey(attemptID uint) string {
	return fmt.Sprintf("attempt:%d", attemptID)
}

func (s *attemptEngine) invalidateAttemptCache(ctx context.Context, attemptID uint) {
	if err := s.cache.Delete(ctx, attemptCacheKey(attemptID)); err != nil {
		s.logger.Warn("Attempt cache invalidation failed",
			"attempt_id", attemptID, "error", err)
	}
}
