package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ascholar/testing-service/internal/cache"
	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/ratelimit"
	"github.com/ascholar/testing-service/internal/repositories"
	"github.com/ascholar/testing-service/internal/scoring"
	"github.com/ascholar/testing-service/internal/utils"
	"gorm.io/datatypes"
)

// AttemptEngine owns every mutation of a test attempt. No other component
// writes attempt or answer rows.
type AttemptEngine interface {
	Register(ctx context.Context, req *RegisterRequest) (*models.TestAttempt, error)
	Start(ctx context.Context, req *StartRequest) (*models.TestAttempt, error)
	SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*models.TestAnswer, error)
	SubmitTest(ctx context.Context, req *SubmitTestRequest) (*models.TestAttempt, error)
	AutoSubmit(ctx context.Context, attemptID uint) (*models.TestAttempt, error)

	GetAttempt(ctx context.Context, attemptID, candidateID uint) (*models.TestAttempt, error)
	GetRemainingTime(ctx context.Context, attemptID, candidateID uint) (time.Duration, error)
	ListCandidateAttempts(ctx context.Context, candidateID uint, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error)

	RecordProctoringFlag(ctx context.Context, req *ProctoringFlagRequest) (*models.TestAttempt, error)
	ApplyReviewDecision(ctx context.Context, req *ReviewDecisionRequest) (*models.TestAttempt, error)
}

// ===== REQUEST TYPES =====

type RegisterRequest struct {
	TestID      uint `json:"test_id" validate:"required"`
	CandidateID uint `json:"candidate_id" validate:"required"`
}

type StartRequest struct {
	AttemptID   uint           `json:"attempt_id" validate:"required"`
	CandidateID uint           `json:"candidate_id" validate:"required"`
	IPAddress   string         `json:"ip_address" validate:"omitempty,max=45"`
	UserAgent   string         `json:"user_agent" validate:"omitempty,max=500"`
	SessionData datatypes.JSON `json:"session_data"`
}

type SubmitAnswerRequest struct {
	AttemptID        uint   `json:"attempt_id" validate:"required"`
	CandidateID      uint   `json:"candidate_id" validate:"required"`
	QuestionID       uint   `json:"question_id" validate:"required"`
	Answer           string `json:"answer" validate:"max=10000"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"min=0"`
	QuestionType     string `json:"question_type" validate:"omitempty,max=50"`
	QuestionPoints   int    `json:"question_points" validate:"min=0"`
}

type SubmitTestRequest struct {
	AttemptID   uint   `json:"attempt_id" validate:"required"`
	CandidateID uint   `json:"candidate_id" validate:"required"`
	ForceSubmit bool   `json:"force_submit"`
	Reason      string `json:"reason" validate:"omitempty,max=500"`
}

// Proctoring flag types accepted by RecordProctoringFlag.
const (
	FlagTabSwitch      = "tab_switch"
	FlagFullscreenExit = "fullscreen_exit"
)

type ProctoringFlagRequest struct {
	AttemptID   uint   `json:"attempt_id" validate:"required"`
	CandidateID uint   `json:"candidate_id" validate:"required"`
	FlagType    string `json:"flag_type" validate:"required,oneof=tab_switch fullscreen_exit"`
	Detail      string `json:"detail" validate:"omitempty,max=500"`
}

type ReviewDecisionRequest struct {
	AttemptID  uint              `json:"attempt_id" validate:"required"`
	ReviewerID uint              `json:"reviewer_id" validate:"required"`
	Status     models.TestStatus `json:"status" validate:"required,review_status"`
	Reason     string            `json:"reason" validate:"omitempty,max=1000"`
}

// ===== ENGINE CONFIGURATION =====

type EngineConfig struct {
	HighPerformerThreshold float64
	AttemptCacheTTL        time.Duration
}

// ===== IMPLEMENTATION =====

type attemptEngine struct {
	repo        repositories.Repository
	scorer      scoring.Scorer
	limiter     ratelimit.Limiter
	cache       cache.CacheService
	payment     PaymentProvider
	notifier    Notifier
	audit       AuditRecorder
	eligibility EligibilityChecker
	clock       Clock
	cfg         EngineConfig
	logger      *slog.Logger
	validator   *utils.Validator
}

func NewAttemptEngine(
	repo repositories.Repository,
	scorer scoring.Scorer,
	limiter ratelimit.Limiter,
	cacheService cache.CacheService,
	payment PaymentProvider,
	notifier Notifier,
	audit AuditRecorder,
	eligibility EligibilityChecker,
	clock Clock,
	cfg EngineConfig,
	logger *slog.Logger,
	validator *utils.Validator,
) AttemptEngine {
	return &attemptEngine{
		repo:        repo,
		scorer:      scorer,
		limiter:     limiter,
		cache:       cacheService,
		payment:     payment,
		notifier:    notifier,
		audit:       audit,
		eligibility: eligibility,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
		validator:   validator,
	}
}

// ===== REGISTRATION =====

func (s *attemptEngine) Register(ctx context.Context, req *RegisterRequest) (*models.TestAttempt, error) {
	s.logger.Info("Registering for test",
		"test_id", req.TestID,
		"candidate_id", req.CandidateID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if err := s.eligibility.CheckCandidate(ctx, req.CandidateID); err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByID(ctx, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	now := s.clock.Now()
	if !test.IsActive {
		return nil, ErrTestInactive
	}
	if !test.IsRegistrationOpen(now) {
		return nil, ErrRegistrationClosed
	}

	// Existence check and insert run under the per-(test,candidate) lock.
	// The payment call happens after this transaction commits so the lock
	// is never held across a collaborator wait.
	attempt := &models.TestAttempt{
		TestID:      req.TestID,
		CandidateID: req.CandidateID,
		Status:      models.StatusRegistered,
	}

	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		existing, err := tx.Attempt().GetActiveForUpdate(ctx, req.TestID, req.CandidateID)
		if err != nil {
			return fmt.Errorf("failed to check active attempt: %w", err)
		}
		if existing != nil {
			return ErrDuplicateAttempt
		}
		return tx.Attempt().Create(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	outcome, err := s.payment.Charge(ctx, test.ID, req.CandidateID, test.Fee)
	if err != nil {
		// The row stays REGISTERED with payment unverified; Start refuses
		// it until a later verification pass settles the charge.
		s.logger.Error("Registration payment failed",
			"attempt_id", attempt.ID,
			"test_id", test.ID,
			"candidate_id", req.CandidateID,
			"error", err)
		if auditErr := s.audit.Record(ctx, "payment_failed", []uint{attempt.ID},
			map[string]interface{}{
				"test_id":      test.ID,
				"candidate_id": req.CandidateID,
				"amount":       test.Fee,
				"error":        err.Error(),
			}); auditErr != nil {
			s.logger.Warn("Failed to record payment audit event",
				"attempt_id", attempt.ID, "error", auditErr)
		}
		return nil, &PaymentError{TestID: test.ID, CandidateID: req.CandidateID, Reason: err.Error()}
	}

	// An unverified outcome leaves the attempt REGISTERED with the flag
	// unset; Start refuses it until verification lands.
	attempt.PaymentReference = outcome.Reference
	attempt.PaymentVerified = outcome.Verified
	attempt.PaymentAmount = outcome.Amount
	if err := s.repo.Attempt().UpdateOptimistic(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record payment outcome: %w", err)
	}

	if err := s.notifier.AttemptRegistered(ctx, attempt, test); err != nil {
		s.logger.Warn("Failed to send registration notification",
			"attempt_id", attempt.ID, "error", err)
	}

	s.logger.Info("Registered for test",
		"attempt_id", attempt.ID,
		"test_id", test.ID,
		"candidate_id", req.CandidateID,
		"payment_verified", attempt.PaymentVerified)

	return attempt, nil
}

// ===== START =====

func (s *attemptEngine) Start(ctx context.Context, req *StartRequest) (*models.TestAttempt, error) {
	s.logger.Info("Starting test attempt",
		"attempt_id", req.AttemptID,
		"candidate_id", req.CandidateID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadOwnedAttempt(ctx, req.AttemptID, req.CandidateID, "start")
	if err != nil {
		return nil, err
	}
	test := &attempt.Test

	now := s.clock.Now()
	if !test.IsAvailable(now) {
		return nil, ErrTestUnavailable
	}

	var started *models.TestAttempt
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Attempt().GetActiveForUpdate(ctx, attempt.TestID, attempt.CandidateID)
		if err != nil {
			return fmt.Errorf("failed to lock attempt: %w", err)
		}
		if locked == nil || locked.ID != attempt.ID {
			return &InvalidStateError{AttemptID: attempt.ID, Status: string(attempt.Status), Operation: "start"}
		}
		if !locked.PaymentVerified {
			return ErrPaymentNotVerified
		}
		if locked.StartedAt != nil {
			return ErrAttemptAlreadyStarted
		}
		if !locked.CanStart() {
			return &InvalidStateError{AttemptID: locked.ID, Status: string(locked.Status), Operation: "start"}
		}

		locked.Status = models.StatusInProgress
		locked.StartedAt = &now
		locked.CurrentQuestionIndex = 0
		locked.IPAddress = req.IPAddress
		locked.UserAgent = req.UserAgent
		locked.SessionData = req.SessionData

		if err := tx.Attempt().Update(ctx, locked); err != nil {
			return fmt.Errorf("failed to start attempt: %w", err)
		}
		started = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	started.Test = *test

	s.invalidateAttemptCache(ctx, started.ID)

	if err := s.notifier.AttemptStarted(ctx, started, test); err != nil {
		s.logger.Warn("Failed to send start notification",
			"attempt_id", started.ID, "error", err)
	}

	s.logger.Info("Test attempt started",
		"attempt_id", started.ID,
		"started_at", now)

	return started, nil
}

// ===== ANSWER SUBMISSION =====

func (s *attemptEngine) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*models.TestAnswer, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	// Rate limit before any persistence work. Limiter backend failures let
	// the submission through rather than blocking every candidate.
	limitKey := fmt.Sprintf("answer:%d:%d", req.AttemptID, req.CandidateID)
	allowed, err := s.limiter.Allow(ctx, limitKey)
	if err != nil {
		s.logger.Warn("Rate limiter unavailable, allowing submission",
			"key", limitKey, "error", err)
	} else if !allowed {
		return nil, ErrRateLimitExceeded
	}

	attempt, err := s.loadOwnedAttempt(ctx, req.AttemptID, req.CandidateID, "submit answer")
	if err != nil {
		return nil, err
	}

	if !attempt.IsInProgress() {
		return nil, &InvalidStateError{AttemptID: attempt.ID, Status: string(attempt.Status), Operation: "submit answer"}
	}

	now := s.clock.Now()
	allowedDuration := attempt.Test.DurationLimit()
	if attempt.TimeExpired(now, allowedDuration) {
		return nil, &TimeExpiredError{
			AttemptID: attempt.ID,
			Allowed:   allowedDuration,
			Elapsed:   now.Sub(*attempt.StartedAt),
		}
	}

	// Upsert under the per-(attempt,question) lock. The attempt row itself
	// is never locked here, so the closing status-guarded touch is what
	// keeps the answer write from landing on an attempt a concurrent
	// finalizer already closed: both commit together or neither does.
	var answer *models.TestAnswer
	err = s.repo.Transaction(ctx, func(tx repositories.Repository) error {
		existing, err := tx.Answer().GetForUpdate(ctx, req.AttemptID, req.QuestionID)
		if err != nil {
			return fmt.Errorf("failed to lock answer: %w", err)
		}

		if existing == nil {
			existing = &models.TestAnswer{
				AttemptID:  req.AttemptID,
				QuestionID: req.QuestionID,
			}
		} else {
			// Replacing the text invalidates any earlier grading pass.
			existing.IsCorrect = nil
		}
		existing.Answer = req.Answer
		existing.TimeSpentSeconds = req.TimeSpentSeconds
		existing.QuestionType = req.QuestionType
		existing.QuestionPoints = req.QuestionPoints
		existing.AnsweredAt = now

		if err := tx.Answer().Save(ctx, existing); err != nil {
			return fmt.Errorf("failed to save answer: %w", err)
		}

		touched, err := tx.Attempt().TouchIfInProgress(ctx, req.AttemptID, now)
		if err != nil {
			return fmt.Errorf("failed to touch attempt: %w", err)
		}
		if !touched {
			return errAlreadyFinalized
		}

		answer = existing
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyFinalized) {
			status := string(attempt.Status)
			if fresh, loadErr := s.repo.Attempt().GetByID(ctx, attempt.ID); loadErr == nil {
				status = string(fresh.Status)
			}
			return nil, &InvalidStateError{AttemptID: attempt.ID, Status: status, Operation: "submit answer"}
		}
		return nil, err
	}

	s.invalidateAttemptCache(ctx, attempt.ID)

	return answer, nil
}

// ===== COMPLETION =====

func (s *attemptEngine) SubmitTest(ctx context.Context, req *SubmitTestRequest) (*models.TestAttempt, error) {
	s.logger.Info("Submitting test attempt",
		"attempt_id", req.AttemptID,
		"candidate_id", req.CandidateID,
		"force", req.ForceSubmit)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadOwnedAttempt(ctx, req.AttemptID, req.CandidateID, "submit")
	if err != nil {
		return nil, err
	}

	if !attempt.IsInProgress() {
		return nil, &InvalidStateError{AttemptID: attempt.ID, Status: string(attempt.Status), Operation: "submit"}
	}

	now := s.clock.Now()
	allowedDuration := attempt.Test.DurationLimit()
	if attempt.TimeExpired(now, allowedDuration) && !req.ForceSubmit {
		return nil, &TimeExpiredError{
			AttemptID: attempt.ID,
			Allowed:   allowedDuration,
			Elapsed:   now.Sub(*attempt.StartedAt),
		}
	}

	completed, err := s.completeAttempt(ctx, attempt, models.StatusCompleted)
	if err != nil {
		if errors.Is(err, errAlreadyFinalized) {
			return nil, &InvalidStateError{AttemptID: attempt.ID, Status: string(attempt.Status), Operation: "submit"}
		}
		return nil, err
	}

	s.publishCompletion(ctx, completed, &attempt.Test, false)
	return completed, nil
}

func (s *attemptEngine) AutoSubmit(ctx context.Context, attemptID uint) (*models.TestAttempt, error) {
	attempt, err := s.repo.Attempt().GetByIDWithTest(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	// The sweep races against live submissions. Losing the race means
	// there is nothing left to do.
	if !attempt.IsInProgress() {
		return attempt, nil
	}

	completed, err := s.completeAttempt(ctx, attempt, models.StatusAutoSubmitted)
	if err != nil {
		if errors.Is(err, errAlreadyFinalized) {
			return s.repo.Attempt().GetByIDWithTest(ctx, attemptID)
		}
		return nil, err
	}

	s.publishCompletion(ctx, completed, &attempt.Test, true)
	return completed, nil
}
