package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ascholar/testing-service/internal/events"
	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"github.com/google/uuid"
)

// PaymentOutcome describes the result of charging a registration fee.
type PaymentOutcome struct {
	Reference string
	Verified  bool
	Amount    float64
}

// PaymentProvider charges the registration fee for a test. Implementations
// must be safe to call concurrently and must not assume any database locks
// are held while they run.
type PaymentProvider interface {
	Charge(ctx context.Context, testID, candidateID uint, amount float64) (*PaymentOutcome, error)
}

// Notifier delivers candidate-facing notifications about attempt lifecycle
// transitions.
type Notifier interface {
	AttemptRegistered(ctx context.Context, attempt *models.TestAttempt, test *models.Test) error
	AttemptStarted(ctx context.Context, attempt *models.TestAttempt, test *models.Test) error
	AttemptCompleted(ctx context.Context, attempt *models.TestAttempt, test *models.Test, autoSubmitted bool) error
	HighPerformance(ctx context.Context, attempt *models.TestAttempt, test *models.Test, threshold float64) error
	ProfileUpdate(ctx context.Context, attempt *models.TestAttempt) error
	ProctoringFlagRaised(ctx context.Context, attempt *models.TestAttempt, flagType, detail string) error
	ReviewDecisionApplied(ctx context.Context, attempt *models.TestAttempt, reviewerID uint, reason string) error
}

// AuditRecorder records operational events for later inspection.
type AuditRecorder interface {
	Record(ctx context.Context, action string, attemptIDs []uint, detail map[string]interface{}) error
}

// EligibilityChecker answers whether a candidate is currently allowed to take
// tests at all.
type EligibilityChecker interface {
	CheckCandidate(ctx context.Context, candidateID uint) error
}

// ===== DEFAULT IMPLEMENTATIONS =====

// mockPaymentProvider simulates a payment gateway. Every charge succeeds and
// is immediately verified.
type mockPaymentProvider struct {
	logger *slog.Logger
}

func NewMockPaymentProvider(logger *slog.Logger) PaymentProvider {
	return &mockPaymentProvider{logger: logger}
}

func (p *mockPaymentProvider) Charge(ctx context.Context, testID, candidateID uint, amount float64) (*PaymentOutcome, error) {
	reference := fmt.Sprintf("pay_%s", uuid.NewString())
	p.logger.Info("Processed registration payment",
		"test_id", testID,
		"candidate_id", candidateID,
		"amount", amount,
		"reference", reference)

	return &PaymentOutcome{
		Reference: reference,
		Verified:  true,
		Amount:    amount,
	}, nil
}

// eventNotifier publishes notifications through the event publisher.
type eventNotifier struct {
	publisher events.EventPublisher
}

func NewEventNotifier(publisher events.EventPublisher) Notifier {
	return &eventNotifier{publisher: publisher}
}

func (n *eventNotifier) AttemptRegistered(ctx context.Context, attempt *models.TestAttempt, test *models.Test) error {
	event := events.NewAttemptRegisteredEvent(
		attempt.ID, test.ID, test.Title, attempt.CandidateID,
		attempt.PaymentReference, attempt.CreatedAt)
	return n.publisher.PublishNotificationEvent(ctx, event)
}

func (n *eventNotifier) AttemptStarted(ctx context.Context, attempt *models.TestAttempt, test *models.Test) error {
	startedAt := time.Now()
	if attempt.StartedAt != nil {
		startedAt = *attempt.StartedAt
	}
	event := events.NewAttemptStartedEvent(
		attempt.ID, test.ID, test.Title, attempt.CandidateID,
		startedAt, test.Duration)
	return n.publisher.PublishNotificationEvent(ctx, event)
}

func (n *eventNotifier) AttemptCompleted(ctx context.Context, attempt *models.TestAttempt, test *models.Test, autoSubmitted bool) error {
	var score float64
	if attempt.Score != nil {
		score = *attempt.Score
	}
	completedAt := time.Now()
	if attempt.CompletedAt != nil {
		completedAt = *attempt.CompletedAt
	}
	passed := test.PassingScore != nil && score >= *test.PassingScore
	event := events.NewAttemptCompletedEvent(
		attempt.ID, test.ID, test.Title, attempt.CandidateID,
		completedAt, score, passed, autoSubmitted)
	return n.publisher.PublishNotificationEvent(ctx, event)
}

func (n *eventNotifier) HighPerformance(ctx context.Context, attempt *models.TestAttempt, test *models.Test, threshold float64) error {
	var score float64
	if attempt.Score != nil {
		score = *attempt.Score
	}
	event := events.NewHighPerformanceEvent(
		attempt.CandidateID, test.ID, test.Title, score, threshold)
	return n.publisher.PublishNotificationEvent(ctx, event)
}

func (n *eventNotifier) ProfileUpdate(ctx context.Context, attempt *models.TestAttempt) error {
	var score float64
	if attempt.Score != nil {
		score = *attempt.Score
	}
	event := events.NewProfileUpdateEvent(
		attempt.CandidateID, attempt.TestID, score, string(attempt.Status))
	return n.publisher.PublishNotificationEvent(ctx, event)
}

func (n *eventNotifier) ProctoringFlagRaised(ctx context.Context, attempt *models.TestAttempt, flagType, detail string) error {
	event := events.NewProctoringFlagEvent(
		attempt.ID, attempt.CandidateID, flagType, detail, time.Now())
	return n.publisher.PublishNotificationEvent(ctx, event)
}

func (n *eventNotifier) ReviewDecisionApplied(ctx context.Context, attempt *models.TestAttempt, reviewerID uint, reason string) error {
	event := events.NewReviewDecisionEvent(
		attempt.ID, reviewerID, string(attempt.Status), reason, time.Now())
	return n.publisher.PublishNotificationEvent(ctx, event)
}

// eventAuditRecorder publishes audit entries as events.
type eventAuditRecorder struct {
	publisher events.EventPublisher
}

func NewEventAuditRecorder(publisher events.EventPublisher) AuditRecorder {
	return &eventAuditRecorder{publisher: publisher}
}

func (a *eventAuditRecorder) Record(ctx context.Context, action string, attemptIDs []uint, detail map[string]interface{}) error {
	event := events.NewAuditRecordedEvent(action, attemptIDs, detail, time.Now())
	return a.publisher.PublishNotificationEvent(ctx, event)
}

// repoEligibilityChecker verifies the candidate record allows test taking.
type repoEligibilityChecker struct {
	repo repositories.Repository
}

func NewRepoEligibilityChecker(repo repositories.Repository) EligibilityChecker {
	return &repoEligibilityChecker{repo: repo}
}

func (c *repoEligibilityChecker) CheckCandidate(ctx context.Context, candidateID uint) error {
	candidate, err := c.repo.Candidate().GetByID(ctx, candidateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrCandidateNotFound
		}
		return fmt.Errorf("load candidate %d: %w", candidateID, err)
	}
	if !candidate.CanTakeTests() {
		return ErrCandidateNotEligible
	}
	return nil
}

// ===== TEST DOUBLES =====

// StubPaymentProvider is a configurable PaymentProvider for tests.
type StubPaymentProvider struct {
	mu       sync.Mutex
	Outcome  PaymentOutcome
	Err      error
	Charges  int
	LastTest uint
}

func (p *StubPaymentProvider) Charge(_ context.Context, testID, _ uint, amount float64) (*PaymentOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Charges++
	p.LastTest = testID
	if p.Err != nil {
		return nil, p.Err
	}
	outcome := p.Outcome
	if outcome.Reference == "" {
		outcome.Reference = fmt.Sprintf("pay_stub_%d", p.Charges)
		outcome.Verified = true
		outcome.Amount = amount
	}
	return &outcome, nil
}
