package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ascholar/testing-service/internal/models"
	"github.com/ascholar/testing-service/internal/repositories"
	"gorm.io/gorm"
)

// memoryStore backs the in-memory repository fake. A single mutex plays the
// role of the database row locks: Transaction holds it for the whole
// callback, so lock-check-insert sequences are atomic exactly like their
// FOR UPDATE counterparts.
type memoryStore struct {
	mu sync.Mutex

	attempts   map[uint]*models.TestAttempt
	answers    map[string]*models.TestAnswer
	tests      map[uint]*models.Test
	candidates map[uint]*models.Candidate

	nextAttemptID uint
	nextAnswerID  uint
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		attempts:   make(map[uint]*models.TestAttempt),
		answers:    make(map[string]*models.TestAnswer),
		tests:      make(map[uint]*models.Test),
		candidates: make(map[uint]*models.Candidate),
	}
}

func answerKey(attemptID, questionID uint) string {
	return fmt.Sprintf("%d:%d", attemptID, questionID)
}

func (s *memoryStore) putTest(t *models.Test) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[t.ID] = t
}

func (s *memoryStore) putCandidate(c *models.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = c
}

func (s *memoryStore) attemptStatus(id uint) models.TestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[id]; ok {
		return a.Status
	}
	return ""
}

func (s *memoryStore) attempt(id uint) *models.TestAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[id]; ok {
		out := *a
		return &out
	}
	return nil
}

// finalizeAttempt flips a stored attempt straight to a terminal status with
// a score, the way a concurrent session's committed finalization appears to
// everyone else.
func (s *memoryStore) finalizeAttempt(id uint, status models.TestStatus, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.attempts[id]; ok {
		a.Status = status
		a.Score = &score
		a.Version++
	}
}

// snapshotLocked copies the mutable row sets. Callers hold the store lock.
func (s *memoryStore) snapshotLocked() (map[uint]*models.TestAttempt, map[string]*models.TestAnswer) {
	attempts := make(map[uint]*models.TestAttempt, len(s.attempts))
	for id, a := range s.attempts {
		copied := *a
		attempts[id] = &copied
	}
	answers := make(map[string]*models.TestAnswer, len(s.answers))
	for key, a := range s.answers {
		copied := *a
		answers[key] = &copied
	}
	return attempts, answers
}

// gradeAnswer marks a stored answer correct or incorrect, standing in for
// an out-of-band grading pass.
func (s *memoryStore) gradeAnswer(attemptID, questionID uint, correct bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.answers[answerKey(attemptID, questionID)]; ok {
		c := correct
		a.IsCorrect = &c
	}
}

// memoryRepository implements repositories.Repository over a memoryStore.
// Outside a transaction every method takes the store lock; inside one the
// lock is already held by Transaction.
type memoryRepository struct {
	store *memoryStore
	inTx  bool
}

func newMemoryRepository(store *memoryStore) repositories.Repository {
	return &memoryRepository{store: store}
}

func (r *memoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *memoryRepository) Attempt() repositories.AttemptRepository     { return (*memoryAttemptRepo)(r) }
func (r *memoryRepository) Answer() repositories.AnswerRepository       { return (*memoryAnswerRepo)(r) }
func (r *memoryRepository) Test() repositories.TestRepository           { return (*memoryTestRepo)(r) }
func (r *memoryRepository) Candidate() repositories.CandidateRepository { return (*memoryCandidateRepo)(r) }

func (r *memoryRepository) Transaction(_ context.Context, fn func(repositories.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// A failed callback rolls every row write back, like its database
	// counterpart.
	attempts, answers := r.store.snapshotLocked()
	nextAttemptID, nextAnswerID := r.store.nextAttemptID, r.store.nextAnswerID
	err := fn(&memoryRepository{store: r.store, inTx: true})
	if err != nil {
		r.store.attempts, r.store.answers = attempts, answers
		r.store.nextAttemptID, r.store.nextAnswerID = nextAttemptID, nextAnswerID
	}
	return err
}

// ===== ATTEMPTS =====

type memoryAttemptRepo memoryRepository

func (r *memoryAttemptRepo) Create(_ context.Context, attempt *models.TestAttempt) error {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	r.store.nextAttemptID++
	attempt.ID = r.store.nextAttemptID
	stored := *attempt
	r.store.attempts[attempt.ID] = &stored
	return nil
}

func (r *memoryAttemptRepo) GetByID(_ context.Context, id uint) (*models.TestAttempt, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	stored, ok := r.store.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	return &out, nil
}

func (r *memoryAttemptRepo) GetByIDWithTest(_ context.Context, id uint) (*models.TestAttempt, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	stored, ok := r.store.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	if test, ok := r.store.tests[stored.TestID]; ok {
		out.Test = *test
	}
	if candidate, ok := r.store.candidates[stored.CandidateID]; ok {
		out.Candidate = *candidate
	}
	return &out, nil
}

func (r *memoryAttemptRepo) Update(_ context.Context, attempt *models.TestAttempt) error {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	if _, ok := r.store.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	attempt.Version++
	stored := *attempt
	stored.Test = models.Test{}
	stored.Candidate = models.Candidate{}
	r.store.attempts[attempt.ID] = &stored
	return nil
}

func (r *memoryAttemptRepo) UpdateOptimistic(_ context.Context, attempt *models.TestAttempt) error {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	current, ok := r.store.attempts[attempt.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if current.Version != attempt.Version {
		return repositories.ErrVersionConflict
	}
	attempt.Version++
	stored := *attempt
	stored.Test = models.Test{}
	stored.Candidate = models.Candidate{}
	r.store.attempts[attempt.ID] = &stored
	return nil
}

func (r *memoryAttemptRepo) TouchIfInProgress(_ context.Context, attemptID uint, at time.Time) (bool, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	stored, ok := r.store.attempts[attemptID]
	if !ok || !stored.IsInProgress() {
		return false, nil
	}
	stored.UpdatedAt = at
	stored.Version++
	return true, nil
}

func (r *memoryAttemptRepo) GetActiveForUpdate(_ context.Context, testID, candidateID uint) (*models.TestAttempt, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	for _, stored := range r.store.attempts {
		if stored.TestID != testID || stored.CandidateID != candidateID {
			continue
		}
		for _, status := range models.ActiveStatuses() {
			if stored.Status == status {
				out := *stored
				return &out, nil
			}
		}
	}
	return nil, nil
}

func (r *memoryAttemptRepo) GetByStatus(_ context.Context, status models.TestStatus) ([]*models.TestAttempt, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	var out []*models.TestAttempt
	for _, stored := range r.store.attempts {
		if stored.Status != status {
			continue
		}
		copied := *stored
		if test, ok := r.store.tests[stored.TestID]; ok {
			copied.Test = *test
		}
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryAttemptRepo) GetByCandidate(_ context.Context, candidateID uint, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	var out []*models.TestAttempt
	for _, stored := range r.store.attempts {
		if stored.CandidateID != candidateID {
			continue
		}
		if filters.Status != nil && stored.Status != *filters.Status {
			continue
		}
		copied := *stored
		if test, ok := r.store.tests[stored.TestID]; ok {
			copied.Test = *test
		}
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memoryAttemptRepo) GetByTest(_ context.Context, testID uint) ([]*models.TestAttempt, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	var out []*models.TestAttempt
	for _, stored := range r.store.attempts {
		if stored.TestID != testID {
			continue
		}
		copied := *stored
		if candidate, ok := r.store.candidates[stored.CandidateID]; ok {
			copied.Candidate = *candidate
		}
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== ANSWERS =====

type memoryAnswerRepo memoryRepository

func (r *memoryAnswerRepo) GetForUpdate(_ context.Context, attemptID, questionID uint) (*models.TestAnswer, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	stored, ok := r.store.answers[answerKey(attemptID, questionID)]
	if !ok {
		return nil, nil
	}
	out := *stored
	return &out, nil
}

func (r *memoryAnswerRepo) Save(_ context.Context, answer *models.TestAnswer) error {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	if answer.ID == 0 {
		r.store.nextAnswerID++
		answer.ID = r.store.nextAnswerID
	} else {
		answer.Version++
	}
	stored := *answer
	r.store.answers[answerKey(answer.AttemptID, answer.QuestionID)] = &stored
	return nil
}

func (r *memoryAnswerRepo) GetByAttempt(_ context.Context, attemptID uint) ([]*models.TestAnswer, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	var out []*models.TestAnswer
	for _, stored := range r.store.answers {
		if stored.AttemptID != attemptID {
			continue
		}
		copied := *stored
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (r *memoryAnswerRepo) CountByAttempt(_ context.Context, attemptID uint) (int64, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	var count int64
	for _, stored := range r.store.answers {
		if stored.AttemptID == attemptID {
			count++
		}
	}
	return count, nil
}

// ===== TESTS AND CANDIDATES =====

type memoryTestRepo memoryRepository

func (r *memoryTestRepo) GetByID(_ context.Context, id uint) (*models.Test, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	stored, ok := r.store.tests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	return &out, nil
}

type memoryCandidateRepo memoryRepository

func (r *memoryCandidateRepo) GetByID(_ context.Context, id uint) (*models.Candidate, error) {
	unlock := (*memoryRepository)(r).lock()
	defer unlock()

	stored, ok := r.store.candidates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *stored
	return &out, nil
}

// failingScorer always errors, for the scoring-failure completion path.
type failingScorer struct{}

func (failingScorer) Score([]*models.TestAnswer) (float64, error) {
	return 0, fmt.Errorf("scorer backend unavailable")
}

// interceptingRepository runs a callback right before a transaction begins,
// standing in for writes another session commits between an unlocked read
// and the guarded write.
type interceptingRepository struct {
	repositories.Repository
	attemptRepo repositories.AttemptRepository
	beforeTx    func()
}

func (r *interceptingRepository) Attempt() repositories.AttemptRepository {
	if r.attemptRepo != nil {
		return r.attemptRepo
	}
	return r.Repository.Attempt()
}

func (r *interceptingRepository) Transaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if r.beforeTx != nil {
		r.beforeTx()
	}
	return r.Repository.Transaction(ctx, fn)
}

// interceptingAttemptRepo does the same for the optimistic attempt write.
type interceptingAttemptRepo struct {
	repositories.AttemptRepository
	beforeWrite func()
}

func (r *interceptingAttemptRepo) UpdateOptimistic(ctx context.Context, attempt *models.TestAttempt) error {
	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	return r.AttemptRepository.UpdateOptimistic(ctx, attempt)
}
