package credential

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Service runs hashing, verification and strength scoring on a bounded
// number of concurrent workers. Callers wait (or give up via ctx) when the
// pool is saturated.
type Service struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a credential service with the given bcrypt cost and
// worker count.
func NewService(cost, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(workers)),
	}
}

func (s *Service) do(ctx context.Context, fn func()) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire credential worker: %w", err)
	}
	defer s.sem.Release(1)
	fn()
	return nil
}

// Hash hashes password with the configured cost.
func (s *Service) Hash(ctx context.Context, password string) (string, error) {
	var hash string
	var hashErr error
	if err := s.do(ctx, func() { hash, hashErr = HashPassword(password, s.cost) }); err != nil {
		return "", err
	}
	return hash, hashErr
}

// Verify checks password against hash. The error is non-nil only when ctx
// ends before a worker is available.
func (s *Service) Verify(ctx context.Context, password, hash string) (bool, error) {
	var ok bool
	if err := s.do(ctx, func() { ok = CheckPassword(password, hash) }); err != nil {
		return false, err
	}
	return ok, nil
}

// VerifyNothing burns one verification against a fixed hash. Authentication
// calls it for unknown usernames so both failure paths cost the same.
func (s *Service) VerifyNothing(ctx context.Context, password string) error {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("twilight-forum-placeholder", s.cost)
	})
	_, err := s.Verify(ctx, password, s.dummyHash)
	return err
}

// StrongEnough scores password strength on a pool worker.
func (s *Service) StrongEnough(ctx context.Context, password string) (bool, error) {
	var ok bool
	if err := s.do(ctx, func() { ok = StrongEnough(password) }); err != nil {
		return false, err
	}
	return ok, nil
}
