package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfarer/api/internal/models"
	"wayfarer/api/internal/ratelimit"
	"wayfarer/api/internal/repository"
)

type fakeTokenPurger struct {
	calls   atomic.Int64
	removed int64
	err     error
}

func (p *fakeTokenPurger) DeleteExpiredRefreshTokens(_ context.Context, _ time.Time) (int64, error) {
	p.calls.Add(1)
	return p.removed, p.err
}

type fakeSessionPurger struct {
	calls   atomic.Int64
	removed int64
	err     error
}

func (p *fakeSessionPurger) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	p.calls.Add(1)
	return p.removed, p.err
}

type fakeRateStore struct {
	mu      sync.Mutex
	calls   int
	removed int64
	err     error
}

func (s *fakeRateStore) Get(_ context.Context, _ string) (models.RateLimitRecord, error) {
	return models.RateLimitRecord{}, repository.ErrRecordNotFound
}

func (s *fakeRateStore) RecordFailure(_ context.Context, identifier string, now, resetTime time.Time) (models.RateLimitRecord, error) {
	return models.RateLimitRecord{Identifier: identifier, Attempts: 1, LastAttempt: now, ResetTime: resetTime}, nil
}

func (s *fakeRateStore) Delete(_ context.Context, _ string) error { return nil }

func (s *fakeRateStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.removed, s.err
}

func (s *fakeRateStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newReaperFixture(tokens *fakeTokenPurger, sessions *fakeSessionPurger, rates *fakeRateStore) *Reaper {
	limiter := ratelimit.New(rates, 10, 10*time.Minute)
	return NewReaper(tokens, sessions, limiter, zerolog.Nop())
}

func TestReaperRunManualSweepsAllStores(t *testing.T) {
	tokens := &fakeTokenPurger{removed: 3}
	sessions := &fakeSessionPurger{removed: 2}
	rates := &fakeRateStore{removed: 1}
	reaper := newReaperFixture(tokens, sessions, rates)

	reaper.RunManual()

	assert.Equal(t, int64(1), tokens.calls.Load())
	assert.Equal(t, int64(1), sessions.calls.Load())
	assert.Equal(t, 1, rates.callCount())
	assert.False(t, reaper.Running(), "a manual sweep does not start the schedule")
}

func TestReaperFailureIsolation(t *testing.T) {
	tokens := &fakeTokenPurger{err: errors.New("tokens table gone")}
	sessions := &fakeSessionPurger{}
	rates := &fakeRateStore{err: errors.New("rate limits table gone")}
	reaper := newReaperFixture(tokens, sessions, rates)

	reaper.RunManual()

	// Both earlier tasks failed; the session purge still ran.
	assert.Equal(t, int64(1), sessions.calls.Load())
}

func TestReaperStartStop(t *testing.T) {
	tokens := &fakeTokenPurger{}
	sessions := &fakeSessionPurger{}
	rates := &fakeRateStore{}
	reaper := newReaperFixture(tokens, sessions, rates)

	assert.False(t, reaper.Running())

	reaper.Start(time.Hour)
	assert.True(t, reaper.Running())

	// Start performs one immediate sweep in the background.
	require.Eventually(t, func() bool {
		return tokens.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	reaper.Stop()
	assert.False(t, reaper.Running())

	// Stop is idempotent.
	reaper.Stop()
	assert.False(t, reaper.Running())
}

func TestReaperStartIdempotent(t *testing.T) {
	tokens := &fakeTokenPurger{}
	sessions := &fakeSessionPurger{}
	rates := &fakeRateStore{}
	reaper := newReaperFixture(tokens, sessions, rates)

	reaper.Start(time.Hour)
	defer reaper.Stop()
	reaper.Start(time.Hour)
	reaper.Start(time.Minute)

	assert.True(t, reaper.Running())

	require.Eventually(t, func() bool {
		return tokens.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// Only the first Start scheduled anything; repeated calls did not
	// stack extra immediate sweeps.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), tokens.calls.Load())
}

type blockingTokenPurger struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingTokenPurger) DeleteExpiredRefreshTokens(ctx context.Context, _ time.Time) (int64, error) {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	return 0, nil
}

func TestReaperStopWaitsForImmediateSweep(t *testing.T) {
	tokens := &blockingTokenPurger{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	sessions := &fakeSessionPurger{}
	rates := &fakeRateStore{}
	limiter := ratelimit.New(rates, 10, 10*time.Minute)
	reaper := NewReaper(tokens, sessions, limiter, zerolog.Nop())

	reaper.Start(time.Hour)

	select {
	case <-tokens.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate sweep never started")
	}

	stopped := make(chan struct{})
	go func() {
		reaper.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(tokens.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the sweep finished")
	}
	assert.False(t, reaper.Running())
}

func TestReaperRestartAfterStop(t *testing.T) {
	tokens := &fakeTokenPurger{}
	sessions := &fakeSessionPurger{}
	rates := &fakeRateStore{}
	reaper := newReaperFixture(tokens, sessions, rates)

	reaper.Start(time.Hour)
	require.Eventually(t, func() bool {
		return tokens.calls.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	reaper.Stop()

	reaper.Start(time.Hour)
	assert.True(t, reaper.Running())
	require.Eventually(t, func() bool {
		return tokens.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	reaper.Stop()
}
