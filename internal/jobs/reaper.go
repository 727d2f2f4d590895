// Package jobs hosts the background cleanup reaper. Nothing here starts
// on import: the hosting process calls Start during startup and Stop
// during shutdown.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"wayfarer/api/internal/ratelimit"
)

const sweepTimeout = 30 * time.Second

// RefreshTokenPurger and SessionPurger are the slices of the stores the
// reaper needs.
type RefreshTokenPurger interface {
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Reaper periodically purges expired refresh tokens, rate-limit records
// and sessions. Two states: stopped and running; Start is idempotent.
type Reaper struct {
	tokens   RefreshTokenPurger
	sessions SessionPurger
	limiter  *ratelimit.Limiter
	log      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	wg      sync.WaitGroup
}

func NewReaper(tokens RefreshTokenPurger, sessions SessionPurger, limiter *ratelimit.Limiter, log zerolog.Logger) *Reaper {
	return &Reaper{
		tokens:   tokens,
		sessions: sessions,
		limiter:  limiter,
		log:      log,
	}
}

// Start performs one immediate sweep, then schedules recurring sweeps
// on the given interval. Calling Start while running is a no-op.
func (r *Reaper) Start(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	r.cron = cron.New()
	r.cron.Schedule(cron.Every(interval), cron.FuncJob(r.sweep))
	r.cron.Start()
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sweep()
	}()

	r.log.Info().Dur("interval", interval).Msg("cleanup reaper started")
}

// Stop cancels the schedule and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	ctx := r.cron.Stop()
	<-ctx.Done()
	r.wg.Wait()
	r.cron = nil
	r.running = false

	r.log.Info().Msg("cleanup reaper stopped")
}

// Running reports the current state.
func (r *Reaper) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunManual triggers one out-of-band sweep without touching the
// schedule. Used by the admin endpoint and tests.
func (r *Reaper) RunManual() {
	r.sweep()
}

// sweep runs the three purge tasks independently: one failing task is
// logged and never aborts the others.
func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	now := time.Now()

	if removed, err := r.tokens.DeleteExpiredRefreshTokens(ctx, now); err != nil {
		r.log.Error().Err(err).Msg("purge expired refresh tokens failed")
	} else if removed > 0 {
		r.log.Info().Int64("removed", removed).Msg("purged expired refresh tokens")
	}

	if removed, err := r.limiter.PurgeExpired(ctx); err != nil {
		r.log.Error().Err(err).Msg("purge expired rate limit records failed")
	} else if removed > 0 {
		r.log.Info().Int64("removed", removed).Msg("purged expired rate limit records")
	}

	if removed, err := r.sessions.DeleteExpired(ctx, now); err != nil {
		r.log.Error().Err(err).Msg("purge expired sessions failed")
	} else if removed > 0 {
		r.log.Info().Int64("removed", removed).Msg("purged expired sessions")
	}
}
