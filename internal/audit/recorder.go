// Package audit appends security events to a persistent trail. Writes
// are fire-and-forget: a full buffer or a failing store never blocks or
// fails the login path it is observing.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"wayfarer/api/internal/ids"
	"wayfarer/api/internal/models"
	"wayfarer/api/internal/repository"
)

const writeTimeout = 5 * time.Second

type Recorder struct {
	store   repository.EventStore
	log     zerolog.Logger
	ch      chan models.SecurityEvent
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
}

func NewRecorder(store repository.EventStore, log zerolog.Logger, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	r := &Recorder{
		store: store,
		log:   log,
		ch:    make(chan models.SecurityEvent, bufferSize),
		done:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record enqueues one event. It never blocks: when the buffer is full
// the event is dropped and counted.
func (r *Recorder) Record(event models.SecurityEvent) {
	if r == nil || r.closed.Load() {
		return
	}

	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	select {
	case r.ch <- event:
	default:
		r.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded because the buffer was
// full. Exposed for monitoring.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close drains buffered events and stops the writer. Idempotent.
func (r *Recorder) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.ch:
			r.write(event)
		case <-r.done:
			for {
				select {
				case event := <-r.ch:
					r.write(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(event models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.Insert(ctx, event); err != nil {
		r.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("security event write failed")
	}
}
