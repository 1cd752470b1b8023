// Package bus is the in-process notification fabric between the publish
// flow and its persistence/analytics listeners. Emission is synchronous;
// a listener failure is logged and never reaches the emitter.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"postflow/internal/domain"
)

type Signal int

const (
	SignalScheduled Signal = iota
	SignalPublished
	SignalRetrying
	SignalFailed
)

func (s Signal) String() string {
	switch s {
	case SignalScheduled:
		return "scheduled"
	case SignalPublished:
		return "published"
	case SignalRetrying:
		return "retrying"
	case SignalFailed:
		return "failed"
	}
	return "unknown"
}

// Event carries one lifecycle transition. At is the time the transition
// was observed; Attempt and Err are set for retrying/failed signals.
type Event struct {
	Signal  Signal
	Post    domain.Post
	At      time.Time
	Attempt int
	Err     error
}

type Handler func(ctx context.Context, ev Event) error

type Bus struct {
	mu       sync.RWMutex
	handlers map[Signal][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[Signal][]Handler)}
}

func (b *Bus) Subscribe(s Signal, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[s] = append(b.handlers[s], h)
}

// Emit invokes every handler registered for the event's signal. Handler
// errors and panics are logged per listener; Emit itself never fails.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	b.mu.RLock()
	hs := b.handlers[ev.Signal]
	b.mu.RUnlock()

	for _, h := range hs {
		b.invoke(ctx, h, ev)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Stringer("signal", ev.Signal).
				Str("post_id", ev.Post.ID).
				Interface("panic", r).
				Msg("bus listener panicked")
		}
	}()
	if err := h(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Stringer("signal", ev.Signal).
			Str("post_id", ev.Post.ID).
			Msg("bus listener failed")
	}
}
