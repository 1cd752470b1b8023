package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is how often the dispatcher scans for due posts.
const DefaultTickInterval = time.Minute

// Dispatcher is the sole time-driven entry into the publish flow.
type Dispatcher struct {
	engine   *Engine
	interval time.Duration
	stop     chan struct{}
}

func NewDispatcher(e *Engine, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Dispatcher{engine: e, interval: interval, stop: make(chan struct{})}
}

func (d *Dispatcher) Run(ctx context.Context) {
	t := time.NewTicker(d.interval)
	defer t.Stop()

	log.Info().Dur("interval", d.interval).Msg("dispatch loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-t.C:
			d.engine.Tick(ctx, d.engine.clock.Now())
		}
	}
}

func (d *Dispatcher) Stop() { close(d.stop) }

// Tick scans for due pending posts and launches one attempt per post.
// Attempts are fire-and-forget: a slow channel delays neither its
// siblings nor the next tick, and nothing a tick does can take the
// process down.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	due, err := e.store.ListDue(ctx, now, e.cfg.MaxAttempts)
	if err != nil {
		log.Error().Err(err).Msg("list due posts")
		return
	}
	if len(due) > 0 {
		log.Info().Int("due", len(due)).Time("now", now).Msg("dispatching due posts")
	}
	for _, p := range due {
		id := p.ID
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("post_id", id).Interface("panic", r).Msg("publish attempt panicked")
				}
			}()
			// Shutdown stops future ticks but never aborts an attempt
			// already in flight, so attempts get their own context.
			e.Attempt(context.Background(), id)
		}()
	}
}
