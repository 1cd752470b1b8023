package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"postflow/internal/bus"
)

// Attempt runs one delivery attempt for the post. It re-reads durable
// state before and after the adapter call, so a retry timer firing next
// to a periodic tick never double-transitions the same post.
func (e *Engine) Attempt(ctx context.Context, id string) {
	post, err := e.store.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("post_id", id).Msg("load post for attempt")
		return
	}
	if post.Status.Terminal() {
		return
	}

	adapter, ok := e.registry.Resolve(post.Channel)
	if !ok {
		// Unknown channels are rejected at Schedule time; a post can
		// only get here if the registry shrank after it was created.
		log.Error().Str("post_id", id).Str("channel", string(post.Channel)).Msg("no adapter for channel")
		return
	}

	pubErr := adapter.Publish(ctx, post)
	now := e.clock.Now()

	if pubErr == nil {
		e.bus.Emit(ctx, bus.Event{Signal: bus.SignalPublished, Post: post, At: now})
		return
	}

	// Retry eligibility is decided against the stored retry count, not
	// the copy read before the adapter call.
	cur, err := e.store.Get(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("post_id", id).Msg("re-read post after failed attempt")
		return
	}
	if cur.Status.Terminal() {
		return
	}

	attempt := cur.RetryCount + 1
	if attempt < e.cfg.MaxAttempts {
		e.bus.Emit(ctx, bus.Event{Signal: bus.SignalRetrying, Post: cur, At: now, Attempt: attempt, Err: pubErr})
		if err := e.store.MarkRetry(ctx, id, pubErr.Error()); err != nil {
			log.Error().Err(err).Str("post_id", id).Msg("record retry")
			return
		}
		log.Warn().
			Err(pubErr).
			Str("post_id", id).
			Int("attempt", attempt).
			Dur("delay", e.cfg.RetryDelay).
			Msg("publish failed, retry scheduled")
		e.timers.AfterFunc(e.cfg.RetryDelay, func() {
			e.Attempt(context.Background(), id)
		})
		return
	}

	log.Error().
		Err(pubErr).
		Str("post_id", id).
		Int("attempts", attempt).
		Msg("publish failed terminally")
	e.bus.Emit(ctx, bus.Event{Signal: bus.SignalFailed, Post: cur, At: now, Attempt: attempt, Err: pubErr})
}
