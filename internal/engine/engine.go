// Package engine is the scheduling, dispatch and retry core. An Engine
// is constructed once at startup and handed to the HTTP layer and the
// maintenance jobs; there is no ambient singleton.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"postflow/internal/bus"
	"postflow/internal/domain"
	"postflow/internal/publish"
	"postflow/internal/store"
)

const (
	// DefaultMaxAttempts is the total number of delivery attempts before
	// a post fails terminally.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the fixed (deliberately non-exponential)
	// delay before a failed attempt is re-run.
	DefaultRetryDelay = 5 * time.Minute
)

type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type Engine struct {
	store    store.Store
	bus      *bus.Bus
	registry *publish.Registry
	clock    Clock
	timers   TimerQueue
	cfg      Config
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithTimers(t TimerQueue) Option { return func(e *Engine) { e.timers = t } }

func WithConfig(cfg Config) Option { return func(e *Engine) { e.cfg = cfg } }

func New(st store.Store, b *bus.Bus, reg *publish.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		bus:      b,
		registry: reg,
		clock:    SystemClock{},
		timers:   SystemTimers{},
		cfg:      Config{MaxAttempts: DefaultMaxAttempts, RetryDelay: DefaultRetryDelay},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.MaxAttempts <= 0 {
		e.cfg.MaxAttempts = DefaultMaxAttempts
	}
	if e.cfg.RetryDelay <= 0 {
		e.cfg.RetryDelay = DefaultRetryDelay
	}

	e.bus.Subscribe(bus.SignalScheduled, e.onScheduled)
	e.bus.Subscribe(bus.SignalPublished, e.onPublished)
	e.bus.Subscribe(bus.SignalRetrying, e.onRetrying)
	e.bus.Subscribe(bus.SignalFailed, e.onFailed)
	return e
}

// Bus exposes the engine's event bus so extra listeners (analytics,
// notifications) can attach without the engine knowing about them.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Schedule validates and persists a new pending post and emits the
// scheduled signal.
func (e *Engine) Schedule(ctx context.Context, content string, at time.Time, ch domain.Channel, tags []string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", domain.Validationf("content is required")
	}
	if !e.registry.Supports(ch) {
		return "", domain.Validationf("unknown channel %q", ch)
	}

	now := e.clock.Now()
	post := domain.Post{
		Content:     content,
		Channel:     ch,
		ScheduledAt: at.UTC(),
		Status:      domain.StatusPending,
		Tags:        tags,
		CreatedAt:   now,
	}
	id, err := e.store.Create(ctx, post)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	post.ID = id
	e.bus.Emit(ctx, bus.Event{Signal: bus.SignalScheduled, Post: post, At: now})
	return id, nil
}

// PublishNow schedules a post due immediately; the next tick picks it up.
func (e *Engine) PublishNow(ctx context.Context, content string, ch domain.Channel, tags []string) (string, error) {
	return e.Schedule(ctx, content, e.clock.Now(), ch, tags)
}

func (e *Engine) GetByID(ctx context.Context, id string) (domain.Post, error) {
	return e.store.Get(ctx, id)
}

// ListScheduled returns all posts, newest-created first.
func (e *Engine) ListScheduled(ctx context.Context) ([]domain.Post, error) {
	return e.store.ListAll(ctx)
}

// DeleteScheduled removes a post only while it is still pending. It
// reports false for terminal posts, which stay untouched.
func (e *Engine) DeleteScheduled(ctx context.Context, id string) (bool, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return false, err
	}
	return e.store.Delete(ctx, id)
}

// Analytics returns aggregate counts and the most recent events,
// optionally scoped to one post.
func (e *Engine) Analytics(ctx context.Context, postID string, limit int) (domain.Stats, []domain.EventView, error) {
	stats, err := e.store.AggregateStats(ctx)
	if err != nil {
		return domain.Stats{}, nil, err
	}
	events, err := e.store.QueryEvents(ctx, postID, limit)
	if err != nil {
		return domain.Stats{}, nil, err
	}
	return stats, events, nil
}

// Listeners. All durable effects of a lifecycle transition live here,
// driven by the bus rather than inline in the publish flow.

func (e *Engine) onScheduled(ctx context.Context, ev bus.Event) error {
	return e.appendEvent(ctx, ev, domain.EventScheduled, map[string]any{
		"scheduled_for": ev.Post.ScheduledAt.Format(time.RFC3339),
	})
}

func (e *Engine) onPublished(ctx context.Context, ev bus.Event) error {
	if err := e.store.MarkPosted(ctx, ev.Post.ID, ev.At); err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	return e.appendEvent(ctx, ev, domain.EventPublished, map[string]any{
		"published_at": ev.At.Format(time.RFC3339),
	})
}

func (e *Engine) onRetrying(ctx context.Context, ev bus.Event) error {
	return e.appendEvent(ctx, ev, domain.EventRetry, map[string]any{
		"attempt": ev.Attempt,
		"error":   ev.Err.Error(),
	})
}

func (e *Engine) onFailed(ctx context.Context, ev bus.Event) error {
	if err := e.store.MarkFailed(ctx, ev.Post.ID, ev.Err.Error()); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return e.appendEvent(ctx, ev, domain.EventFailed, map[string]any{
		"attempts": ev.Attempt,
		"error":    ev.Err.Error(),
	})
}

func (e *Engine) appendEvent(ctx context.Context, ev bus.Event, typ domain.EventType, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	return e.store.AppendEvent(ctx, domain.EventRecord{
		PostID:    ev.Post.ID,
		Type:      typ,
		Payload:   raw,
		CreatedAt: ev.At,
	})
}
