// Package publish holds the per-channel delivery adapters.
package publish

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"postflow/internal/domain"
)

// Publisher attempts one delivery of a post to its channel.
type Publisher interface {
	Publish(ctx context.Context, post domain.Post) error
}

// Error is an adapter failure. It drives the retry state machine and is
// never surfaced raw to the HTTP layer.
type Error struct {
	Channel domain.Channel
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Channel, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Registry maps channels to their adapters. A channel absent from the
// registry is unknown to the engine and rejected at schedule time.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Channel]Publisher
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.Channel]Publisher)}
}

func (r *Registry) Register(ch domain.Channel, p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[ch] = p
}

func (r *Registry) Resolve(ch domain.Channel) (Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.adapters[ch]
	return p, ok
}

func (r *Registry) Supports(ch domain.Channel) bool {
	_, ok := r.Resolve(ch)
	return ok
}

func (r *Registry) Channels() []domain.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chs := make([]domain.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		chs = append(chs, ch)
	}
	sort.Slice(chs, func(i, j int) bool { return chs[i] < chs[j] })
	return chs
}
