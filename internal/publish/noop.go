package publish

import (
	"context"

	"github.com/rs/zerolog/log"

	"postflow/internal/domain"
)

// Noop is the explicit success adapter for channels without a real
// integration. Registering it is a configuration decision; a channel
// never succeeds silently just because nothing handles it.
type Noop struct{}

func (Noop) Publish(_ context.Context, post domain.Post) error {
	log.Debug().
		Str("post_id", post.ID).
		Str("channel", string(post.Channel)).
		Msg("no-op delivery")
	return nil
}
