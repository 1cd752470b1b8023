package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"postflow/internal/domain"
)

func TestWebhookPublishSuccess(t *testing.T) {
	var got webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	err := wh.Publish(context.Background(), domain.Post{
		ID:      "pst_1",
		Content: "hello",
		Channel: domain.ChannelWebhook,
		Tags:    []string{"x"},
	})
	require.NoError(t, err)
	require.Equal(t, "pst_1", got.ID)
	require.Equal(t, "hello", got.Content)
	require.Equal(t, "webhook", got.Channel)
}

func TestWebhookPublishNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL)
	err := wh.Publish(context.Background(), domain.Post{ID: "pst_1", Channel: domain.ChannelWebhook})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, domain.ChannelWebhook, perr.Channel)
	require.Contains(t, perr.Error(), "429")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.Supports(domain.ChannelDemo))

	r.Register(domain.ChannelDemo, Noop{})
	r.Register(domain.ChannelTwitter, Noop{})

	p, ok := r.Resolve(domain.ChannelDemo)
	require.True(t, ok)
	require.NoError(t, p.Publish(context.Background(), domain.Post{ID: "pst_1", Channel: domain.ChannelDemo}))

	require.Equal(t, []domain.Channel{domain.ChannelDemo, domain.ChannelTwitter}, r.Channels())

	_, ok = r.Resolve(domain.Channel("telegraph"))
	require.False(t, ok)
}
