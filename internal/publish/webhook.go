package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"postflow/internal/domain"
)

// Webhook delivers posts as JSON to a fixed HTTP endpoint. Any non-2xx
// response counts as a failed attempt.
type Webhook struct {
	URL    string
	Client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

type webhookBody struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Channel     string   `json:"channel"`
	Tags        []string `json:"tags,omitempty"`
	ScheduledAt string   `json:"scheduled_at"`
}

func (w *Webhook) Publish(ctx context.Context, post domain.Post) error {
	body, err := json.Marshal(webhookBody{
		ID:          post.ID,
		Content:     post.Content,
		Channel:     string(post.Channel),
		Tags:        post.Tags,
		ScheduledAt: post.ScheduledAt.Format(time.RFC3339),
	})
	if err != nil {
		return &Error{Channel: post.Channel, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return &Error{Channel: post.Channel, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return &Error{Channel: post.Channel, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Channel: post.Channel,
			Cause:   fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, string(msg)),
		}
	}
	return nil
}
