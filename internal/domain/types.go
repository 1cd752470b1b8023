package domain

import (
	"encoding/json"
	"time"
)

type PostStatus string

const (
	StatusPending PostStatus = "pending"
	StatusPosted  PostStatus = "posted"
	StatusFailed  PostStatus = "failed"
)

// Terminal reports whether no further transitions may leave the status.
func (s PostStatus) Terminal() bool { return s == StatusPosted || s == StatusFailed }

type Channel string

const (
	ChannelTwitter  Channel = "twitter"
	ChannelMastodon Channel = "mastodon"
	ChannelWebhook  Channel = "webhook"
	ChannelDemo     Channel = "demo"
)

// Post is a unit of schedulable content. All timestamps are UTC.
type Post struct {
	ID          string
	Content     string
	Channel     Channel
	ScheduledAt time.Time
	Status      PostStatus
	Tags        []string
	RetryCount  int
	CreatedAt   time.Time
	PublishedAt *time.Time
	LastError   *string
}

type EventType string

const (
	EventScheduled EventType = "scheduled"
	EventPublished EventType = "published"
	EventRetry     EventType = "retry"
	EventFailed    EventType = "failed"
)

// EventRecord is an immutable audit entry for one lifecycle transition.
type EventRecord struct {
	ID        int64
	PostID    string
	Type      EventType
	Payload   json.RawMessage
	CreatedAt time.Time
}

// EventView is an event joined with its post's display fields.
type EventView struct {
	EventRecord
	Content string
	Channel Channel
	Status  PostStatus
}

type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Posted  int `json:"posted"`
	Failed  int `json:"failed"`
}
