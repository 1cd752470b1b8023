package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"postflow/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS posts (
  id TEXT PRIMARY KEY,
  content TEXT NOT NULL,
  channel TEXT NOT NULL,
  scheduled_at DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','posted','failed')) DEFAULT 'pending',
  tags TEXT NOT NULL DEFAULT '[]',
  retry_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL,
  published_at DATETIME,
  last_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_posts_due ON posts(status, scheduled_at, retry_count);
CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC);
CREATE TABLE IF NOT EXISTS post_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  post_id TEXT NOT NULL,
  type TEXT NOT NULL CHECK(type IN ('scheduled','published','failed','retry')),
  payload TEXT,
  created_at DATETIME NOT NULL,
  FOREIGN KEY(post_id) REFERENCES posts(id)
);
CREATE INDEX IF NOT EXISTS idx_post_events_post ON post_events(post_id, id DESC);
`
	_, err := db.Exec(schema)
	return err
}

// DefaultEventLimit caps QueryEvents when the caller passes no limit.
const DefaultEventLimit = 100

type Store interface {
	Create(ctx context.Context, p domain.Post) (string, error)
	Get(ctx context.Context, id string) (domain.Post, error)
	ListDue(ctx context.Context, now time.Time, maxRetries int) ([]domain.Post, error)
	ListAll(ctx context.Context) ([]domain.Post, error)
	MarkPosted(ctx context.Context, id string, publishedAt time.Time) error
	MarkRetry(ctx context.Context, id, errMsg string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Delete(ctx context.Context, id string) (bool, error)
	AppendEvent(ctx context.Context, ev domain.EventRecord) error
	QueryEvents(ctx context.Context, postID string, limit int) ([]domain.EventView, error)
	AggregateStats(ctx context.Context) (domain.Stats, error)
	EvictTerminal(ctx context.Context, before time.Time) (int, error)
}

type sqliteStore struct{ db *sql.DB }

func NewSQLite(db *sql.DB) Store { return &sqliteStore{db: db} }

const postColumns = `id,content,channel,scheduled_at,status,tags,retry_count,created_at,published_at,last_error`

func (s *sqliteStore) Create(ctx context.Context, p domain.Post) (string, error) {
	id := p.ID
	if id == "" {
		id = "pst_" + uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.StatusPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO posts (id,content,channel,scheduled_at,status,tags,retry_count,created_at)
VALUES (?,?,?,?,?,?,0,?)
`, id, p.Content, string(p.Channel), p.ScheduledAt.UTC(), string(p.Status), string(tags), p.CreatedAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return "", domain.ErrDuplicateID
		}
		return "", err
	}
	return id, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=?`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return domain.Post{}, domain.ErrNotFound
	}
	return p, err
}

func (s *sqliteStore) ListDue(ctx context.Context, now time.Time, maxRetries int) ([]domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+postColumns+` FROM posts
WHERE status='pending' AND scheduled_at <= ? AND retry_count < ?
ORDER BY scheduled_at ASC, id ASC`, now.UTC(), maxRetries)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

func (s *sqliteStore) ListAll(ctx context.Context) ([]domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

// MarkPosted is a no-op for posts already in a terminal state.
func (s *sqliteStore) MarkPosted(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE posts SET status='posted', published_at=? WHERE id=? AND status='pending'`,
		publishedAt.UTC(), id)
	return err
}

// MarkRetry bumps the retry count and records the error; status stays pending.
func (s *sqliteStore) MarkRetry(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE posts SET retry_count=retry_count+1, last_error=? WHERE id=? AND status='pending'`,
		errMsg, id)
	return err
}

// MarkFailed is the terminal failure transition; it carries the one extra
// retry-count increment that marks the exhausted attempt.
func (s *sqliteStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE posts SET status='failed', retry_count=retry_count+1, last_error=? WHERE id=? AND status='pending'`,
		errMsg, id)
	return err
}

// Delete removes a post and its events only while the post is still pending.
func (s *sqliteStore) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id=? AND status='pending'`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_events WHERE post_id=?`, id); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *sqliteStore) AppendEvent(ctx context.Context, ev domain.EventRecord) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var payload any
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO post_events (post_id,type,payload,created_at) VALUES (?,?,?,?)`,
		ev.PostID, string(ev.Type), payload, created.UTC())
	return err
}

func (s *sqliteStore) QueryEvents(ctx context.Context, postID string, limit int) ([]domain.EventView, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	q := `
SELECT e.id, e.post_id, e.type, e.payload, e.created_at, p.content, p.channel, p.status
FROM post_events e
JOIN posts p ON p.id = e.post_id`
	args := []any{}
	if postID != "" {
		q += ` WHERE e.post_id = ?`
		args = append(args, postID)
	}
	q += ` ORDER BY e.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.EventView
	for rows.Next() {
		var ev domain.EventView
		var payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.PostID, &ev.Type, &payload, &ev.CreatedAt, &ev.Content, &ev.Channel, &ev.Status); err != nil {
			return nil, err
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *sqliteStore) AggregateStats(ctx context.Context) (domain.Stats, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(status='pending'),0),
       COALESCE(SUM(status='posted'),0),
       COALESCE(SUM(status='failed'),0)
FROM posts`)
	var st domain.Stats
	err := row.Scan(&st.Total, &st.Pending, &st.Posted, &st.Failed)
	return st, err
}

// EvictTerminal removes posted/failed posts created before the cutoff,
// together with their events. Pending posts are never touched.
func (s *sqliteStore) EvictTerminal(ctx context.Context, before time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
DELETE FROM post_events WHERE post_id IN (
  SELECT id FROM posts WHERE status IN ('posted','failed') AND created_at < ?
)`, before.UTC())
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
DELETE FROM posts WHERE status IN ('posted','failed') AND created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanPost(row rowScanner) (domain.Post, error) {
	var p domain.Post
	var tags string
	var published sql.NullTime
	var lastErr sql.NullString
	err := row.Scan(&p.ID, &p.Content, &p.Channel, &p.ScheduledAt, &p.Status, &tags, &p.RetryCount, &p.CreatedAt, &published, &lastErr)
	if err != nil {
		return domain.Post{}, err
	}
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &p.Tags)
	}
	if published.Valid {
		t := published.Time
		p.PublishedAt = &t
	}
	if lastErr.Valid {
		s := lastErr.String
		p.LastError = &s
	}
	return p, nil
}

func collectPosts(rows *sql.Rows) ([]domain.Post, error) {
	defer rows.Close()
	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
