package maintenance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"postflow/internal/bus"
	"postflow/internal/domain"
	"postflow/internal/engine"
	"postflow/internal/publish"
	"postflow/internal/store"
)

func newTestJobs(t *testing.T, cfg Config) (*Jobs, store.Store, *engine.Engine) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.EnsureSchema(db))

	st := store.NewSQLite(db)
	reg := publish.NewRegistry()
	reg.Register(domain.ChannelDemo, publish.Noop{})
	eng := engine.New(st, bus.New(), reg)
	return New(eng, st, cfg), st, eng
}

func TestRunEvictionRemovesOldTerminalOnly(t *testing.T) {
	jobs, st, _ := newTestJobs(t, Config{Retention: 30 * 24 * time.Hour})
	ctx := context.Background()
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)

	_, err := st.Create(ctx, domain.Post{
		ID: "pst_old_posted", Content: "x", Channel: domain.ChannelDemo,
		ScheduledAt: old, Status: domain.StatusPending, CreatedAt: old,
	})
	require.NoError(t, err)
	require.NoError(t, st.MarkPosted(ctx, "pst_old_posted", old))

	_, err = st.Create(ctx, domain.Post{
		ID: "pst_old_pending", Content: "x", Channel: domain.ChannelDemo,
		ScheduledAt: old, Status: domain.StatusPending, CreatedAt: old,
	})
	require.NoError(t, err)

	jobs.RunEviction()

	_, err = st.Get(ctx, "pst_old_posted")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = st.Get(ctx, "pst_old_pending")
	require.NoError(t, err)
}

func TestRunSeedSchedulesThroughEngine(t *testing.T) {
	jobs, st, _ := newTestJobs(t, Config{
		Retention:   30 * 24 * time.Hour,
		SeedContent: "Daily check-in",
		SeedChannel: domain.ChannelDemo,
	})
	ctx := context.Background()

	jobs.RunSeed()

	posts, err := st.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "Daily check-in", posts[0].Content)
	require.Equal(t, domain.ChannelDemo, posts[0].Channel)
	require.Equal(t, domain.StatusPending, posts[0].Status)
	require.Equal(t, []string{"daily-seed"}, posts[0].Tags)

	// The seed goes through the ordinary path, audit trail included.
	events, err := st.QueryEvents(ctx, posts[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventScheduled, events[0].Type)
}

func TestStartRegistersCronEntries(t *testing.T) {
	jobs, _, _ := newTestJobs(t, Config{
		Retention:   30 * 24 * time.Hour,
		SeedContent: "Daily check-in",
		SeedChannel: domain.ChannelDemo,
	})
	require.NoError(t, jobs.Start())
	defer jobs.Stop()
	require.Len(t, jobs.cron.Entries(), 2)
}
