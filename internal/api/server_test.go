package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.EnsureSchema(db))

	reg := publish.NewRegistry()
	reg.Register(domain.ChannelDemo, publish.Noop{})

	eng := engine.New(store.NewSQLite(db), bus.New(), reg)
	srv := httptest.NewServer(NewServer(eng))
	t.Cleanup(srv.Close)
	return srv, eng
}

func postJSONBody(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestSchedulePostAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSONBody(t, srv.URL+"/api/posts", map[string]any{
		"content":       "hello",
		"scheduled_for": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"channel":       "demo",
		"tags":          []string{"launch"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	got, err := http.Get(srv.URL + "/api/posts/" + created.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)

	var body struct {
		ID      string   `json:"id"`
		Content string   `json:"content"`
		Status  string   `json:"status"`
		Tags    []string `json:"tags"`
	}
	require.NoError(t, json.NewDecoder(got.Body).Decode(&body))
	require.Equal(t, created.ID, body.ID)
	require.Equal(t, "hello", body.Content)
	require.Equal(t, "pending", body.Status)
	require.Equal(t, []string{"launch"}, body.Tags)
}

func TestScheduleValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	// Missing content fails struct validation.
	resp := postJSONBody(t, srv.URL+"/api/posts", map[string]any{
		"scheduled_for": time.Now().UTC().Format(time.RFC3339),
		"channel":       "demo",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown channel fails engine validation.
	resp = postJSONBody(t, srv.URL+"/api/posts", map[string]any{
		"content":       "hello",
		"scheduled_for": time.Now().UTC().Format(time.RFC3339),
		"channel":       "myspace",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPostNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/posts/pst_missing")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletePost(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSONBody(t, srv.URL+"/api/posts", map[string]any{
		"content":       "hello",
		"scheduled_for": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"channel":       "demo",
	})
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	del, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/posts/"+created.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	// Second delete: the post is gone.
	delResp, err = http.DefaultClient.Do(del)
	require.NoError(t, err)
	delResp.Body.Close()
	require.Equal(t, http.StatusNotFound, delResp.StatusCode)
}

func TestDeletePostedPostConflicts(t *testing.T) {
	srv, eng := newTestServer(t)

	id, err := eng.PublishNow(context.Background(), "hello", domain.ChannelDemo, nil)
	require.NoError(t, err)
	eng.Attempt(context.Background(), id)

	del, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/posts/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListPosts(t *testing.T) {
	srv, eng := newTestServer(t)

	for i := 0; i < 3; i++ {
		_, err := eng.Schedule(context.Background(), fmt.Sprintf("post %d", i), time.Now().UTC().Add(time.Hour), domain.ChannelDemo, nil)
		require.NoError(t, err)
	}

	resp, err := http.Get(srv.URL + "/api/posts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var posts []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posts))
	require.Len(t, posts, 3)
}

func TestAnalytics(t *testing.T) {
	srv, eng := newTestServer(t)

	id, err := eng.PublishNow(context.Background(), "hello", domain.ChannelDemo, nil)
	require.NoError(t, err)
	eng.Attempt(context.Background(), id)

	resp, err := http.Get(srv.URL + "/api/analytics?post_id=" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Stats  domain.Stats `json:"stats"`
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, domain.Stats{Total: 1, Posted: 1}, body.Stats)
	require.Len(t, body.Events, 2)
	require.Equal(t, "published", body.Events[0].Type)
	require.Equal(t, "scheduled", body.Events[1].Type)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
