package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"postflow/internal/domain"
	"postflow/internal/engine"
)

type Server struct {
	r        *chi.Mux
	engine   *engine.Engine
	validate *validator.Validate
}

func NewServer(eng *engine.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, engine: eng, validate: validator.New()}

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/posts", s.schedulePost)
		r.Post("/posts/now", s.publishNow)
		r.Get("/posts", s.listPosts)
		r.Get("/posts/{id}", s.getPost)
		r.Delete("/posts/{id}", s.deletePost)
		r.Get("/analytics", s.analytics)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type scheduleReq struct {
	Content      string    `json:"content" validate:"required"`
	ScheduledFor time.Time `json:"scheduled_for" validate:"required"`
	Channel      string    `json:"channel" validate:"required"`
	Tags         []string  `json:"tags"`
}

type publishNowReq struct {
	Content string   `json:"content" validate:"required"`
	Channel string   `json:"channel" validate:"required"`
	Tags    []string `json:"tags"`
}

type idResp struct {
	ID string `json:"id"`
}

func (s *Server) schedulePost(w http.ResponseWriter, r *http.Request) {
	var req scheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.engine.Schedule(r.Context(), req.Content, req.ScheduledFor, domain.Channel(req.Channel), req.Tags)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResp{ID: id})
}

func (s *Server) publishNow(w http.ResponseWriter, r *http.Request) {
	var req publishNowReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.engine.PublishNow(r.Context(), req.Content, domain.Channel(req.Channel), req.Tags)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResp{ID: id})
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.engine.ListScheduled(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]postJSON, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.engine.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostJSON(p))
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := s.engine.DeleteScheduled(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !removed {
		http.Error(w, "post is not pending", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type analyticsResp struct {
	Stats  domain.Stats `json:"stats"`
	Events []eventJSON  `json:"events"`
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	postID := r.URL.Query().Get("post_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	stats, events, err := s.engine.Analytics(r.Context(), postID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := analyticsResp{Stats: stats, Events: make([]eventJSON, 0, len(events))}
	for _, ev := range events {
		out.Events = append(out.Events, toEventJSON(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type postJSON struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Channel     string   `json:"channel"`
	ScheduledAt string   `json:"scheduled_at"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags,omitempty"`
	RetryCount  int      `json:"retry_count"`
	CreatedAt   string   `json:"created_at"`
	PublishedAt *string  `json:"published_at,omitempty"`
	LastError   *string  `json:"last_error,omitempty"`
}

func toPostJSON(p domain.Post) postJSON {
	out := postJSON{
		ID:          p.ID,
		Content:     p.Content,
		Channel:     string(p.Channel),
		ScheduledAt: p.ScheduledAt.Format(time.RFC3339),
		Status:      string(p.Status),
		Tags:        p.Tags,
		RetryCount:  p.RetryCount,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		LastError:   p.LastError,
	}
	if p.PublishedAt != nil {
		s := p.PublishedAt.Format(time.RFC3339)
		out.PublishedAt = &s
	}
	return out
}

type eventJSON struct {
	ID        int64           `json:"id"`
	PostID    string          `json:"post_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at"`
	Content   string          `json:"content"`
	Channel   string          `json:"channel"`
	Status    string          `json:"status"`
}

func toEventJSON(ev domain.EventView) eventJSON {
	return eventJSON{
		ID:        ev.ID,
		PostID:    ev.PostID,
		Type:      string(ev.Type),
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		Content:   ev.Content,
		Channel:   string(ev.Channel),
		Status:    string(ev.Status),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
