// Package server exposes the scheduler and the task store over HTTP.
//
// Routes:
//
//	POST /run                       compile and run synchronously
//	POST /tasks                     queue a task
//	GET  /tasks/queue               tasks waiting or running
//	GET  /tasks                     history
//	GET  /tasks/{id}                one stored task
//	GET  /tasks/{id}/messages       discussion, optionally ?since=<unix ms>
//	POST /tasks/{id}/messages       add to the discussion
//	GET  /ws                        queue and history change notifications
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/taskvm/taskvm"
	"github.com/taskvm/taskvm/internal/scheduler"
	"github.com/taskvm/taskvm/internal/store"
)

const maxBodyBytes = 1 << 20

// Server serves the HTTP API.
type Server struct {
	sched   *scheduler.Scheduler
	store   store.Store
	log     zerolog.Logger
	runOpts []taskvm.Option
	hub     *hub
	router  chi.Router
}

// New builds the API. runOpts bound the programs executed by POST /run.
func New(sched *scheduler.Scheduler, st store.Store, logger zerolog.Logger, runOpts ...taskvm.Option) *Server {
	s := &Server{
		sched:   sched,
		store:   st,
		log:     logger.With().Str("component", "server").Logger(),
		runOpts: runOpts,
	}
	s.hub = newHub(s.log)
	s.hub.unsubscribe = sched.Subscribe(s.hub.broadcast)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Post("/run", s.handleRun)
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleHistory)
		r.Get("/queue", s.handleQueue)
		r.Get("/{id}", s.handleTask)
		r.Get("/{id}/messages", s.handleMessages)
		r.Post("/{id}/messages", s.handleAddMessage)
	})
	r.Get("/ws", s.hub.serveWS)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects every WebSocket client.
func (s *Server) Close() {
	s.hub.close()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type runRequest struct {
	Source string `json:"source"`
}

type submitRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, taskvm.CompileAndRun(r.Context(), req.Source, s.runOpts...))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	id, err := s.sched.Submit(req.Name, req.Source)
	switch {
	case errors.Is(err, scheduler.ErrQueueFull), errors.Is(err, scheduler.ErrStopped):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.log.Error().Err(err).Msg("failed to submit task")
		s.writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}
	s.writeJSON(w, http.StatusAccepted, submitResponse{ID: id})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sched.Queue())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be a unix timestamp in milliseconds")
			return
		}
		since = time.UnixMilli(ms).UTC()
	}
	msgs, err := s.store.Messages(r.Context(), chi.URLParam(r, "id"), since)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "username and text are required")
		return
	}
	msg := store.Message{
		TaskID:    chi.URLParam(r, "id"),
		Username:  req.Username,
		Text:      req.Text,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.AddMessage(r.Context(), msg); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Err(err).Msg("store failure")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to write response")
	}
}
