// Package server exposes the job lifecycle over HTTP: submit a run, poll it,
// and approve or deny it once it is ready for review.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/jobs"
	"github.com/communityforge/scout/internal/model"
)

// Server holds the HTTP handlers and their job manager.
type Server struct {
	manager *jobs.Manager
}

// New builds a Server around the given manager.
func New(manager *jobs.Manager) *Server {
	return &Server{manager: manager}
}

// Router assembles the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{id}", s.handleGet)
		r.Post("/{id}/approve", s.handleApprove)
		r.Post("/{id}/deny", s.handleDeny)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// submitRequest is the POST /jobs body.
type submitRequest struct {
	City     string `json:"city"`
	State    string `json:"state"`
	Category string `json:"category"`
	PerQuery int    `json:"perQuery"`
	MaxURLs  int    `json:"maxUrls"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.City == "" || req.State == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, "city, state, and category are required")
		return
	}

	job := s.manager.Submit(model.RunInput{
		City:     req.City,
		State:    req.State,
		Category: model.Category(req.Category),
		PerQuery: req.PerQuery,
		MaxURLs:  req.MaxURLs,
	})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// reviewRequest is the approve/deny body; the whole body is optional.
type reviewRequest struct {
	Reviewer string `json:"reviewer"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleReview(w, r, s.manager.Approve)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	s.handleReview(w, r, s.manager.Deny)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, act func(id, reviewer string) (model.Job, error)) {
	var req reviewRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	job, err := act(chi.URLParam(r, "id"), req.Reviewer)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case jobs.IsInvalidTransition(err):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "review failed")
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
