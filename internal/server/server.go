// Package server is the hearth HTTP API: JSON routes over the live core
// plus a websocket event feed.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hearthmind/hearth/internal/engine"
	"github.com/hearthmind/hearth/internal/notify"
)

// Server is the hearth HTTP API server.
type Server struct {
	engine  *engine.Engine
	hub     *notify.Hub
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over a running engine. hub may be nil; the
// events route then reports unavailable.
func New(eng *engine.Engine, hub *notify.Hub, version string) *Server {
	s := &Server{
		engine:  eng,
		hub:     hub,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.handleEvents)

		r.Get("/human", s.handleGetHuman)
		r.Post("/human/quotes", s.handleAddQuote)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Get("/personas", s.handleListPersonas)
		r.Post("/personas", s.handleAddPersona)
		r.Get("/personas/{personaID}", s.handleGetPersona)
		r.Put("/personas/{personaID}", s.handleUpdatePersona)
		r.Delete("/personas/{personaID}", s.handleDeletePersona)
		r.Post("/personas/{personaID}/archive", s.handleArchivePersona)
		r.Post("/personas/{personaID}/unarchive", s.handleUnarchivePersona)
		r.Post("/personas/{personaID}/chat", s.handleChat)
		r.Post("/personas/{personaID}/extract", s.handleExtract)
		r.Post("/personas/{personaID}/items/{itemID}/update", s.handleDirectUpdate)

		r.Get("/messages", s.handleListMessages)

		r.Get("/queue", s.handleQueueState)
		r.Post("/queue/pause", s.handleQueuePause)
		r.Post("/queue/resume", s.handleQueueResume)
		r.Post("/queue/abort", s.handleQueueAbort)
		r.Get("/queue/dead", s.handleDeadLetters)
		r.Post("/queue/dead/{requestID}/retry", s.handleRetryDeadLetter)

		r.Get("/checkpoints", s.handleListCheckpoints)
		r.Post("/checkpoints", s.handleCreateCheckpoint)
		r.Post("/checkpoints/{slot}/restore", s.handleRestoreCheckpoint)
		r.Delete("/checkpoints/{slot}", s.handleDeleteCheckpoint)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
