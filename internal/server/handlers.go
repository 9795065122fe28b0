package server

import (
	"net/http"

	"codedrop-go/internal/api"
)

// handleHealth reports database and object store health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.Success(w, map[string]any{
		"database": s.db.Health(r.Context()),
		"storage":  s.store.Health(r.Context()),
	})
}

// handleSweeperStatus exposes the cleanup scheduler's lifecycle and totals.
func (s *Server) handleSweeperStatus(w http.ResponseWriter, r *http.Request) {
	api.Success(w, s.sweeper.Status())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	api.Fail(w, api.NewError("NotFound", http.StatusNotFound, "no such route"))
}
