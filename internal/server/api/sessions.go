// Package api provides HTTP API handlers for recorded PulseCam sessions.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/pulsecam/internal/store"
)

// DefaultLimit caps list responses when no limit is given.
const DefaultLimit = 100

// SessionHandler handles HTTP requests for session resources.
type SessionHandler struct {
	history store.History
}

// NewSessionHandler creates a new SessionHandler reading from h.
func NewSessionHandler(h store.History) *SessionHandler {
	return &SessionHandler{history: h}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Expected paths: /api/sessions, /api/sessions/{id} or
	// /api/sessions/{id}/estimates
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case path == "":
		h.list(w, limit)
	case len(parts) == 1:
		h.get(w, parts[0])
	case len(parts) == 2 && parts[1] == "estimates":
		h.estimates(w, parts[0], limit)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type sessionResponse struct {
	*store.Session
	Summary store.Summary `json:"summary"`
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

type listEstimatesResponse struct {
	SessionID string            `json:"session_id"`
	Estimates []*store.Estimate `json:"estimates"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, limit int) {
	sessions, err := h.history.ListSessions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// get handles GET /api/sessions/{id} and includes the BPM summary.
func (h *SessionHandler) get(w http.ResponseWriter, id string) {
	sess, err := h.history.GetSession(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	sum, err := h.history.Summarize(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize session")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Summary: sum})
}

// estimates handles GET /api/sessions/{id}/estimates.
func (h *SessionHandler) estimates(w http.ResponseWriter, id string, limit int) {
	estimates, err := h.history.ListEstimates(id, limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to list estimates")
		return
	}
	if estimates == nil {
		estimates = []*store.Estimate{}
	}
	writeJSON(w, http.StatusOK, listEstimatesResponse{SessionID: id, Estimates: estimates})
}
