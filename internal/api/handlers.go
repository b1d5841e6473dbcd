package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ternarybob/refine/pkg/archive"
	"github.com/ternarybob/refine/pkg/evaluate"
	"github.com/ternarybob/refine/pkg/llm"
	"github.com/ternarybob/refine/pkg/modify"
	"github.com/ternarybob/refine/pkg/session"
)

// version is set via -ldflags at build time
var version = "dev"

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}

// Response types

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	InitialPrompt string `json:"initial_prompt"`
	GoalQuery     string `json:"goal_query,omitempty"`
}

// SessionResponse wraps a session together with its engine phase.
type SessionResponse struct {
	Session *session.Session `json:"session"`
	Phase   string           `json:"phase"`
}

// IterationResponse is returned by process.
type IterationResponse struct {
	Iteration *session.Iteration `json:"iteration"`
	Phase     string             `json:"phase"`
}

// SuggestionResponse is returned by modify.
type SuggestionResponse struct {
	Suggestion *session.Suggestion `json:"suggestion"`
	Phase      string              `json:"phase"`
}

// EditRequest is the request body for a manual prompt edit.
type EditRequest struct {
	Prompt string `json:"prompt"`
}

// EndRequest is the request body for ending a session.
type EndRequest struct {
	Status string `json:"status"`
}

// SearchRequest is the request body for archive search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []archive.Result `json:"results"`
	Query   string           `json:"query"`
	Total   int              `json:"total"`
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: version,
		Service: "refine-service",
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	e, err := s.newEngine()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	sess, err := e.StartSession(req.InitialPrompt, req.GoalQuery)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.mu.Lock()
	s.engines[sess.ID] = e
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, SessionResponse{Session: sess, Phase: e.Phase().String()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := s.store.Load(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	phase := "idle"
	s.mu.Lock()
	if e, ok := s.engines[id]; ok {
		phase = e.Phase().String()
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, SessionResponse{Session: sess, Phase: phase})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	e, err := s.engineFor(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	it, err := e.ProcessCurrentPrompt(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IterationResponse{Iteration: it, Phase: e.Phase().String()})
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	e, err := s.engineFor(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	sug, err := e.RequestModification(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SuggestionResponse{Suggestion: sug, Phase: e.Phase().String()})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, true)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, false)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, accept bool) {
	e, err := s.engineFor(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if accept {
		err = e.AcceptSuggestion()
	} else {
		err = e.RejectSuggestion()
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{Session: e.Session(), Phase: e.Phase().String()})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	e, err := s.engineFor(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := e.ManualEdit(req.Prompt); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{Session: e.Session(), Phase: e.Phase().String()})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req EndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	status := session.Status(req.Status)
	if !status.Valid() || !status.IsTerminal() {
		writeError(w, http.StatusBadRequest, "Status must be completed or aborted")
		return
	}

	id := chi.URLParam(r, "id")
	e, err := s.engineFor(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := e.End(status); err != nil {
		writeEngineError(w, err)
		return
	}
	s.dropEngine(id)

	sess, err := s.store.Load(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{Session: sess, Phase: "idle"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "Archive search is disabled")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	results, err := s.archive.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Query:   req.Query,
		Total:   len(results),
	})
}

// writeEngineError maps domain errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case session.IsNotFound(err):
		status = http.StatusNotFound
	case session.IsValidation(err):
		status = http.StatusBadRequest
	default:
		var genErr *llm.GenerationError
		var parseErr *evaluate.ParseError
		var modErr *modify.Error
		if errors.As(err, &genErr) || errors.As(err, &parseErr) || errors.As(err, &modErr) {
			status = http.StatusBadGateway
		} else {
			status = http.StatusInternalServerError
		}
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
