// Package api provides the REST API for refine-service.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ternarybob/refine/internal/config"
	"github.com/ternarybob/refine/pkg/archive"
	"github.com/ternarybob/refine/pkg/engine"
	"github.com/ternarybob/refine/pkg/session"
)

// EngineFactory builds a fresh engine for one session.
type EngineFactory func() (*engine.Engine, error)

// Server represents the API server.
type Server struct {
	cfg       *config.Config
	router    chi.Router
	store     session.Store
	archive   *archive.Archive
	newEngine EngineFactory

	// One engine per session keeps the iteration phase alive across
	// requests within this process.
	mu      sync.Mutex
	engines map[string]*engine.Engine
}

// NewServer creates a new API server. The archive may be nil when
// search is disabled.
func NewServer(cfg *config.Config, store session.Store, arch *archive.Archive, factory EngineFactory) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		archive:   arch,
		newEngine: factory,
		engines:   make(map[string]*engine.Engine),
	}

	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health and version endpoints
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	// API routes
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/process", s.handleProcess)
			r.Post("/modify", s.handleModify)
			r.Post("/accept", s.handleAccept)
			r.Post("/reject", s.handleReject)
			r.Post("/edit", s.handleEdit)
			r.Post("/end", s.handleEnd)
		})
	})

	r.Post("/search", s.handleSearch)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// engineFor returns the engine attached to the given session, creating
// and loading one on first use.
func (s *Server) engineFor(id string) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.engines[id]; ok {
		return e, nil
	}

	e, err := s.newEngine()
	if err != nil {
		return nil, err
	}
	if _, err := e.LoadSession(id); err != nil {
		return nil, err
	}

	s.engines[id] = e
	return e, nil
}

// dropEngine detaches a session's engine, typically after it ended.
func (s *Server) dropEngine(id string) {
	s.mu.Lock()
	delete(s.engines, id)
	s.mu.Unlock()
}
