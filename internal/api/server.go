package api

import (
	"log"
	"net/http"

	"cellworlds/internal/account"
	"cellworlds/internal/game"
	"cellworlds/internal/pubsub"
	"cellworlds/internal/stats"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with the game websocket attached.
type Server struct {
	router      *chi.Mux
	hub         *ConnectionHub
	tokens      *TokenStore
	rateLimiter *IPRateLimiter
}

// ServerDeps are the collaborators the server wires together.
type ServerDeps struct {
	Store   account.Store
	Manager *game.Manager
	Config  ConfigProvider
	Bus     *pubsub.Hub
	Stats   *stats.Service
}

// NewServer creates a new API server with default production configuration.
//
// Construction opens no listeners and starts no workers beyond the rate
// limiter cleanup, so tests can build a server and use Router() with
// httptest directly.
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		hub:         NewConnectionHub(),
		tokens:      NewTokenStore(),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
	}

	socket := NewGameSocket(deps.Manager, s.hub, s.tokens, deps.Stats, deps.Config)

	s.router = NewRouter(RouterConfig{
		Store:       deps.Store,
		Tokens:      s.tokens,
		Manager:     deps.Manager,
		Config:      deps.Config,
		Bus:         deps.Bus,
		GameSocket:  socket,
		RateLimiter: s.rateLimiter,
	})

	return s
}

// Hub exposes the connection hub for out-of-band senders (elimination
// events, config broadcasts).
func (s *Server) Hub() *ConnectionHub {
	return s.hub
}

// Tokens exposes the session token store.
func (s *Server) Tokens() *TokenStore {
	return s.tokens
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving on addr. Blocks until the listener fails.
func (s *Server) Start(addr string) error {
	log.Printf("🌐 API server starting on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Stop shuts down background workers.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
