package api

import (
	"net/http"

	"cellworlds/internal/account"
	"cellworlds/internal/game"
	"cellworlds/internal/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Store:   store,
//	    Tokens:  tokens,
//	    Manager: manager,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Store is the account backend (required)
	Store account.Store

	// Tokens is the session token store (required)
	Tokens *TokenStore

	// Manager is the world manager (required)
	Manager *game.Manager

	// Config provides the live gameplay configuration (required)
	Config ConfigProvider

	// Bus is the in-process message hub used by the admin endpoints (required)
	Bus *pubsub.Hub

	// GameSocket handles game sessions. If nil the /ws route is omitted,
	// which keeps plain HTTP tests free of websocket plumbing.
	GameSocket *GameSocket

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses the default origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE - it has no side effects:
//   - No goroutines are started beyond the rate limiter cleanup
//   - No network listeners are opened
//
// This makes it safe to use in tests with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	// CORS configuration
	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &handlers{
		store:   cfg.Store,
		tokens:  cfg.Tokens,
		manager: cfg.Manager,
		config:  cfg.Config,
		bus:     cfg.Bus,
	}

	// Account and directory routes
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
	r.Get("/config", h.handleGetConfig)
	r.Get("/worlds", h.handleListWorlds)
	r.Post("/worlds", h.handleCreateWorld)
	r.Get("/worlds/{worldID}/leaderboard", h.handleLeaderboard)

	// Admin routes (token must belong to an admin account)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/config", h.handleAdminGetConfig)
		r.Patch("/config", h.handleAdminPatchConfig)
		r.Post("/users/{username}/ban", h.handleAdminSetActive(false))
		r.Post("/users/{username}/unban", h.handleAdminSetActive(true))
	})

	// Game socket
	if cfg.GameSocket != nil {
		r.Get("/ws/world/{world_id}", cfg.GameSocket.Handle)
	}

	// Liveness probe for load balancers; the debug server carries the
	// richer health and metrics surface.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
