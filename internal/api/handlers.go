package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"cellworlds/internal/account"
	"cellworlds/internal/game"
	"cellworlds/internal/pubsub"

	"github.com/go-chi/chi/v5"
)

// handlers holds the dependencies shared by the HTTP endpoints.
type handlers struct {
	store   account.Store
	tokens  *TokenStore
	manager *game.Manager
	config  ConfigProvider
	bus     *pubsub.Hub
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// handleLogin exchanges credentials for a session token.
func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.store.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := h.tokens.Issue(Identity{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	})
	log.Printf("🔑 %s logged in", user.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: user.Username})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister creates a regular account.
func (h *handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.store.CreateUser(req.Username, req.Password, false)
	if err != nil {
		if errors.Is(err, account.ErrUserExists) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// handleGetConfig exposes the live gameplay configuration.
func (h *handlers) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Snapshot())
}

// handleListWorlds returns the world directory with live player counts.
func (h *handlers) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, h.manager.ListWorlds())
}

type createWorldRequest struct {
	Name string `json:"name"`
}

type createWorldResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleCreateWorld spins up a world seeded from the current defaults. The
// caller names the world; its id is a fresh opaque identifier.
func (h *handlers) handleCreateWorld(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(r); !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var req createWorldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "world name is required")
		return
	}

	info, err := h.manager.CreateWorld(game.NewWorldID(), game.WorldConfig{Name: req.Name})
	if err != nil {
		if errors.Is(err, game.ErrWorldExists) {
			writeError(w, http.StatusConflict, "world already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "world creation failed")
		return
	}
	writeJSON(w, http.StatusCreated, createWorldResponse{ID: info.ID, Name: info.Name})
}

// handleLeaderboard ranks a world's players by score.
func (h *handlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	worldID := chi.URLParam(r, "worldID")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := h.manager.Leaderboard(worldID, limit)
	if err != nil {
		writeError(w, http.StatusNotFound, "world not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleAdminGetConfig reads the stored gameplay config.
func (h *handlers) handleAdminGetConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	cfg, err := h.store.LoadGameplayConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "config load failed")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleAdminPatchConfig persists a config patch and publishes the full
// stored config on the config bus. The config service picks it up, applies
// it to every world and broadcasts the update to connected clients.
func (h *handlers) handleAdminPatchConfig(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var update account.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.store.UpdateGameplayConfig(update)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "config update failed")
		return
	}

	h.bus.Publish(pubsub.ConfigChannel, cfg)
	log.Printf("⚙️ Admin updated gameplay config")
	writeJSON(w, http.StatusOK, cfg)
}

// handleAdminSetActive bans or unbans a user.
func (h *handlers) handleAdminSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireAdmin(w, r) {
			return
		}
		username := chi.URLParam(r, "username")
		if err := h.store.SetUserActive(username, active); err != nil {
			if errors.Is(err, account.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, "user not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		if active {
			log.Printf("🔓 User %s unbanned", username)
		} else {
			log.Printf("🔒 User %s banned", username)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"is_active": active})
	}
}

// authenticate resolves the request token from the query string or the
// Authorization header.
func (h *handlers) authenticate(r *http.Request) (Identity, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		return Identity{}, false
	}
	return h.tokens.Resolve(token)
}

func (h *handlers) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	identity, ok := h.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return false
	}
	if !identity.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
