package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cellworlds/internal/account"
	"cellworlds/internal/game"
	"cellworlds/internal/pubsub"
)

type staticConfig struct {
	cfg account.GameplayConfig
}

func (s staticConfig) Snapshot() account.GameplayConfig { return s.cfg }

type testEnv struct {
	store   *account.MemoryStore
	tokens  *TokenStore
	manager *game.Manager
	bus     *pubsub.Hub
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := account.NewMemoryStore()
	tokens := NewTokenStore()
	manager := game.NewManager(game.WorldConfig{
		Width:            1000,
		Height:           1000,
		TickRate:         200,
		FoodCount:        5,
		SnapshotInterval: 60,
	}, nil)
	t.Cleanup(manager.Shutdown)

	bus := pubsub.NewHub()
	router := NewRouter(RouterConfig{
		Store:   store,
		Tokens:  tokens,
		Manager: manager,
		Config:  staticConfig{cfg: account.GameplayConfig{Width: 1000, Height: 1000, TickRate: 30, FoodCount: 200, SnapshotInterval: 10}},
		Bus:     bus,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000,
			Burst:             1000,
			CleanupInterval:   time.Minute,
		},
		DisableLogging: true,
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testEnv{store: store, tokens: tokens, manager: manager, bus: bus, server: ts}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.store.CreateUser("alice", "hunter2", false)

	resp := env.postJSON(t, "/login", loginRequest{Username: "alice", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/login", loginRequest{Username: "alice", Password: "hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	body := decodeBody[loginResponse](t, resp)
	if body.Token == "" {
		t.Fatalf("empty token")
	}

	identity, ok := env.tokens.Resolve(body.Token)
	if !ok || identity.Username != "alice" {
		t.Errorf("token resolves to %+v", identity)
	}
}

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/register", registerRequest{Username: "carol", Password: "pw"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/register", registerRequest{Username: "carol", Password: "pw"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/login", loginRequest{Username: "carol", Password: "pw"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("login after register status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestWorldsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/worlds")
	if err != nil {
		t.Fatalf("GET /worlds: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	token := env.tokens.Issue(Identity{UserID: 1, Username: "alice"})
	env.manager.CreateWorld("main", game.WorldConfig{Name: "main"})

	resp, err = http.Get(env.server.URL + "/worlds?token=" + token)
	if err != nil {
		t.Fatalf("GET /worlds: %v", err)
	}
	worlds := decodeBody[[]game.WorldInfo](t, resp)
	if len(worlds) != 1 || worlds[0].ID != "main" || worlds[0].Name != "main" {
		t.Errorf("worlds = %+v", worlds)
	}
	if worlds[0].Players != 0 {
		t.Errorf("players = %d, want 0", worlds[0].Players)
	}
}

func TestCreateWorldEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokens.Issue(Identity{UserID: 1, Username: "alice"})

	resp := env.postJSON(t, "/worlds?token="+token, createWorldRequest{Name: "arena"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody[createWorldResponse](t, resp)
	if created.ID == "" || created.Name != "arena" {
		t.Errorf("created = %+v", created)
	}

	// Same name twice yields two distinct worlds, not a conflict.
	resp = env.postJSON(t, "/worlds?token="+token, createWorldRequest{Name: "arena"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second create status = %d", resp.StatusCode)
	}
	second := decodeBody[createWorldResponse](t, resp)
	if second.ID == created.ID {
		t.Errorf("world ids must be unique: %s", second.ID)
	}

	resp = env.postJSON(t, "/worlds?token="+token, createWorldRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	worlds := env.manager.ListWorlds()
	if len(worlds) != 2 {
		t.Errorf("worlds = %+v", worlds)
	}
}

func TestAdminConfigEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.tokens.Issue(Identity{UserID: 1, Username: "root", IsAdmin: true})
	userToken := env.tokens.Issue(Identity{UserID: 2, Username: "alice"})

	sub := env.bus.Subscribe(pubsub.ConfigChannel)
	defer sub.Close()

	patch := func(token string) *http.Response {
		body, _ := json.Marshal(map[string]any{"width": 3000, "food_count": 50})
		req, _ := http.NewRequest(http.MethodPatch, env.server.URL+"/admin/config?token="+token, bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PATCH /admin/config: %v", err)
		}
		return resp
	}

	resp := patch(userToken)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-admin patch status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = patch(adminToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin patch status = %d", resp.StatusCode)
	}
	cfg := decodeBody[account.GameplayConfig](t, resp)
	if cfg.Width != 3000 || cfg.FoodCount != 50 {
		t.Errorf("patched config = %+v", cfg)
	}
	if cfg.Height != account.DefaultHeight {
		t.Errorf("unpatched field changed: %+v", cfg)
	}

	select {
	case msg := <-sub.C:
		published, ok := msg.(account.GameplayConfig)
		if !ok || published.Width != 3000 {
			t.Errorf("published config = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Errorf("config not published on the bus")
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin/config?token="+adminToken, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /admin/config: %v", err)
	}
	stored := decodeBody[account.GameplayConfig](t, resp)
	if stored.Width != 3000 {
		t.Errorf("stored config = %+v", stored)
	}
}

func TestAdminBanUnban(t *testing.T) {
	env := newTestEnv(t)
	env.store.CreateUser("bob", "pw", false)
	adminToken := env.tokens.Issue(Identity{UserID: 1, Username: "root", IsAdmin: true})

	resp := env.postJSON(t, "/admin/users/bob/ban?token="+adminToken, struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ban status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	if _, err := env.store.Authenticate("bob", "pw"); err == nil {
		t.Errorf("banned user can still authenticate")
	}

	resp = env.postJSON(t, "/admin/users/bob/unban?token="+adminToken, struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unban status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	if _, err := env.store.Authenticate("bob", "pw"); err != nil {
		t.Errorf("unbanned user cannot authenticate: %v", err)
	}

	resp = env.postJSON(t, "/admin/users/ghost/ban?token="+adminToken, struct{}{})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user ban status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLeaderboardEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.manager.CreateWorld("main", game.WorldConfig{Name: "main"})
	env.manager.AddPlayer("main", game.NewPlayer("alice", ""))

	resp, err := http.Get(env.server.URL + "/worlds/main/leaderboard")
	if err != nil {
		t.Fatalf("GET leaderboard: %v", err)
	}
	entries := decodeBody[[]game.LeaderboardEntry](t, resp)
	if len(entries) != 1 || entries[0].Name != "alice" {
		t.Errorf("entries = %+v", entries)
	}

	resp, err = http.Get(env.server.URL + "/worlds/ghost/leaderboard")
	if err != nil {
		t.Fatalf("GET leaderboard: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown world status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPublicConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/config")
	if err != nil {
		t.Fatalf("GET /config: %v", err)
	}
	cfg := decodeBody[account.GameplayConfig](t, resp)
	if cfg.Width != 1000 || cfg.FoodCount != 200 {
		t.Errorf("config = %+v", cfg)
	}
}
