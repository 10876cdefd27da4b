// Package account holds the user and gameplay-config store contract. The
// game server only needs the handful of operations below; a relational
// backend would satisfy the same interface.
package account

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already taken")
	ErrUserInactive       = errors.New("user is inactive")
)

// User is an account record. The password never leaves the store.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive bool   `json:"is_active"`
}

// Stats are the per-user lifetime counters.
type Stats struct {
	Score          float64 `json:"score"`
	FoodEaten      int     `json:"food_eaten"`
	CellsEaten     int     `json:"cells_eaten"`
	SessionsPlayed int     `json:"sessions_played"`
	WorldsExplored int     `json:"worlds_explored"`
}

// Totals aggregate counters across all users.
type Totals struct {
	Score          float64 `json:"score"`
	FoodEaten      int     `json:"food_eaten"`
	CellsEaten     int     `json:"cells_eaten"`
	SessionsPlayed int     `json:"sessions_played"`
	WorldsExplored int     `json:"worlds_explored"`
}

// ProgressDelta is one session's worth of gameplay progress. Sessions fire a
// sessions/worlds delta on join and a score/food/cells delta on exit.
type ProgressDelta struct {
	Score          float64 `json:"score"`
	FoodEaten      int     `json:"food_eaten"`
	CellsEaten     int     `json:"cells_eaten"`
	SessionsPlayed int     `json:"sessions_played"`
	WorldsExplored int     `json:"worlds_explored"`
}

// IsZero reports whether the delta carries no progress at all.
func (d ProgressDelta) IsZero() bool {
	return d.Score == 0 && d.FoodEaten == 0 && d.CellsEaten == 0 &&
		d.SessionsPlayed == 0 && d.WorldsExplored == 0
}

// GameplayConfig is the stored world-defaults record.
type GameplayConfig struct {
	Width            float64   `json:"width"`
	Height           float64   `json:"height"`
	TickRate         float64   `json:"tick_rate"`
	FoodCount        int       `json:"food_count"`
	SnapshotInterval float64   `json:"snapshot_interval"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ConfigUpdate patches individual fields of the gameplay config. Nil fields
// keep their stored value.
type ConfigUpdate struct {
	Width            *float64 `json:"width,omitempty"`
	Height           *float64 `json:"height,omitempty"`
	TickRate         *float64 `json:"tick_rate,omitempty"`
	FoodCount        *int     `json:"food_count,omitempty"`
	SnapshotInterval *float64 `json:"snapshot_interval,omitempty"`
}

// Store is the account backend contract.
type Store interface {
	// Init prepares the backend. Safe to call more than once.
	Init() error

	// CreateUser registers a user. Returns ErrUserExists on duplicates.
	CreateUser(username, password string, isAdmin bool) (*User, error)

	// Authenticate checks credentials. Inactive users fail with
	// ErrUserInactive even on a password match.
	Authenticate(username, password string) (*User, error)

	// GetUser looks a user up by name.
	GetUser(username string) (*User, error)

	// SetUserActive flips the activation flag (ban / unban).
	SetUserActive(username string, active bool) error

	// LoadGameplayConfig returns the stored world defaults.
	LoadGameplayConfig() (GameplayConfig, error)

	// UpdateGameplayConfig applies a patch and returns the full stored
	// config with UpdatedAt refreshed.
	UpdateGameplayConfig(update ConfigUpdate) (GameplayConfig, error)

	// IncrementUserCounters adds a progress delta to the user's stats and
	// returns the new stats plus the recomputed aggregate totals. An
	// unknown or inactive user yields nil stats and untouched totals.
	IncrementUserCounters(username string, delta ProgressDelta) (*Stats, Totals, error)
}
