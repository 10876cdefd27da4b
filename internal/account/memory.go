package account

import (
	"crypto/hmac"
	"crypto/sha256"
	"sync"
	"time"
)

// Default gameplay configuration used until an admin changes it.
const (
	DefaultWidth            = 1000.0
	DefaultHeight           = 1000.0
	DefaultTickRate         = 30.0
	DefaultFoodCount        = 200
	DefaultSnapshotInterval = 10.0
)

type memoryUser struct {
	user         User
	passwordHash [32]byte
	stats        Stats
}

// MemoryStore keeps accounts and the gameplay config in process memory for
// the lifetime of the server. Passwords are stored as SHA-256 digests and
// compared in constant time.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*memoryUser
	nextID int
	config GameplayConfig
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.Init()
	return s
}

// Init resets nothing on repeat calls; it only fills in missing state so the
// config loader's re-init-and-retry path is harmless.
func (s *MemoryStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]*memoryUser)
	}
	if s.config.UpdatedAt.IsZero() {
		s.config = GameplayConfig{
			Width:            DefaultWidth,
			Height:           DefaultHeight,
			TickRate:         DefaultTickRate,
			FoodCount:        DefaultFoodCount,
			SnapshotInterval: DefaultSnapshotInterval,
			UpdatedAt:        time.Now(),
		}
	}
	return nil
}

func (s *MemoryStore) CreateUser(username, password string, isAdmin bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil, ErrUserExists
	}
	s.nextID++
	mu := &memoryUser{
		user: User{
			ID:       s.nextID,
			Username: username,
			IsAdmin:  isAdmin,
			IsActive: true,
		},
		passwordHash: sha256.Sum256([]byte(password)),
	}
	s.users[username] = mu
	u := mu.user
	return &u, nil
}

func (s *MemoryStore) Authenticate(username, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	hash := sha256.Sum256([]byte(password))
	if !hmac.Equal(hash[:], mu.passwordHash[:]) {
		return nil, ErrInvalidCredentials
	}
	if !mu.user.IsActive {
		return nil, ErrUserInactive
	}
	u := mu.user
	return &u, nil
}

func (s *MemoryStore) GetUser(username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := mu.user
	return &u, nil
}

func (s *MemoryStore) SetUserActive(username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	mu.user.IsActive = active
	return nil
}

func (s *MemoryStore) LoadGameplayConfig() (GameplayConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, nil
}

func (s *MemoryStore) UpdateGameplayConfig(update ConfigUpdate) (GameplayConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.Width != nil {
		s.config.Width = *update.Width
	}
	if update.Height != nil {
		s.config.Height = *update.Height
	}
	if update.TickRate != nil {
		s.config.TickRate = *update.TickRate
	}
	if update.FoodCount != nil {
		s.config.FoodCount = *update.FoodCount
	}
	if update.SnapshotInterval != nil {
		s.config.SnapshotInterval = *update.SnapshotInterval
	}
	s.config.UpdatedAt = time.Now()
	return s.config, nil
}

func (s *MemoryStore) IncrementUserCounters(username string, delta ProgressDelta) (*Stats, Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[username]
	if ok && mu.user.IsActive {
		mu.stats.Score += delta.Score
		mu.stats.FoodEaten += delta.FoodEaten
		mu.stats.CellsEaten += delta.CellsEaten
		mu.stats.SessionsPlayed += delta.SessionsPlayed
		mu.stats.WorldsExplored += delta.WorldsExplored
	}

	// Totals are recomputed on every write; the user set is small enough
	// that this stays off any hot path.
	var totals Totals
	for _, other := range s.users {
		totals.Score += other.stats.Score
		totals.FoodEaten += other.stats.FoodEaten
		totals.CellsEaten += other.stats.CellsEaten
		totals.SessionsPlayed += other.stats.SessionsPlayed
		totals.WorldsExplored += other.stats.WorldsExplored
	}

	if !ok || !mu.user.IsActive {
		return nil, totals, nil
	}
	stats := mu.stats
	return &stats, totals, nil
}
