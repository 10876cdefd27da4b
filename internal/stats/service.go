// Package stats turns end-of-session gameplay progress into persistent
// per-user counters and broadcast updates.
package stats

import (
	"log"
	"sync"

	"cellworlds/internal/account"
	"cellworlds/internal/pubsub"
)

// Update is the payload published on the stats channel after every write.
// Stats is nil when the user is unknown or banned; Totals is always present.
type Update struct {
	Username string         `json:"username"`
	Stats    *account.Stats `json:"stats,omitempty"`
	Totals   account.Totals `json:"totals"`
}

// Service serializes progress writes so publications come out in write
// order even when many sessions disconnect at once.
type Service struct {
	mu    sync.Mutex
	store account.Store
	hub   *pubsub.Hub
}

func NewService(store account.Store, hub *pubsub.Hub) *Service {
	return &Service{store: store, hub: hub}
}

// AddProgress persists a session's progress delta and publishes the updated
// stats. An all-zero delta is a no-op.
func (s *Service) AddProgress(username string, delta account.ProgressDelta) error {
	if delta.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, totals, err := s.store.IncrementUserCounters(username, delta)
	if err != nil {
		log.Printf("⚠️ Stats write failed for %s: %v", username, err)
		return err
	}

	s.hub.Publish(pubsub.StatsChannel, Update{
		Username: username,
		Stats:    stats,
		Totals:   totals,
	})
	return nil
}
