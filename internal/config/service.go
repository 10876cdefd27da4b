package config

import (
	"fmt"
	"log"
	"sync"

	"cellworlds/internal/account"
	"cellworlds/internal/game"
	"cellworlds/internal/pubsub"
)

// Broadcaster pushes a config-update payload to every connected client.
type Broadcaster func(cfg account.GameplayConfig)

// GameplayService owns the live gameplay configuration: it loads the stored
// value at startup, applies it to the world manager, and keeps both in sync
// with updates arriving on the config bus.
type GameplayService struct {
	store   account.Store
	manager *game.Manager
	hub     *pubsub.Hub

	mu        sync.RWMutex
	current   account.GameplayConfig
	broadcast Broadcaster

	sub  *pubsub.Subscription
	done chan struct{}
}

func NewGameplayService(store account.Store, manager *game.Manager, hub *pubsub.Hub) *GameplayService {
	return &GameplayService{
		store:   store,
		manager: manager,
		hub:     hub,
		done:    make(chan struct{}),
	}
}

// SetBroadcaster wires the client-facing fan-out. Called once the transport
// layer exists; updates arriving before that are applied but not announced.
func (s *GameplayService) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	s.broadcast = b
	s.mu.Unlock()
}

// Start fetches the stored config, applies it, and begins listening on the
// config bus. A failed initial load retries once after re-initializing the
// store, then surfaces the error.
func (s *GameplayService) Start() error {
	cfg, err := s.store.LoadGameplayConfig()
	if err != nil {
		log.Printf("⚠️ Gameplay config load failed, re-initializing store: %v", err)
		if initErr := s.store.Init(); initErr != nil {
			return fmt.Errorf("reinit account store: %w", initErr)
		}
		cfg, err = s.store.LoadGameplayConfig()
		if err != nil {
			return fmt.Errorf("load gameplay config: %w", err)
		}
	}

	s.apply(cfg)
	s.sub = s.hub.Subscribe(pubsub.ConfigChannel)
	go s.listen()
	log.Printf("⚙️ Gameplay config active: %.0fx%.0f, %d food, %.0f tps", cfg.Width, cfg.Height, cfg.FoodCount, cfg.TickRate)
	return nil
}

// Stop detaches from the config bus.
func (s *GameplayService) Stop() {
	if s.sub == nil {
		return
	}
	s.sub.Close()
	<-s.done
}

// Snapshot returns the current gameplay config.
func (s *GameplayService) Snapshot() account.GameplayConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *GameplayService) listen() {
	defer close(s.done)
	for msg := range s.sub.C {
		cfg, ok := msg.(account.GameplayConfig)
		if !ok {
			continue
		}
		s.apply(cfg)
		s.mu.RLock()
		broadcast := s.broadcast
		s.mu.RUnlock()
		if broadcast != nil {
			broadcast(cfg)
		}
		log.Printf("⚙️ Gameplay config updated: %.0fx%.0f, %d food, %.0f tps", cfg.Width, cfg.Height, cfg.FoodCount, cfg.TickRate)
	}
}

func (s *GameplayService) apply(cfg account.GameplayConfig) {
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	s.manager.UpdateDefaults(game.WorldConfig{
		Width:            cfg.Width,
		Height:           cfg.Height,
		TickRate:         cfg.TickRate,
		FoodCount:        cfg.FoodCount,
		SnapshotInterval: cfg.SnapshotInterval,
	})
}
