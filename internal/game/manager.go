package game

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrWorldNotFound is returned for operations on a world id the manager does
// not know, including worlds torn down after a runner panic.
var ErrWorldNotFound = errors.New("world not found")

// ErrWorldExists is returned when creating a world whose id is taken.
var ErrWorldExists = errors.New("world already exists")

// EventListener receives domain events drained from a world's tick. Listeners
// run on a per-world delivery goroutine in tick order; a listener that blocks
// for long stretches only delays later events, never the tick loop.
type EventListener func(worldID string, event Event)

// Subscription delivers world snapshots to one consumer. The channel has
// capacity 1 and the runner replaces a pending snapshot instead of blocking,
// so a slow consumer always wakes to the freshest state.
type Subscription struct {
	C chan Snapshot

	once   sync.Once
	cancel func()
}

// Close detaches the subscription from its world. Safe to call more than
// once and after the world is gone.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// worldContext pairs a WorldState with its runner plumbing. The runner
// goroutine is the only mutator of the state; everything else goes through
// the command channel.
type worldContext struct {
	id    string
	state *WorldState

	commands chan command
	events   chan []Event
	stop     chan struct{}
	done     chan struct{}

	subMu  sync.Mutex
	subs   map[*Subscription]chan Snapshot
	closed bool

	playerCount atomic.Int64

	// configMu guards configCopy, the directory's view of the world config.
	// The runner refreshes it after applying commands.
	configMu   sync.RWMutex
	configCopy WorldConfig
}

func (wc *worldContext) config() WorldConfig {
	wc.configMu.RLock()
	defer wc.configMu.RUnlock()
	return wc.configCopy
}

func (wc *worldContext) storeConfig(config WorldConfig) {
	wc.configMu.Lock()
	wc.configCopy = config
	wc.configMu.Unlock()
}

type command struct {
	apply func(*WorldState)
	done  chan struct{}
}

// WorldInfo is the directory listing entry for a world. Config is for
// in-process callers and stays off the wire.
type WorldInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`

	Config WorldConfig `json:"-"`
}

// NewWorldID returns a fresh opaque world identifier.
func NewWorldID() string {
	return newID()
}

// Manager owns the world directory. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	worlds   map[string]*worldContext
	defaults WorldConfig

	listenerMu sync.RWMutex
	listeners  []EventListener

	snapshots *SnapshotRepository

	shutdownOnce sync.Once
}

// NewManager builds a manager that seeds new worlds from defaults and hands
// periodic snapshots to repo. repo may be nil to disable persistence.
func NewManager(defaults WorldConfig, repo *SnapshotRepository) *Manager {
	return &Manager{
		worlds:    make(map[string]*worldContext),
		defaults:  defaults,
		snapshots: repo,
	}
}

// RegisterEventListener adds a listener for domain events from every world.
func (m *Manager) RegisterEventListener(listener EventListener) {
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, listener)
	m.listenerMu.Unlock()
}

// CreateWorld spins up a world and its runner goroutine. Zero or negative
// config fields fall back to the manager defaults.
func (m *Manager) CreateWorld(id string, config WorldConfig) (WorldInfo, error) {
	if config.Width <= 0 {
		config.Width = m.defaults.Width
	}
	if config.Height <= 0 {
		config.Height = m.defaults.Height
	}
	if config.TickRate <= 0 {
		config.TickRate = m.defaults.TickRate
	}
	if config.FoodCount <= 0 {
		config.FoodCount = m.defaults.FoodCount
	}
	if config.SnapshotInterval <= 0 {
		config.SnapshotInterval = m.defaults.SnapshotInterval
	}

	state := NewWorldState(config)
	state.PopulateFood()

	wc := &worldContext{
		id:       id,
		state:    state,
		commands: make(chan command, 64),
		events:   make(chan []Event, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		subs:     make(map[*Subscription]chan Snapshot),
	}
	wc.storeConfig(config)

	m.mu.Lock()
	if _, ok := m.worlds[id]; ok {
		m.mu.Unlock()
		return WorldInfo{}, ErrWorldExists
	}
	m.worlds[id] = wc
	worldGauge.Inc()
	m.mu.Unlock()

	go m.run(wc)
	go m.deliverEvents(wc)
	log.Printf("🌍 World %s created (%.0fx%.0f @ %.0f tps)", id, config.Width, config.Height, config.TickRate)
	return WorldInfo{ID: id, Name: config.Name, Config: config}, nil
}

// ListWorlds returns directory entries for every live world.
func (m *Manager) ListWorlds() []WorldInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]WorldInfo, 0, len(m.worlds))
	for _, wc := range m.worlds {
		config := wc.config()
		infos = append(infos, WorldInfo{
			ID:      wc.id,
			Name:    config.Name,
			Players: int(wc.playerCount.Load()),
			Config:  config,
		})
	}
	return infos
}

// WorldExists reports whether the world id is live.
func (m *Manager) WorldExists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.worlds[id]
	return ok
}

func (m *Manager) world(id string) (*worldContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wc, ok := m.worlds[id]
	if !ok {
		return nil, ErrWorldNotFound
	}
	return wc, nil
}

// do posts a mutation to the world runner and waits until it has been
// applied between ticks. Returns ErrWorldNotFound if the world dies first.
func (m *Manager) do(worldID string, apply func(*WorldState)) error {
	wc, err := m.world(worldID)
	if err != nil {
		return err
	}
	cmd := command{apply: apply, done: make(chan struct{})}
	select {
	case wc.commands <- cmd:
	case <-wc.done:
		return ErrWorldNotFound
	}
	select {
	case <-cmd.done:
		return nil
	case <-wc.done:
		return ErrWorldNotFound
	}
}

// AddPlayer spawns the player's first cell and returns it.
func (m *Manager) AddPlayer(worldID string, player *Player) (*Cell, error) {
	var cell *Cell
	err := m.do(worldID, func(w *WorldState) {
		cell = w.AddPlayer(player)
	})
	return cell, err
}

// RemovePlayer drops the player and all their cells. The synchronous
// round-trip means the caller may read the player's counters afterward
// without racing the runner.
func (m *Manager) RemovePlayer(worldID, playerID string) error {
	return m.do(worldID, func(w *WorldState) {
		w.RemovePlayer(playerID)
	})
}

// SetTarget steers all of a player's cells toward target.
func (m *Manager) SetTarget(worldID, playerID string, target Vec2) error {
	return m.do(worldID, func(w *WorldState) {
		w.SetTarget(playerID, target)
	})
}

// SplitPlayer requests a split for the player's largest cell.
func (m *Manager) SplitPlayer(worldID, playerID string) error {
	return m.do(worldID, func(w *WorldState) {
		w.SplitPlayer(playerID)
	})
}

// Leaderboard ranks the world's players by score at the current tick.
func (m *Manager) Leaderboard(worldID string, limit int) ([]LeaderboardEntry, error) {
	var snap Snapshot
	if err := m.do(worldID, func(w *WorldState) {
		snap = w.Snapshot()
	}); err != nil {
		return nil, err
	}
	return BuildLeaderboard(snap, limit), nil
}

// UpdateDefaults replaces the template used for future worlds and applies
// the new dimensions to every live world between its ticks.
func (m *Manager) UpdateDefaults(defaults WorldConfig) {
	m.mu.Lock()
	m.defaults = defaults
	worlds := make([]*worldContext, 0, len(m.worlds))
	for _, wc := range m.worlds {
		worlds = append(worlds, wc)
	}
	m.mu.Unlock()

	for _, wc := range worlds {
		id := wc.id
		if err := m.do(id, func(w *WorldState) {
			w.ApplyConfig(defaults.Width, defaults.Height, defaults.TickRate, defaults.FoodCount, defaults.SnapshotInterval)
		}); err != nil {
			log.Printf("⚠️ Config update skipped for world %s: %v", id, err)
		}
	}
}

// Subscribe attaches a snapshot consumer to a world.
func (m *Manager) Subscribe(worldID string) (*Subscription, error) {
	wc, err := m.world(worldID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Snapshot, 1)
	sub := &Subscription{C: ch}
	sub.cancel = func() {
		wc.subMu.Lock()
		if _, ok := wc.subs[sub]; ok {
			delete(wc.subs, sub)
			close(ch)
		}
		wc.subMu.Unlock()
	}

	wc.subMu.Lock()
	if wc.closed {
		wc.subMu.Unlock()
		return nil, ErrWorldNotFound
	}
	wc.subs[sub] = ch
	wc.subMu.Unlock()
	return sub, nil
}

// Shutdown stops every runner and waits for them to exit.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		worlds := make([]*worldContext, 0, len(m.worlds))
		for _, wc := range m.worlds {
			worlds = append(worlds, wc)
		}
		m.mu.Unlock()

		for _, wc := range worlds {
			close(wc.stop)
		}
		for _, wc := range worlds {
			<-wc.done
		}
		if m.snapshots != nil {
			m.snapshots.Close()
		}
	})
}

// run is the world runner: the sole mutator of the world state. Commands
// are drained between ticks so a tick never sees a half-applied mutation.
func (m *Manager) run(wc *worldContext) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("💥 World %s runner panicked: %v", wc.id, r)
			runnerPanics.Inc()
		}
		m.teardown(wc)
		close(wc.events)
		close(wc.done)
	}()

	last := time.Now()
	lastPersist := time.Now()
	for {
		select {
		case <-wc.stop:
			return
		default:
		}

		m.drainCommands(wc)

		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		tickStart := time.Now()
		wc.state.Tick(dt)
		tickDuration.Observe(time.Since(tickStart).Seconds())

		wc.playerCount.Store(int64(wc.state.PlayerCount()))
		m.dispatchEvents(wc)

		snap := wc.state.Snapshot()
		m.fanOut(wc, snap)

		if m.snapshots != nil {
			persistEvery := time.Duration(wc.state.Config.SnapshotInterval * float64(time.Second))
			if persistEvery > 0 && now.Sub(lastPersist) >= persistEvery {
				m.snapshots.Offer(wc.id, snap)
				lastPersist = now
			}
		}

		interval := time.Second / time.Duration(wc.state.Config.TickRate)
		if interval <= 0 {
			interval = time.Second / 30
		}
		select {
		case <-wc.stop:
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) drainCommands(wc *worldContext) {
	for {
		select {
		case cmd := <-wc.commands:
			cmd.apply(wc.state)
			wc.playerCount.Store(int64(wc.state.PlayerCount()))
			wc.storeConfig(wc.state.Config)
			close(cmd.done)
		default:
			return
		}
	}
}

// dispatchEvents hands the tick's events to the delivery goroutine. The
// runner never runs listeners itself; a full delivery queue sheds the batch
// so a stalled listener cannot back up into the tick loop.
func (m *Manager) dispatchEvents(wc *worldContext) {
	events := wc.state.PopEvents()
	if len(events) == 0 {
		return
	}
	select {
	case wc.events <- events:
	default:
		eventsDropped.Add(float64(len(events)))
		log.Printf("⚠️ World %s dropped %d events: listeners too slow", wc.id, len(events))
	}
}

// deliverEvents runs listener callbacks off the runner goroutine, preserving
// the order the ticks produced them. It exits when the runner closes the
// event channel.
func (m *Manager) deliverEvents(wc *worldContext) {
	for batch := range wc.events {
		m.listenerMu.RLock()
		listeners := m.listeners
		m.listenerMu.RUnlock()
		for _, event := range batch {
			for _, listener := range listeners {
				listener(wc.id, event)
			}
		}
	}
}

// fanOut pushes the snapshot to every subscriber without blocking. When a
// subscriber still holds the previous snapshot, that one is dropped and
// replaced with the fresh one.
func (m *Manager) fanOut(wc *worldContext, snap Snapshot) {
	wc.subMu.Lock()
	for _, ch := range wc.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
				snapshotsDropped.Inc()
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	wc.subMu.Unlock()
}

// teardown removes a dead world from the directory and closes every
// subscription so consumers observe the shutdown.
func (m *Manager) teardown(wc *worldContext) {
	m.mu.Lock()
	if _, ok := m.worlds[wc.id]; ok {
		delete(m.worlds, wc.id)
		worldGauge.Dec()
	}
	m.mu.Unlock()

	wc.subMu.Lock()
	wc.closed = true
	for sub, ch := range wc.subs {
		delete(wc.subs, sub)
		close(ch)
	}
	wc.subMu.Unlock()

	// Fail commands posted after the runner stopped draining.
	for {
		select {
		case cmd := <-wc.commands:
			_ = cmd
		default:
			return
		}
	}
}
