package game

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotRepository persists world snapshots to disk off the tick path. A
// single worker goroutine drains a latest-wins queue: offering a snapshot for
// a world that already has one pending replaces it, so disk pressure never
// backs up into the runner.
type SnapshotRepository struct {
	dir string

	mu      sync.Mutex
	pending map[string]Snapshot
	wake    chan struct{}
	closed  bool
	done    chan struct{}
}

func NewSnapshotRepository(dir string) (*SnapshotRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	r := &SnapshotRepository{
		dir:     dir,
		pending: make(map[string]Snapshot),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go r.worker()
	return r, nil
}

// Offer queues a snapshot for persistence, replacing any pending snapshot
// for the same world. Never blocks.
func (r *SnapshotRepository) Offer(worldID string, snap Snapshot) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.pending[worldID] = snap
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close flushes pending snapshots and stops the worker.
func (r *SnapshotRepository) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	<-r.done
}

func (r *SnapshotRepository) worker() {
	defer close(r.done)
	for {
		r.mu.Lock()
		var worldID string
		var snap Snapshot
		found := false
		for id, s := range r.pending {
			worldID, snap, found = id, s, true
			delete(r.pending, id)
			break
		}
		closed := r.closed
		r.mu.Unlock()

		if found {
			r.save(worldID, snap)
			continue
		}
		if closed {
			return
		}
		<-r.wake
	}
}

// save writes the snapshot atomically: temp file in the same directory, then
// rename over the destination.
func (r *SnapshotRepository) save(worldID string, snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		snapshotSaveErrors.Inc()
		log.Printf("⚠️ Snapshot marshal failed for world %s: %v", worldID, err)
		return
	}

	dest := filepath.Join(r.dir, worldID+".json")
	tmp, err := os.CreateTemp(r.dir, worldID+"-*.tmp")
	if err != nil {
		snapshotSaveErrors.Inc()
		log.Printf("⚠️ Snapshot temp file failed for world %s: %v", worldID, err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		snapshotSaveErrors.Inc()
		log.Printf("⚠️ Snapshot write failed for world %s: %v", worldID, err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		snapshotSaveErrors.Inc()
		return
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		snapshotSaveErrors.Inc()
		log.Printf("⚠️ Snapshot rename failed for world %s: %v", worldID, err)
		return
	}
	snapshotSaves.Inc()
}

// Load reads the last persisted snapshot for a world.
func (r *SnapshotRepository) Load(worldID string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(filepath.Join(r.dir, worldID+".json"))
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(data, &snap)
	return snap, err
}
