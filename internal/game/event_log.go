package game

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	eventBufferSize    = 1024                   // Circular buffer size
	maxEventsPerSec    = 10000                  // Global rate limit
	batchFlushInterval = 100 * time.Millisecond // How often to flush
)

// loggedEvent is the JSONL record written per domain event.
type loggedEvent struct {
	Time    time.Time `json:"time"`
	WorldID string    `json:"world_id"`
	Event   Event     `json:"event"`
}

// EventLog appends domain events to a JSONL file off the tick path. The
// buffer is bounded and writes are rate limited, so a pathological burst of
// eliminations degrades to dropped log lines instead of a stalled runner.
type EventLog struct {
	buffer    [eventBufferSize]loggedEvent
	writeHead uint64 // atomic - producer position
	readHead  uint64 // consumer position, writer goroutine only

	limiter *rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

// NewEventLog creates a stopped event log.
func NewEventLog() *EventLog {
	return &EventLog{
		limiter:  rate.NewLimiter(maxEventsPerSec, maxEventsPerSec/10),
		stopChan: make(chan struct{}),
	}
}

// Start opens the output file and begins the async writer.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	el.file = file

	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()
	return nil
}

// Stop flushes and shuts the writer down.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit records an event. Returns false when rate limited, the buffer is
// full, or the log is stopped.
func (el *EventLog) Emit(worldID string, event Event) bool {
	if !el.running.Load() {
		return false
	}
	if !el.limiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	write := atomic.LoadUint64(&el.writeHead)
	read := atomic.LoadUint64(&el.readHead)
	if write-read >= eventBufferSize {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	el.buffer[write%eventBufferSize] = loggedEvent{
		Time:    time.Now(),
		WorldID: worldID,
		Event:   event,
	}
	atomic.AddUint64(&el.writeHead, 1)
	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// Stats reports totals for monitoring.
func (el *EventLog) Stats() (total, dropped uint64) {
	return atomic.LoadUint64(&el.totalCount), atomic.LoadUint64(&el.droppedCount)
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()
	ticker := time.NewTicker(batchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			el.flush()
			return
		case <-ticker.C:
			el.flush()
		}
	}
}

func (el *EventLog) flush() {
	read := atomic.LoadUint64(&el.readHead)
	write := atomic.LoadUint64(&el.writeHead)
	if read == write {
		return
	}

	el.fileMu.Lock()
	defer el.fileMu.Unlock()
	if el.file == nil {
		atomic.StoreUint64(&el.readHead, write)
		return
	}

	enc := json.NewEncoder(el.file)
	for ; read < write; read++ {
		enc.Encode(el.buffer[read%eventBufferSize])
	}
	atomic.StoreUint64(&el.readHead, write)
}
