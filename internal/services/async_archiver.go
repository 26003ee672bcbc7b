package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/irfndi/modelmux/internal/analytics"
)

// AsyncArchiver decouples archive writes from the routing path. Entries are
// buffered on a bounded queue and written by a small pool of workers; when
// the queue is full the entry is dropped rather than stalling a request.
type AsyncArchiver struct {
	inner        Archiver
	logger       *zap.Logger
	queue        chan analytics.RequestLogEntry
	writeTimeout time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	dropped atomic.Int64
}

// AsyncArchiverConfig defines queue and worker sizing.
type AsyncArchiverConfig struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
}

// DefaultAsyncArchiverConfig returns sensible defaults.
func DefaultAsyncArchiverConfig() AsyncArchiverConfig {
	return AsyncArchiverConfig{
		Workers:      2,
		QueueSize:    256,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAsyncArchiver wraps an archiver with a buffered write queue.
func NewAsyncArchiver(inner Archiver, cfg AsyncArchiverConfig, logger *zap.Logger) *AsyncArchiver {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultAsyncArchiverConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultAsyncArchiverConfig().QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultAsyncArchiverConfig().WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &AsyncArchiver{
		inner:        inner,
		logger:       logger,
		queue:        make(chan analytics.RequestLogEntry, cfg.QueueSize),
		writeTimeout: cfg.WriteTimeout,
	}

	for i := 0; i < cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}

	a.running = true
	return a
}

// ArchiveRequest enqueues an entry for a background write. It never blocks;
// a full queue drops the entry and reports the drop as an error. The read
// lock is held across the send so Stop cannot close the queue mid-enqueue.
func (a *AsyncArchiver) ArchiveRequest(ctx context.Context, entry analytics.RequestLogEntry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return fmt.Errorf("async archiver stopped")
	}

	select {
	case a.queue <- entry:
		return nil
	default:
		a.dropped.Add(1)
		return fmt.Errorf("archive queue full, entry %s dropped", entry.ID)
	}
}

// Stop drains the queue and waits for in-flight writes to finish.
func (a *AsyncArchiver) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return fmt.Errorf("async archiver not running")
	}
	a.running = false
	a.mu.Unlock()

	close(a.queue)
	a.wg.Wait()
	return nil
}

// QueueDepth returns the current number of queued entries.
func (a *AsyncArchiver) QueueDepth() int {
	return len(a.queue)
}

// Dropped returns how many entries were discarded on a full queue.
func (a *AsyncArchiver) Dropped() int64 {
	return a.dropped.Load()
}

// IsRunning reports whether the archiver accepts new entries.
func (a *AsyncArchiver) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// worker drains the queue until it is closed. Closing rather than
// cancelling guarantees queued entries are flushed on shutdown.
func (a *AsyncArchiver) worker() {
	defer a.wg.Done()

	for entry := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
		err := a.inner.ArchiveRequest(ctx, entry)
		cancel()
		if err != nil {
			a.logger.Warn("Async archive write failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		}
	}
}
