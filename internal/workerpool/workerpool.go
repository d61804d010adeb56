// Package workerpool is the bounded goroutine pool the dispatcher and the
// registry/topic fanout submit work to, so the transport's I/O goroutine
// never blocks on a handler (§5). Grounded on cyw0ng95-go4pack's
// pkg/common/worker package.
package workerpool

import (
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/nexusrpc/corerpc/internal/logging"
)

// Job is a unit of work submitted to the pool.
type Job func()

var (
	pool     *ants.Pool
	initOnce sync.Once
	mu       sync.RWMutex
	stats    struct {
		Submitted uint64
		Completed uint64
		LastErr   string
		LastDur   time.Duration
	}
)

// Init initializes the pool with the given capacity. Safe to call more
// than once; later calls are ignored.
func Init(size int) error {
	var err error
	initOnce.Do(func() {
		pool, err = ants.NewPool(size, ants.WithNonblocking(false))
	})
	return err
}

// Submit enqueues a job for asynchronous execution, initializing a
// default-sized pool on first use if Init was never called.
func Submit(j Job) error {
	if pool == nil {
		if err := Init(64); err != nil {
			return err
		}
	}
	mu.Lock()
	stats.Submitted++
	mu.Unlock()
	log := logging.WithComponent("workerpool")
	return pool.Submit(func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("job panicked")
				mu.Lock()
				stats.LastErr = "panic"
				mu.Unlock()
			}
			mu.Lock()
			stats.Completed++
			stats.LastDur = time.Since(start)
			mu.Unlock()
		}()
		j()
	})
}

// Stats reports a point-in-time snapshot for admin introspection.
func Stats() map[string]any {
	mu.RLock()
	defer mu.RUnlock()
	cap_, running, free := 0, 0, 0
	if pool != nil {
		cap_, running, free = pool.Cap(), pool.Running(), pool.Free()
	}
	return map[string]any{
		"capacity":         cap_,
		"running":          running,
		"free":             free,
		"submitted":        stats.Submitted,
		"completed":        stats.Completed,
		"last_error":       stats.LastErr,
		"last_duration_ms": stats.LastDur.Milliseconds(),
	}
}
