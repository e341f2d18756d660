package cache

import (
	"context"
	"sync"
	"time"
)

// StartGC prunes the cache every interval with the given strategies until the
// returned stop func is called. Stop is safe to call more than once and blocks
// until the collector goroutine has exited.
//
//	stop := manager.StartGC(time.Hour, PruneOlderThan(7*24*time.Hour))
//	defer stop()
func (m *Manager) StartGC(interval time.Duration, strategies ...PruneStrategy) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.Prune(ctx, strategies...); err != nil {
					m.logger.Warn(ctx, "background prune failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
