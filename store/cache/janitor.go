package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Janitor periodically removes expired cache entries.
type Janitor struct {
	cache    *PropertyCache
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor sweeping c every interval.
func NewJanitor(c *PropertyCache, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Janitor{cache: c, interval: interval}
}

// Start runs the sweep loop until Stop is called or ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.wg.Add(1)
	go j.cleanupLoop(ctx)
}

// Stop stops the loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}

func (j *Janitor) cleanupLoop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	res, err := j.cache.ClearExpired(ctx)
	if err != nil {
		slog.Warn("failed to clear expired cache entries", "error", err)
		return
	}
	if res.Memory > 0 || res.Disk > 0 {
		slog.Debug("cleared expired cache entries", "memory", res.Memory, "disk", res.Disk)
	}
}
