package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Config holds the configuration for the property cache.
type Config struct {
	Enabled         bool          // Master switch; false bypasses both tiers
	MemoryMaxItems  int           // Max items in the memory tier
	MemoryTTL       time.Duration // TTL for memory entries
	DiskDir         string        // Directory holding the disk tier database
	DiskTTL         time.Duration // TTL for disk entries
	EnableDisk      bool          // Enable the disk tier
	CleanupInterval time.Duration // Interval between expired entry sweeps
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MemoryMaxItems:  100,
		MemoryTTL:       24 * time.Hour,
		DiskDir:         "cache",
		DiskTTL:         7 * 24 * time.Hour,
		EnableDisk:      true,
		CleanupInterval: 10 * time.Minute,
	}
}

// PropertyCache caches valuation results in two tiers:
// - memory: fast, bounded by item count
// - disk: SQLite database, survives restarts (optional)
//
// Lookups check memory first; disk hits are promoted to memory.
type PropertyCache struct {
	cfg    Config
	memory *MemoryCache
	disk   *DiskCache
	stats  *Stats
	now    func() time.Time
	logger *slog.Logger
}

// Info describes the cache state for status reporting.
type Info struct {
	Enabled bool          `json:"enabled"`
	Memory  MemoryInfo    `json:"memory_cache"`
	Disk    DiskInfo      `json:"disk_cache"`
	Stats   StatsSnapshot `json:"statistics"`
}

// MemoryInfo describes the memory tier.
type MemoryInfo struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
}

// DiskInfo describes the disk tier.
type DiskInfo struct {
	Enabled   bool          `json:"enabled"`
	Dir       string        `json:"dir,omitempty"`
	Size      int           `json:"size"`
	SizeBytes int64         `json:"size_bytes"`
	TTL       time.Duration `json:"ttl"`
}

// SizeMB returns the disk size in megabytes, rounded to two decimals.
func (d DiskInfo) SizeMB() float64 {
	return math.Round(float64(d.SizeBytes)/(1024*1024)*100) / 100
}

// ClearResult reports how many entries a sweep removed per tier.
type ClearResult struct {
	Memory int `json:"memory_cleared"`
	Disk   int `json:"disk_cleared"`
}

// New creates the property cache. When cfg.Enabled is false no tier is
// created and every lookup misses.
func New(cfg Config) (*PropertyCache, error) {
	c := &PropertyCache{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	c.stats = newStats(c.now())
	if !cfg.Enabled {
		return c, nil
	}

	c.memory = NewMemoryCache(cfg.MemoryMaxItems, cfg.MemoryTTL)
	if cfg.EnableDisk {
		disk, err := OpenDiskCache(cfg.DiskDir, cfg.DiskTTL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create disk cache")
		}
		c.disk = disk
	}
	return c, nil
}

// Enabled reports whether caching is on.
func (c *PropertyCache) Enabled() bool { return c.cfg.Enabled }

// Config returns the configuration the cache was built with.
func (c *PropertyCache) Config() Config { return c.cfg }

// Get decodes the cached result for q into dst and reports whether it was
// found.
func (c *PropertyCache) Get(ctx context.Context, q Query, dst any) bool {
	if !c.cfg.Enabled {
		return false
	}
	key := Key(q)

	if raw, ok := c.memory.Get(key); ok {
		if err := json.Unmarshal(raw, dst); err == nil {
			c.stats.hit()
			c.logger.Debug("cache hit", "tier", "memory", "key", key)
			return true
		}
		c.memory.Delete(key)
	}

	if c.disk != nil {
		raw, expiresAt, ok, err := c.disk.Get(ctx, key)
		if err != nil {
			c.logger.Warn("disk cache lookup failed", "key", key, "error", err)
		}
		if ok {
			if err := json.Unmarshal(raw, dst); err == nil {
				c.stats.evicted(c.memory.SetUntil(key, q, raw, expiresAt))
				c.stats.hit()
				c.logger.Debug("cache hit", "tier", "disk", "key", key)
				return true
			}
			c.logger.Warn("removing undecodable cache entry", "key", key)
			if err := c.disk.Delete(ctx, key); err != nil {
				c.logger.Warn("failed to delete cache entry", "key", key, "error", err)
			}
		}
	}

	c.stats.miss()
	return false
}

// Set caches v for q in every enabled tier.
func (c *PropertyCache) Set(ctx context.Context, q Query, v any) error {
	if !c.cfg.Enabled {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode cache value")
	}
	key := Key(q)

	c.stats.evicted(c.memory.Set(key, q, raw))
	if c.disk != nil {
		if err := c.disk.Set(ctx, key, q, raw); err != nil {
			c.logger.Warn("failed to save to disk cache", "key", key, "error", err)
		}
	}
	c.stats.save()
	return nil
}

// InvalidateAddress removes every entry whose query mentions address and
// returns the number of distinct entries removed.
func (c *PropertyCache) InvalidateAddress(ctx context.Context, address string) (int, error) {
	if !c.cfg.Enabled {
		return 0, nil
	}
	removed := make(map[string]struct{})
	for _, key := range c.memory.InvalidateAddress(address) {
		removed[key] = struct{}{}
	}
	if c.disk != nil {
		keys, err := c.disk.InvalidateAddress(ctx, address)
		if err != nil {
			return len(removed), err
		}
		for _, key := range keys {
			removed[key] = struct{}{}
		}
	}
	c.logger.Info("invalidated cache entries", "address", address, "count", len(removed))
	return len(removed), nil
}

// ClearExpired removes expired entries from every tier.
func (c *PropertyCache) ClearExpired(ctx context.Context) (ClearResult, error) {
	var res ClearResult
	if !c.cfg.Enabled {
		return res, nil
	}
	res.Memory = c.memory.ClearExpired()
	if c.disk != nil {
		n, err := c.disk.ClearExpired(ctx)
		if err != nil {
			return res, err
		}
		res.Disk = n
	}
	return res, nil
}

// ClearAll removes every entry from every tier.
func (c *PropertyCache) ClearAll(ctx context.Context) (ClearResult, error) {
	var res ClearResult
	if !c.cfg.Enabled {
		return res, nil
	}
	res.Memory = c.memory.Clear()
	if c.disk != nil {
		n, err := c.disk.Clear(ctx)
		if err != nil {
			return res, err
		}
		res.Disk = n
	}
	c.logger.Info("cleared cache", "memory", res.Memory, "disk", res.Disk)
	return res, nil
}

// Stats returns a snapshot of the hit and miss counters.
func (c *PropertyCache) Stats() StatsSnapshot {
	return c.stats.Snapshot(c.now())
}

// Info reports the size of each tier together with the statistics.
func (c *PropertyCache) Info(ctx context.Context) (Info, error) {
	info := Info{
		Enabled: c.cfg.Enabled,
		Stats:   c.Stats(),
	}
	if !c.cfg.Enabled {
		return info, nil
	}
	info.Memory = MemoryInfo{
		Size:    c.memory.Len(),
		MaxSize: c.memory.MaxItems(),
		TTL:     c.memory.TTL(),
	}
	if c.disk != nil {
		count, size, err := c.disk.Stat(ctx)
		if err != nil {
			return info, err
		}
		info.Disk = DiskInfo{
			Enabled:   true,
			Dir:       c.disk.Dir(),
			Size:      count,
			SizeBytes: size,
			TTL:       c.disk.TTL(),
		}
	}
	return info, nil
}

// Close releases the disk tier.
func (c *PropertyCache) Close() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.Close()
}

// setClock replaces the time source of the cache and its tiers.
func (c *PropertyCache) setClock(now func() time.Time) {
	c.now = now
	if c.memory != nil {
		c.memory.now = now
	}
	if c.disk != nil {
		c.disk.now = now
	}
}
