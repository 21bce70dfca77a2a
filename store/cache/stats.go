package cache

import (
	"math"
	"sync/atomic"
	"time"
)

// Stats tracks cache effectiveness. Counters are safe for concurrent use.
type Stats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	saves     atomic.Int64
	evictions atomic.Int64
	startTime time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Saves         int64         `json:"saves"`
	Evictions     int64         `json:"evictions"`
	HitRate       float64       `json:"hit_rate"`
	TotalRequests int64         `json:"total_requests"`
	StartTime     time.Time     `json:"start_time"`
	Uptime        time.Duration `json:"uptime"`
}

func newStats(now time.Time) *Stats {
	return &Stats{startTime: now}
}

func (s *Stats) hit() { s.hits.Add(1) }
func (s *Stats) miss() { s.misses.Add(1) }
func (s *Stats) save() { s.saves.Add(1) }
func (s *Stats) evicted(n int) { s.evictions.Add(int64(n)) }

// TotalRequests returns hits plus misses.
func (s *Stats) TotalRequests() int64 { return s.hits.Load() + s.misses.Load() }

// HitRate returns the percentage of lookups served from cache, rounded to
// two decimals.
func (s *Stats) HitRate() float64 {
	total := s.TotalRequests()
	if total == 0 {
		return 0
	}
	return math.Round(float64(s.hits.Load())/float64(total)*10000) / 100
}

// Snapshot copies the counters.
func (s *Stats) Snapshot(now time.Time) StatsSnapshot {
	return StatsSnapshot{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		Saves:         s.saves.Load(),
		Evictions:     s.evictions.Load(),
		HitRate:       s.HitRate(),
		TotalRequests: s.TotalRequests(),
		StartTime:     s.startTime,
		Uptime:        now.Sub(s.startTime),
	}
}
