package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/estatebot/plugin/ai/timeout"
	"github.com/hrygo/estatebot/store/cache"
)

// ErrCacheDisabled is returned by cache maintenance calls when caching is off.
var ErrCacheDisabled = errors.New("cache is not enabled")

// Runner answers a valuation question. *Agent implements it.
type Runner interface {
	Run(ctx context.Context, question string) (*Valuation, error)
}

// QuickEstimate is a one-line estimate for a single address.
type QuickEstimate struct {
	Address    string  `json:"address"`
	Estimate   string  `json:"estimate"`
	Confidence float64 `json:"confidence"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

// Service runs valuations behind the property cache, bounding how many agent
// runs happen at once and collapsing identical in-flight queries.
type Service struct {
	runner Runner
	llm    LLM
	cache  *cache.PropertyCache
	sem    *semaphore.Weighted
	group  singleflight.Group
}

// NewService creates the valuation service. maxConcurrent bounds parallel
// agent runs.
func NewService(runner Runner, llm LLM, c *cache.PropertyCache, maxConcurrent int) *Service {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Service{
		runner: runner,
		llm:    llm,
		cache:  c,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Analyze returns the valuation for q, from cache when possible.
func (s *Service) Analyze(ctx context.Context, q PropertyQuery) (*Valuation, error) {
	cq := q.CacheQuery()

	var cached Valuation
	if s.cache != nil && s.cache.Get(ctx, cq, &cached) {
		slog.Info("cache hit for query", "addresses", q.Addresses)
		cached.Cached = true
		return &cached, nil
	}

	res, err, shared := s.group.Do(cache.Key(cq), func() (any, error) {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)

		v, err := s.runner.Run(ctx, BuildQuestion(q))
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, cq, v); err != nil {
				slog.Warn("failed to cache valuation", "error", err)
			}
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("shared in-flight valuation", "addresses", q.Addresses)
	}

	out := *res.(*Valuation)
	return &out, nil
}

// BuildQuestion phrases the agent question for a query.
func BuildQuestion(q PropertyQuery) string {
	switch {
	case q.QueryType == QueryMultiple && len(q.Addresses) == 2:
		return fmt.Sprintf("If I want to sell two houses %s and %s, what is the estimated price of the two houses when selling them together?",
			q.Addresses[0], q.Addresses[1])
	case q.QueryType == QueryCompare && len(q.Addresses) >= 2:
		return fmt.Sprintf("Compare the estimated values of %s and %s. What are their individual values and how do they differ?",
			q.Addresses[0], q.Addresses[1])
	case len(q.Addresses) >= 1:
		return fmt.Sprintf("What is the estimated price of %s today?", q.Addresses[0])
	default:
		return "I need a valid property address to provide an estimate."
	}
}

// QuickEstimate values a single address and reduces the answer to its first
// line.
func (s *Service) QuickEstimate(ctx context.Context, address string) QuickEstimate {
	v, err := s.Analyze(ctx, PropertyQuery{Addresses: []string{address}, QueryType: QuerySingle})
	if err != nil {
		return QuickEstimate{
			Address:  address,
			Estimate: "Analysis failed",
			Error:    err.Error(),
		}
	}

	estimate, _, _ := strings.Cut(strings.TrimSpace(v.FinalEstimate), "\n")
	if estimate == "" {
		estimate = "Estimate unavailable"
	}
	return QuickEstimate{
		Address:    address,
		Estimate:   estimate,
		Confidence: v.Confidence,
		Success:    true,
	}
}

// Health reports whether the LLM provider is reachable.
func (s *Service) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout.HealthCheckTimeout)
	defer cancel()
	if err := s.llm.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		return false
	}
	return true
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.cache.Enabled()
}

// CacheInfo returns the cache state, or nil when caching is off.
func (s *Service) CacheInfo(ctx context.Context) (*cache.Info, error) {
	if !s.cacheEnabled() {
		return nil, nil
	}
	info, err := s.cache.Info(ctx)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ClearCache removes every cached valuation.
func (s *Service) ClearCache(ctx context.Context) (cache.ClearResult, error) {
	if !s.cacheEnabled() {
		return cache.ClearResult{}, ErrCacheDisabled
	}
	return s.cache.ClearAll(ctx)
}

// InvalidateAddress removes cached valuations mentioning address.
func (s *Service) InvalidateAddress(ctx context.Context, address string) (int, error) {
	if !s.cacheEnabled() {
		return 0, ErrCacheDisabled
	}
	return s.cache.InvalidateAddress(ctx, address)
}
