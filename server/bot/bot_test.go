package bot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/estatebot/plugin/ai/valuation"
	"github.com/hrygo/estatebot/server/finops"
	boterrors "github.com/hrygo/estatebot/server/internal/errors"
	"github.com/hrygo/estatebot/store/cache"
)

func newTestBot(t *testing.T, mutate func(*Opts)) (*Bot, *fakeSender, *fakeValuer) {
	t.Helper()
	sender := &fakeSender{}
	valuer := &fakeValuer{
		healthy: true,
		analyze: func(valuation.PropertyQuery) (*valuation.Valuation, error) {
			return sampleValuation(), nil
		},
	}
	opts := Opts{
		Client: sender,
		Valuer: valuer,
		Parser: fakeParser{query: valuation.PropertyQuery{
			Addresses: []string{"12 Main Street, Sydney"},
			QueryType: valuation.QuerySingle,
		}},
		Now: func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts), sender, valuer
}

func TestFreeTextValuation(t *testing.T) {
	b, sender, valuer := newTestBot(t, nil)

	require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, "What is 12 Main Street, Sydney worth?")))

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Markdown, "Analyzing property at:\n📍 12 Main Street, Sydney")
	assert.Contains(t, msgs[1].Markdown, "Property Valuation Report")
	assert.Contains(t, msgs[1].Markdown, "**Final estimate: $1.2M**")
	assert.Equal(t, int64(7), msgs[1].ChatID)

	// The processing message is removed once the report is ready.
	assert.Equal(t, []int64{1}, sender.deleted)
	assert.GreaterOrEqual(t, sender.actions, 1)

	require.Len(t, valuer.queries, 1)
	assert.Equal(t, "What is 12 Main Street, Sydney worth?", valuer.queries[0].RawMessage)
	assert.Equal(t, int64(1), b.Metrics().RequestTotal())
	assert.Equal(t, int64(0), b.Metrics().RequestFailed())
}

func TestFreeTextMultipleUsesCombinedFormat(t *testing.T) {
	b, sender, _ := newTestBot(t, func(o *Opts) {
		o.Parser = fakeParser{query: valuation.PropertyQuery{
			Addresses: []string{"12 Main Street, Sydney", "14 Main Street, Sydney"},
			QueryType: valuation.QueryMultiple,
		}}
	})

	require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, "both")))

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Markdown, "Analyzing 2 properties")
	assert.Contains(t, msgs[1].Markdown, "Combined Property Valuation")
}

func TestFreeTextRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Opts)
		want   string
	}{
		{
			name:   "NotAllowed",
			mutate: func(o *Opts) { o.AllowedUsers = []int64{1} },
			want:   "not authorized",
		},
		{
			name:   "RateLimited",
			mutate: func(o *Opts) { o.Limiter = denyAll{} },
			want:   "too quickly",
		},
		{
			name:   "NoAddress",
			mutate: func(o *Opts) { o.Parser = fakeParser{} },
			want:   "couldn't find any valid addresses",
		},
		{
			name: "InvalidAddress",
			mutate: func(o *Opts) {
				o.Parser = fakeParser{query: valuation.PropertyQuery{Addresses: []string{"1234"}, QueryType: valuation.QuerySingle}}
			},
			want: "don't appear to be valid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, sender, valuer := newTestBot(t, tt.mutate)

			require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, "hello")))

			require.Len(t, sender.messages(), 1)
			assert.Contains(t, sender.last(), tt.want)
			assert.Empty(t, valuer.queries)
		})
	}
}

func TestFreeTextAnalysisErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"Timeout", errors.Wrap(context.DeadlineExceeded, "agent"), "took too long"},
		{"LLM", &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}, "AI service is currently unavailable"},
		{"Other", errors.New("search exploded"), "**Error:** search exploded..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, sender, valuer := newTestBot(t, nil)
			valuer.analyze = func(valuation.PropertyQuery) (*valuation.Valuation, error) {
				return nil, tt.err
			}

			require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, "12 Main Street")))

			msgs := sender.messages()
			require.Len(t, msgs, 2)
			assert.Contains(t, msgs[1].Markdown, tt.want)
			assert.Equal(t, []int64{1}, sender.deleted)
			assert.Equal(t, int64(1), b.Metrics().RequestFailed())
		})
	}
}

func TestStatsShowsLLMUsage(t *testing.T) {
	usage := finops.NewCostMonitor(nil)
	usage.RecordUsage("gpt-4o", 1000, 1000)
	b, sender, _ := newTestBot(t, func(o *Opts) { o.Usage = usage })

	require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(1, "/stats")))

	assert.Contains(t, sender.last(), "LLM Usage:** 1 calls, 2000 tokens (~$0.0125)")
}

func TestUnknownCommandsKeepMetricsBounded(t *testing.T) {
	b, sender, _ := newTestBot(t, nil)
	ctx := context.Background()

	for i := range 200 {
		require.NoError(t, b.HandleUpdate(ctx, textUpdate(1, fmt.Sprintf("/x%d", i))))
	}
	require.NoError(t, b.HandleUpdate(ctx, textUpdate(1, "/stats")))

	assert.Equal(t, map[string]int64{"unknown": 200, "stats": 1}, b.Metrics().Commands())
	assert.Contains(t, sender.last(), "Commands:** stats 1, unknown 200")
	assert.Contains(t, sender.last(), "Requests Failed:** 0")
}

func TestCommands(t *testing.T) {
	info := &cache.Info{
		Enabled: true,
		Memory:  cache.MemoryInfo{Size: 3, MaxSize: 100, TTL: 24 * time.Hour},
		Disk:    cache.DiskInfo{Enabled: true, Size: 2, SizeBytes: 1024 * 1024, TTL: 7 * 24 * time.Hour},
		Stats:   cache.StatsSnapshot{Hits: 1, Misses: 1, HitRate: 50, TotalRequests: 2},
	}

	tests := []struct {
		name   string
		text   string
		valuer func(*fakeValuer)
		want   []string
	}{
		{name: "Start", text: "/start", want: []string{"Welcome to Real Estate Valuation Bot"}},
		{name: "Help", text: "/help", want: []string{"Available Commands", "/invalidate"}},
		{name: "Unknown", text: "/frobnicate", want: []string{"Available Commands"}},
		{name: "Healthy", text: "/health", want: []string{"✅ Bot is healthy and ready!"}},
		{
			name:   "Unhealthy",
			text:   "/health",
			valuer: func(v *fakeValuer) { v.healthy = false },
			want:   []string{"❌ Bot is experiencing issues"},
		},
		{
			name:   "Stats",
			text:   "/stats",
			valuer: func(v *fakeValuer) { v.info = info },
			want:   []string{"Requests Processed:** 0", "Hit Rate: 50.0%", "Memory Cache: 3/100", "Disk Cache: 2 files (1.00 MB)", "2025-03-01 10:00:00"},
		},
		{name: "StatsCacheOff", text: "/stats", want: []string{"Cache: Disabled"}},
		{
			name:   "Cache",
			text:   "/cache",
			valuer: func(v *fakeValuer) { v.info = info },
			want:   []string{"Cache Hits: 1", "Entries: 3/100", "TTL: 24 hours", "TTL: 7 days"},
		},
		{name: "CacheOff", text: "/cache", want: []string{"Cache is currently disabled."}},
		{
			name:   "ClearCache",
			text:   "/clearcache",
			valuer: func(v *fakeValuer) { v.cleared = cache.ClearResult{Memory: 4, Disk: 5} },
			want:   []string{"Memory entries: 4", "Disk entries: 5"},
		},
		{
			name:   "ClearCacheDisabled",
			text:   "/clearcache",
			valuer: func(v *fakeValuer) { v.clearErr = valuation.ErrCacheDisabled },
			want:   []string{"Cache clear failed: cache is not enabled"},
		},
		{
			name:   "Invalidate",
			text:   "/invalidate 12 Main St",
			valuer: func(v *fakeValuer) { v.removed = 2 },
			want:   []string{"Invalidated 2 cached valuation(s) for 12 Main St."},
		},
		{name: "InvalidateUsage", text: "/invalidate", want: []string{"Usage: /invalidate"}},
		{
			name:   "InvalidateDisabled",
			text:   "/invalidate 12 Main St",
			valuer: func(v *fakeValuer) { v.invErr = valuation.ErrCacheDisabled },
			want:   []string{"Cache is currently disabled."},
		},
		{
			name: "Estimate",
			text: "/estimate 12 Main Street, Sydney",
			valuer: func(v *fakeValuer) {
				v.quick = valuation.QuickEstimate{Estimate: "$1.2M", Confidence: 0.65, Success: true}
			},
			want: []string{"Quick Estimate** 📊", "12 Main Street, Sydney", "$1.2M", "65%"},
		},
		{
			name: "EstimateFailed",
			text: "/estimate 12 Main Street, Sydney",
			valuer: func(v *fakeValuer) {
				v.quick = valuation.QuickEstimate{Estimate: "Analysis failed", Error: "boom"}
			},
			want: []string{"**Error:** boom..."},
		},
		{name: "EstimateUsage", text: "/estimate", want: []string{"Usage: /estimate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, sender, valuer := newTestBot(t, nil)
			if tt.valuer != nil {
				tt.valuer(valuer)
			}

			require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, tt.text)))

			got := sender.last()
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestCacheCommandsRequireAccess(t *testing.T) {
	b, sender, _ := newTestBot(t, func(o *Opts) { o.AllowedUsers = []int64{1} })

	for _, text := range []string{"/cache", "/clearcache", "/invalidate 1 Main St", "/estimate 1 Main St"} {
		require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, text)))
		assert.Contains(t, sender.last(), "not authorized", text)
	}

	// Informational commands stay open.
	require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, "/help")))
	assert.Contains(t, sender.last(), "Available Commands")
}

func TestHandleUpdateIgnoresNonText(t *testing.T) {
	b, sender, _ := newTestBot(t, nil)

	require.NoError(t, b.HandleUpdate(context.Background(), textUpdate(7, "  ")))
	u := textUpdate(7, "x")
	u.Message = nil
	require.NoError(t, b.HandleUpdate(context.Background(), u))
	assert.Empty(t, sender.messages())
}

func TestCommandMenu(t *testing.T) {
	b, _, _ := newTestBot(t, nil)
	var names []string
	for _, c := range b.Commands() {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"start", "help", "estimate", "stats", "health", "cache", "clearcache", "invalidate"}, names)
}

func TestKeepTypingRefreshes(t *testing.T) {
	b, sender, _ := newTestBot(t, nil)
	b.typingInterval = 5 * time.Millisecond

	stop := b.keepTyping(context.Background(), 7)
	assert.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return sender.actions >= 3
	}, time.Second, time.Millisecond)
	stop()
}

func TestClassify(t *testing.T) {
	assert.True(t, boterrors.IsCode(classify(context.DeadlineExceeded), boterrors.ErrCodeTimeout))
	assert.True(t, boterrors.IsCode(classify(&openai.RequestError{HTTPStatusCode: 500}), boterrors.ErrCodeLLMUnavailable))
	assert.True(t, boterrors.IsCode(classify(errors.New("x")), boterrors.ErrCodeValuationFailed))

	coded := boterrors.CacheDisabled()
	assert.Same(t, coded, classify(coded))
}
