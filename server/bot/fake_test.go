package bot

import (
	"context"
	"sync"
	"time"

	"github.com/hrygo/estatebot/plugin/ai/valuation"
	"github.com/hrygo/estatebot/server/telegram"
	"github.com/hrygo/estatebot/store/cache"
)

type sentMessage struct {
	ChatID   int64
	Markdown string
}

type fakeSender struct {
	mu      sync.Mutex
	nextID  int64
	sent    []sentMessage
	deleted []int64
	actions int
}

func (f *fakeSender) SendMarkdown(_ context.Context, chatID int64, markdown string) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Markdown: markdown})
	return &telegram.Message{MessageID: f.nextID, Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeSender) DeleteMessage(_ context.Context, _, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSender) SendChatAction(context.Context, int64, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions++
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeSender) last() string {
	msgs := f.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Markdown
}

type fakeValuer struct {
	mu       sync.Mutex
	queries  []valuation.PropertyQuery
	analyze  func(valuation.PropertyQuery) (*valuation.Valuation, error)
	quick    valuation.QuickEstimate
	healthy  bool
	info     *cache.Info
	cleared  cache.ClearResult
	clearErr error
	removed  int
	invErr   error
}

func (f *fakeValuer) Analyze(_ context.Context, q valuation.PropertyQuery) (*valuation.Valuation, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.analyze(q)
}

func (f *fakeValuer) QuickEstimate(_ context.Context, address string) valuation.QuickEstimate {
	q := f.quick
	q.Address = address
	return q
}

func (f *fakeValuer) Health(context.Context) bool { return f.healthy }

func (f *fakeValuer) CacheInfo(context.Context) (*cache.Info, error) { return f.info, nil }

func (f *fakeValuer) ClearCache(context.Context) (cache.ClearResult, error) {
	return f.cleared, f.clearErr
}

func (f *fakeValuer) InvalidateAddress(context.Context, string) (int, error) {
	return f.removed, f.invErr
}

type fakeParser struct {
	query valuation.PropertyQuery
}

func (f fakeParser) Parse(_ context.Context, message string) valuation.PropertyQuery {
	q := f.query
	q.RawMessage = message
	return q
}

type denyAll struct{}

func (denyAll) Allow(int64) bool { return false }

func sampleValuation() *valuation.Valuation {
	return &valuation.Valuation{
		PropertyDetails:      "- 3 bedroom house\n- 600 sqm block",
		ComparableSales:      "10 Main St sold for $1.1M\n14 Main St sold for $1.3M",
		NeighborhoodAnalysis: "Median price $1.2M\nGood schools nearby\nQuiet streets",
		MarketAdjustments:    "No adjustments",
		PriceAnalysis:        "Priced in line with comparables",
		PriceRange:           "$1.1M - $1.3M",
		FinalEstimate:        "Final estimate: $1.2M\nBased on recent sales",
		Confidence:           0.85,
	}
}

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func textUpdate(userID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 100,
			From:      &telegram.User{ID: userID, FirstName: "Test"},
			Chat:      telegram.Chat{ID: userID, Type: "private"},
			Text:      text,
		},
	}
}
