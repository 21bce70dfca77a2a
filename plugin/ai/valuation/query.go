// Package valuation turns chat messages into property valuations: it extracts
// addresses, researches them with web search tools and asks the LLM for a
// structured estimate.
package valuation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/search"
	"github.com/hrygo/estatebot/store/cache"
)

// Query types.
const (
	QuerySingle   = "single"   // one property
	QueryMultiple = "multiple" // several properties sold together
	QueryCompare  = "compare"  // properties valued side by side
)

// PropertyQuery is a parsed user request.
type PropertyQuery struct {
	Addresses  []string `json:"addresses"`
	QueryType  string   `json:"query_type"`
	RawMessage string   `json:"raw_message"`
}

// CacheQuery returns the cacheable part of the query.
func (q PropertyQuery) CacheQuery() cache.Query {
	return cache.Query{Addresses: q.Addresses, QueryType: q.QueryType}
}

// Summary lists the addresses found for user confirmation.
func Summary(q PropertyQuery) string {
	if len(q.Addresses) == 0 {
		return "❌ No valid addresses found in your message."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📍 Found %d address(es):\n", len(q.Addresses))
	for i, addr := range q.Addresses {
		fmt.Fprintf(&b, "%d. %s\n", i+1, addr)
	}
	fmt.Fprintf(&b, "\n🔍 Query type: %s", titleCase(q.QueryType))
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// LLM is the chat capability the pipeline needs. *ai.Provider implements it.
type LLM interface {
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CompleteJSON(ctx context.Context, messages []openai.ChatCompletionMessage, schemaName string, schema *ai.JSONSchema, out any) error
	ChatJSON(ctx context.Context, system, user, schemaName string, schema *ai.JSONSchema, out any) error
	Ping(ctx context.Context) error
}

// Searcher runs web searches. *search.Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

var (
	_ LLM      = (*ai.Provider)(nil)
	_ Searcher = (*search.Client)(nil)
)
