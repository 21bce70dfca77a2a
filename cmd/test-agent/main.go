// Command test-agent runs the valuation agent against a few sample messages
// with live LLM and search credentials. It bypasses Telegram and the cache.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hrygo/estatebot/internal/profile"
	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/ai/valuation"
	"github.com/hrygo/estatebot/plugin/search"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// 1. Load config
	log.Println("loading config...")
	prof := &profile.Profile{}
	if err := prof.FromFile(".env"); err != nil {
		log.Printf("no .env file, using environment: %v", err)
		prof.FromEnv()
	}

	// 2. Init LLM provider
	log.Println("initializing LLM provider...")
	cfg := ai.NewConfigFromProfile(prof)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid LLM config: %v", err)
	}
	provider := ai.NewProvider(cfg)

	// 3. Init search
	searcher := search.NewClient(prof.TavilyAPIKey)
	if !searcher.Enabled() {
		log.Println("TAVILY_API_KEY not set, tools will report search as unavailable")
	}

	// 4. Create parser and agent
	parser := valuation.NewParser(provider)
	agent := valuation.NewAgent(provider, valuation.NewTools(searcher))

	ctx := context.Background()

	fmt.Println("\n========================================")
	fmt.Println("  Valuation agent smoke test")
	fmt.Println("========================================")
	fmt.Println()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single property",
			input:    "What's 10 Downing Street, London worth?",
			expected: "one address, single query, an estimate with a range",
		},
		{
			name:     "adjacent properties",
			input:    "Value of 12 Main St, Springfield and 14 Main St, Springfield together",
			expected: "two addresses, multiple query, a combined estimate",
		},
		{
			name:     "comparison",
			input:    "Compare 1 Infinite Loop, Cupertino vs 1600 Amphitheatre Pkwy, Mountain View",
			expected: "two addresses, compare query",
		},
	}

	for i, test := range tests {
		fmt.Printf("\n[test %d/%d] %s\n", i+1, len(tests), test.name)
		fmt.Println("input:", test.input)
		fmt.Println("expected:", test.expected)

		q := parser.Parse(ctx, test.input)
		fmt.Println(valuation.Summary(q))
		if len(q.Addresses) == 0 {
			log.Println("no addresses parsed, skipping")
			continue
		}

		startTime := time.Now()
		v, err := agent.Run(ctx, valuation.BuildQuestion(q))
		duration := time.Since(startTime)
		if err != nil {
			log.Printf("test failed: %v\n", err)
			continue
		}

		fmt.Println("estimate:", v.FinalEstimate)
		fmt.Println("range:", v.PriceRange)
		fmt.Printf("confidence: %.2f\n", v.Confidence)
		fmt.Printf("took: %v\n", duration)
		fmt.Println("------------------------------------------------")
	}

	fmt.Println("\n========================================")
	fmt.Println("  done")
	fmt.Println("========================================")
}
