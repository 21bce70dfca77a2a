package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/ai/timeout"
)

// Valuation is the structured result of an agent run.
type Valuation struct {
	PropertyDetails      string  `json:"property_details"`
	ComparableSales      string  `json:"comparable_sales"`
	NeighborhoodAnalysis string  `json:"neighborhood_analysis"`
	MarketAdjustments    string  `json:"market_adjustments"`
	PriceAnalysis        string  `json:"price_analysis"`
	PriceRange           string  `json:"price_range"`
	FinalEstimate        string  `json:"final_estimate"`
	Confidence           float64 `json:"confidence"`

	// Cached is set when the result was served from cache.
	Cached bool `json:"-"`
}

var valuationSchema = ai.Object(map[string]*ai.JSONSchema{
	"property_details":      ai.String("Property characteristics found: size, bed/bath, lot size, age, type, condition"),
	"comparable_sales":      ai.String("3-5 recent comparable sales with addresses, prices, dates, size, and price/sqft"),
	"neighborhood_analysis": ai.String("School ratings, crime data, market trends, and area median prices"),
	"market_adjustments":    ai.String("Adjustments for condition, unique features, lot premium/discount, market timing, land assembly premium if multiple properties"),
	"price_analysis":        ai.String("Price per square foot comparison and calculation methodology"),
	"price_range":           ai.String("Estimated price range (min-max) accounting for uncertainty"),
	"final_estimate":        ai.String("Single best estimate with detailed reasoning in bullet points"),
	"confidence":            ai.Number("Confidence level 0-1 based on data quality, comparables, and market conditions"),
})

// Agent researches a valuation question with tools and extracts a
// structured answer.
type Agent struct {
	llm   LLM
	tools *Tools
}

// NewAgent creates a valuation agent.
func NewAgent(llm LLM, tools *Tools) *Agent {
	return &Agent{llm: llm, tools: tools}
}

type toolCallKey struct {
	name string
	args string
}

// Run answers question. The ReAct loop lets the model call research tools
// until it stops asking for them, then a final schema-constrained call
// extracts the valuation.
func (a *Agent) Run(ctx context.Context, question string) (*Valuation, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.AgentTimeout)
	defer cancel()

	startTime := time.Now()
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: agentSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}

	seen := make(map[toolCallKey]bool)
	failureCount := make(map[string]int)
	toolCalls := 0

	var iteration int
	for iteration = 0; iteration < timeout.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("agent execution cancelled: %w", ctx.Err())
		default:
		}

		resp, err := a.llm.Complete(ctx, openai.ChatCompletionRequest{
			Messages: messages,
			Tools:    a.tools.Definitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("LLM chat failed (iteration %d): %w", iteration+1, err)
		}

		msg := resp.Choices[0].Message
		messages = append(messages, msg)
		if len(msg.ToolCalls) == 0 {
			break
		}

		for _, call := range msg.ToolCalls {
			toolCalls++
			result, err := a.runTool(ctx, call, seen, failureCount)
			if err != nil {
				return nil, err
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	if iteration >= timeout.MaxIterations {
		slog.Warn("agent reached maximum iterations, extracting answer from gathered research",
			"max_iterations", timeout.MaxIterations)
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: finalAnswerPrompt,
	})
	var v Valuation
	if err := a.llm.CompleteJSON(ctx, messages, "property_valuation", valuationSchema, &v); err != nil {
		return nil, fmt.Errorf("failed to extract valuation: %w", err)
	}
	v.Confidence = clamp(v.Confidence, 0, 1)

	slog.Info("agent execution completed",
		"iterations", iteration+1,
		"tool_calls", toolCalls,
		"confidence", v.Confidence,
		"duration_ms", time.Since(startTime).Milliseconds())

	return &v, nil
}

// runTool executes one tool call and returns the text fed back to the
// model. It fails only when a tool keeps failing.
func (a *Agent) runTool(ctx context.Context, call openai.ToolCall, seen map[toolCallKey]bool, failureCount map[string]int) (string, error) {
	name := call.Function.Name
	key := toolCallKey{name: name, args: strings.TrimSpace(call.Function.Arguments)}
	if seen[key] {
		slog.Warn("detected repeated tool call", "tool", name)
		return fmt.Sprintf("You already called %s with these arguments. Use the earlier result and do not call it again.", name), nil
	}
	seen[key] = true

	result, err := a.tools.Call(ctx, name, call.Function.Arguments)
	if err != nil {
		failureCount[name]++
		failCount := failureCount[name]
		slog.Warn("tool execution failed",
			"tool", name,
			"failure_count", failCount,
			"error", err,
			"input", truncate(call.Function.Arguments, timeout.MaxTruncateLength))

		if failCount >= timeout.MaxToolFailures {
			return "", fmt.Errorf("tool %s failed repeatedly (%d times): %w", name, failCount, err)
		}
		return fmt.Sprintf("Tool %s failed: %v", name, err), nil
	}

	failureCount[name] = 0
	if result == "" {
		result = "No results found."
	}
	return result, nil
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
