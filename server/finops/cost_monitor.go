// Package finops tracks LLM token usage and its estimated cost.
package finops

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Price is the USD price per 1K tokens.
type Price struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// DefaultPricing covers common OpenAI models. Unknown models are tracked at
// zero cost.
var DefaultPricing = map[string]Price{
	"gpt-4o-mini":  {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
	"gpt-4o":       {PromptPer1K: 0.0025, CompletionPer1K: 0.01},
	"gpt-4.1-mini": {PromptPer1K: 0.0004, CompletionPer1K: 0.0016},
	"gpt-4.1":      {PromptPer1K: 0.002, CompletionPer1K: 0.008},
}

// CostMonitor 成本监控器 / accumulates token usage per model.
type CostMonitor struct {
	logger  *slog.Logger
	pricing map[string]Price
	now     func() time.Time

	mu        sync.Mutex
	byModel   map[string]*ModelUsage
	startTime time.Time
}

// ModelUsage 模型用量 / usage of one model.
type ModelUsage struct {
	Model            string  `json:"model"`
	Calls            int64   `json:"calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost_usd"`
}

// TotalTokens returns prompt plus completion tokens.
func (u ModelUsage) TotalTokens() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// CostReport 成本报告
type CostReport struct {
	Since       time.Time    `json:"since"`
	Calls       int64        `json:"calls"`
	TotalTokens int64        `json:"total_tokens"`
	TotalCost   float64      `json:"total_cost_usd"`
	ByModel     []ModelUsage `json:"by_model"`
}

// NewCostMonitor 创建新的成本监控器. A nil pricing uses DefaultPricing.
func NewCostMonitor(pricing map[string]Price) *CostMonitor {
	if pricing == nil {
		pricing = DefaultPricing
	}
	m := &CostMonitor{
		logger:  slog.Default(),
		pricing: pricing,
		now:     time.Now,
		byModel: make(map[string]*ModelUsage),
	}
	m.startTime = m.now()
	return m
}

// RecordUsage 记录一次调用的用量 / records the tokens of one completion.
func (m *CostMonitor) RecordUsage(model string, promptTokens, completionTokens int) {
	if promptTokens < 0 || completionTokens < 0 {
		m.logger.Warn("negative token usage ignored",
			"model", model,
			"prompt_tokens", promptTokens,
			"completion_tokens", completionTokens,
		)
		return
	}

	cost := m.Cost(model, promptTokens, completionTokens)

	m.mu.Lock()
	u, ok := m.byModel[model]
	if !ok {
		u = &ModelUsage{Model: model}
		m.byModel[model] = u
	}
	u.Calls++
	u.PromptTokens += int64(promptTokens)
	u.CompletionTokens += int64(completionTokens)
	u.Cost += cost
	m.mu.Unlock()

	m.logger.Debug("recorded LLM usage",
		"model", model,
		"prompt_tokens", promptTokens,
		"completion_tokens", completionTokens,
		"cost_usd", cost,
	)
}

// Cost 计算成本 / prices a call. Versioned model names such as
// "gpt-4o-mini-2024-07-18" use the price of their longest known prefix.
func (m *CostMonitor) Cost(model string, promptTokens, completionTokens int) float64 {
	price, ok := m.priceFor(model)
	if !ok {
		return 0
	}
	return float64(promptTokens)/1000*price.PromptPer1K + float64(completionTokens)/1000*price.CompletionPer1K
}

func (m *CostMonitor) priceFor(model string) (Price, bool) {
	if p, ok := m.pricing[model]; ok {
		return p, true
	}
	best := ""
	for name := range m.pricing {
		if len(name) > len(best) && len(model) > len(name) && model[:len(name)] == name && model[len(name)] == '-' {
			best = name
		}
	}
	if best == "" {
		return Price{}, false
	}
	return m.pricing[best], true
}

// Report 获取成本报告 / returns accumulated usage, most expensive model first.
func (m *CostMonitor) Report() CostReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := CostReport{Since: m.startTime}
	for _, u := range m.byModel {
		report.Calls += u.Calls
		report.TotalTokens += u.TotalTokens()
		report.TotalCost += u.Cost
		report.ByModel = append(report.ByModel, *u)
	}
	sort.Slice(report.ByModel, func(i, j int) bool {
		if report.ByModel[i].Cost != report.ByModel[j].Cost {
			return report.ByModel[i].Cost > report.ByModel[j].Cost
		}
		return report.ByModel[i].Model < report.ByModel[j].Model
	})
	return report
}

// Reset 清空统计 / clears usage and restarts the period.
func (m *CostMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byModel = make(map[string]*ModelUsage)
	m.startTime = m.now()
}
