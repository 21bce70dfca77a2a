// Package timeout defines centralized timeout constants for AI operations.
// Package timeout 定义 AI 操作的集中式超时常量。
package timeout

import "time"

// AI operation timeout constants.
// AI 操作超时常量。
const (
	// LLMRequestTimeout is the timeout for a single chat completion request.
	// LLMRequestTimeout 是单次对话补全请求的超时时间。
	LLMRequestTimeout = 90 * time.Second

	// AgentTimeout is the timeout for a full valuation agent run.
	// AgentTimeout 是一次完整估价 Agent 执行的超时时间。
	AgentTimeout = 5 * time.Minute

	// ParseTimeout is the timeout for extracting addresses from a message.
	// ParseTimeout 是从消息中提取地址的超时时间。
	ParseTimeout = 30 * time.Second

	// ToolExecutionTimeout is the timeout for individual tool execution.
	// ToolExecutionTimeout 是单个工具执行的超时时间。
	ToolExecutionTimeout = 45 * time.Second

	// SearchTimeout is the timeout for one web search request.
	// SearchTimeout 是单次网络搜索请求的超时时间。
	SearchTimeout = 20 * time.Second

	// HealthCheckTimeout bounds the provider ping used by /health.
	// HealthCheckTimeout 是 /health 探活请求的超时时间。
	HealthCheckTimeout = 10 * time.Second

	// MaxIterations is the maximum number of ReAct loop iterations.
	// MaxIterations 是 ReAct 循环的最大迭代次数。
	MaxIterations = 8

	// MaxToolFailures is the maximum number of consecutive failures before aborting.
	// MaxToolFailures 是工具连续失败的最大次数，超过后中止执行。
	MaxToolFailures = 3

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
