package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/search"
)

// fakeLLM replays scripted completions and JSON replies.
type fakeLLM struct {
	mu          sync.Mutex
	completions []openai.ChatCompletionMessage
	jsonReplies []string
	jsonErr     error
	pingErr     error

	requests     []openai.ChatCompletionRequest
	jsonMessages [][]openai.ChatCompletionMessage
}

func (f *fakeLLM) Complete(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.completions) == 0 {
		return openai.ChatCompletionResponse{}, errors.New("no scripted completion")
	}
	msg := f.completions[0]
	if len(f.completions) > 1 {
		f.completions = f.completions[1:]
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: msg}}}, nil
}

func (f *fakeLLM) CompleteJSON(_ context.Context, messages []openai.ChatCompletionMessage, _ string, _ *ai.JSONSchema, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsonMessages = append(f.jsonMessages, messages)
	if f.jsonErr != nil {
		return f.jsonErr
	}
	if len(f.jsonReplies) == 0 {
		return errors.New("no scripted JSON reply")
	}
	reply := f.jsonReplies[0]
	if len(f.jsonReplies) > 1 {
		f.jsonReplies = f.jsonReplies[1:]
	}
	return json.Unmarshal([]byte(reply), out)
}

func (f *fakeLLM) ChatJSON(ctx context.Context, system, user, name string, schema *ai.JSONSchema, out any) error {
	return f.CompleteJSON(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}, name, schema, out)
}

func (f *fakeLLM) Ping(context.Context) error { return f.pingErr }

func toolCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:       id,
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: name, Arguments: args},
	}
}

// fakeSearcher answers each query with numbered contents.
type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	fail    func(query string) error
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ search.Options) ([]search.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(query); err != nil {
			return nil, err
		}
	}
	var results []search.Result
	for _, suffix := range []string{"#1", "#2", "#3"} {
		results = append(results, search.Result{Content: query + " " + suffix})
	}
	return results, nil
}

func (f *fakeSearcher) count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}
