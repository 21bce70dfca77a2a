package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/ai/timeout"
	"github.com/hrygo/estatebot/plugin/search"
)

const (
	searchFanOut      = 3
	resultsPerQuery   = 2
	searchUnavailable = "Web search is unavailable. Base the analysis on general market knowledge and lower the confidence."
)

// Tool is a function the agent may call.
type Tool struct {
	Name        string
	Description string
	Parameters  *ai.JSONSchema
	Run         func(ctx context.Context, args toolArgs) (string, error)
}

type toolArgs struct {
	Query   string `json:"query"`
	Address string `json:"address"`
}

// Tools holds the research tools backed by web search.
type Tools struct {
	searcher Searcher
	now      func() time.Time
	byName   map[string]Tool
	ordered  []Tool
}

// NewTools creates the tool set. A nil searcher makes every search tool
// report that search is unavailable.
func NewTools(searcher Searcher) *Tools {
	t := &Tools{searcher: searcher, now: time.Now, byName: make(map[string]Tool)}

	addressParams := ai.Object(map[string]*ai.JSONSchema{"address": ai.String("Full property address")})
	t.register(Tool{
		Name:        "web_search",
		Description: "Run a web search and return the content from the top 5 search results",
		Parameters:  ai.Object(map[string]*ai.JSONSchema{"query": ai.String("Search query")}),
		Run:         t.webSearch,
	})
	t.register(Tool{
		Name:        "get_current_time",
		Description: "Get the current date and time",
		Parameters:  ai.Object(map[string]*ai.JSONSchema{}),
		Run: func(context.Context, toolArgs) (string, error) {
			return t.now().Format("2006-01-02 15:04:05"), nil
		},
	})
	t.register(t.addressTool("get_property_tax_data",
		"Get property tax assessment data and history for the given address", addressParams,
		"%s property tax assessment",
		"%s property tax records",
		"%s assessed value tax history",
	))
	t.register(t.addressTool("get_neighborhood_stats",
		"Get neighborhood statistics including median prices and trends", addressParams,
		"%s neighborhood median home prices",
		"%s area real estate market trends",
		"%s housing market statistics",
	))
	t.register(t.addressTool("get_school_ratings",
		"Get school district ratings and test scores for the area", addressParams,
		"%s school district ratings",
		"%s elementary middle high school scores",
		"%s school quality ratings",
	))
	t.register(t.addressTool("get_crime_data",
		"Get crime statistics for the neighborhood", addressParams,
		"%s crime statistics",
		"%s neighborhood safety crime rates",
		"%s area crime data",
	))
	t.register(t.addressTool("get_comparable_sales",
		"Get recent comparable sales data with multiple search strategies", addressParams,
		"%s recent sales comparable properties",
		"%s recently sold homes similar properties",
		"%s comps comparable sales nearby",
		"%s sold properties last 6 months",
		"homes sold near %s price per square foot",
		"%s land assembly sales multiple lots",
		"%s development site sales large lots",
	))
	return t
}

func (t *Tools) register(tool Tool) {
	t.byName[tool.Name] = tool
	t.ordered = append(t.ordered, tool)
}

// Names returns the tool names in registration order.
func (t *Tools) Names() []string {
	names := make([]string, len(t.ordered))
	for i, tool := range t.ordered {
		names[i] = tool.Name
	}
	return names
}

// Definitions returns the OpenAI function definitions of every tool.
func (t *Tools) Definitions() []openai.Tool {
	defs := make([]openai.Tool, len(t.ordered))
	for i, tool := range t.ordered {
		defs[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Strict:      true,
				Parameters:  tool.Parameters,
			},
		}
	}
	return defs
}

// ErrUnknownTool is returned by Call for a name that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Call runs the named tool with JSON encoded arguments.
func (t *Tools) Call(ctx context.Context, name, arguments string) (string, error) {
	tool, ok := t.byName[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownTool, "%s (available: %s)", name, strings.Join(t.Names(), ", "))
	}

	var args toolArgs
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", errors.Wrapf(err, "invalid arguments for %s", name)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.ToolExecutionTimeout)
	defer cancel()
	return tool.Run(ctx, args)
}

func (t *Tools) webSearch(ctx context.Context, args toolArgs) (string, error) {
	if strings.TrimSpace(args.Query) == "" {
		return "", errors.New("query is required")
	}
	contents, err := t.search(ctx, args.Query, search.DefaultMaxResults)
	if errors.Is(err, search.ErrNoAPIKey) {
		return searchUnavailable, nil
	}
	if err != nil {
		return "", err
	}
	return strings.Join(contents, "\n"), nil
}

// addressTool builds a tool that runs one search per query template and
// joins the top results in template order.
func (t *Tools) addressTool(name, description string, params *ai.JSONSchema, templates ...string) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  params,
		Run: func(ctx context.Context, args toolArgs) (string, error) {
			address := strings.TrimSpace(args.Address)
			if address == "" {
				return "", errors.New("address is required")
			}
			slog.Debug("running research tool", "tool", name, "address", address)

			queries := make([]string, len(templates))
			for i, tmpl := range templates {
				queries[i] = fmt.Sprintf(tmpl, address)
			}
			return t.multiSearch(ctx, queries)
		},
	}
}

func (t *Tools) multiSearch(ctx context.Context, queries []string) (string, error) {
	results := make([][]string, len(queries))
	errs := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchFanOut)
	for i, query := range queries {
		g.Go(func() error {
			results[i], errs[i] = t.search(gctx, query, resultsPerQuery)
			if errors.Is(errs[i], search.ErrNoAPIKey) {
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, search.ErrNoAPIKey) {
			return searchUnavailable, nil
		}
		return "", err
	}

	var all []string
	failed := 0
	for i := range queries {
		if errs[i] != nil {
			failed++
			slog.Warn("search query failed", "query", queries[i], "error", errs[i])
			continue
		}
		all = append(all, results[i]...)
	}
	if failed == len(queries) {
		return "", errors.Wrap(errs[0], "all searches failed")
	}
	return strings.Join(all, "\n"), nil
}

func (t *Tools) search(ctx context.Context, query string, n int) ([]string, error) {
	if t.searcher == nil {
		return nil, search.ErrNoAPIKey
	}
	ctx, cancel := context.WithTimeout(ctx, timeout.SearchTimeout)
	defer cancel()

	results, err := t.searcher.Search(ctx, query, search.Options{MaxResults: search.DefaultMaxResults})
	if err != nil {
		return nil, err
	}
	return search.Contents(results, n), nil
}
