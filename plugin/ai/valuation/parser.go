package valuation

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/hrygo/estatebot/plugin/ai"
	"github.com/hrygo/estatebot/plugin/ai/timeout"
)

// Parser extracts property addresses from free text, using the LLM when
// available and a regular expression otherwise.
type Parser struct {
	llm LLM
}

// NewParser creates a parser. A nil llm makes every parse use the fallback.
func NewParser(llm LLM) *Parser {
	return &Parser{llm: llm}
}

type parseResult struct {
	Addresses  []string `json:"addresses"`
	QueryType  string   `json:"query_type"`
	Confidence float64  `json:"confidence"`
}

var parseSchema = ai.Object(map[string]*ai.JSONSchema{
	"addresses":  ai.ArrayOf(ai.String("A complete property address"), "Every property address found in the message"),
	"query_type": ai.String("Type of query", QuerySingle, QueryMultiple, QueryCompare),
	"confidence": ai.Number("Confidence between 0 and 1 in the parsing accuracy"),
})

// Parse extracts the addresses and query type from message.
func (p *Parser) Parse(ctx context.Context, message string) PropertyQuery {
	if p.llm == nil {
		return FallbackParse(message)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.ParseTimeout)
	defer cancel()

	var res parseResult
	if err := p.llm.ChatJSON(ctx, parserSystemPrompt, message, "address_parsing", parseSchema, &res); err != nil {
		slog.Warn("LLM address parsing failed, using fallback", "error", err)
		return FallbackParse(message)
	}

	var addresses []string
	for _, addr := range res.Addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			addresses = append(addresses, addr)
		}
	}

	queryType := strings.ToLower(strings.TrimSpace(res.QueryType))
	switch queryType {
	case QuerySingle, QueryMultiple, QueryCompare:
	default:
		queryType = QuerySingle
		if len(addresses) > 1 {
			queryType = QueryMultiple
		}
	}

	slog.Debug("parsed message",
		"addresses", len(addresses),
		"query_type", queryType,
		"confidence", res.Confidence)

	return PropertyQuery{
		Addresses:  addresses,
		QueryType:  queryType,
		RawMessage: message,
	}
}

var (
	addressRegex  = regexp.MustCompile(`(?i)\d+[A-Z]?\s+[^,\n]+(?:,\s*[^,\n]+)*`)
	compareRegex  = regexp.MustCompile(`\b(compare|vs|versus)\b`)
	multipleRegex = regexp.MustCompile(`\b(both|multiple|together)\b`)
)

// FallbackParse extracts addresses with a regular expression.
func FallbackParse(message string) PropertyQuery {
	var addresses []string
	for _, match := range addressRegex.FindAllString(message, -1) {
		addr := strings.TrimSpace(match)
		if len(addr) > 5 && !slices.Contains(addresses, addr) {
			addresses = append(addresses, addr)
		}
	}

	lower := strings.ToLower(message)
	queryType := QuerySingle
	switch {
	case compareRegex.MatchString(lower):
		queryType = QueryCompare
	case len(addresses) > 1 || multipleRegex.MatchString(lower):
		queryType = QueryMultiple
	}

	return PropertyQuery{
		Addresses:  addresses,
		QueryType:  queryType,
		RawMessage: message,
	}
}

var (
	digitRegex           = regexp.MustCompile(`\d`)
	streetIndicatorRegex = regexp.MustCompile(`(?i)\b(street|st|avenue|ave|road|rd|drive|dr|lane|ln|court|ct|place|pl|crescent|cres)\b`)
)

// ValidateAddresses splits addresses into plausible and implausible ones.
func ValidateAddresses(addresses []string) (valid, invalid []string) {
	for _, addr := range addresses {
		if isValidAddress(addr) {
			valid = append(valid, addr)
		} else {
			invalid = append(invalid, addr)
		}
	}
	return valid, invalid
}

// isValidAddress requires a number, a reasonable length and either a street
// suffix or a number-name-place shape.
func isValidAddress(address string) bool {
	if !digitRegex.MatchString(address) {
		return false
	}
	if len(strings.TrimSpace(address)) < 5 {
		return false
	}
	if streetIndicatorRegex.MatchString(address) {
		return true
	}
	return len(strings.Split(address, ",")) >= 2 || len(strings.Fields(address)) >= 3
}
