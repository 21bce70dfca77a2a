package cache

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Query is the cacheable part of a valuation request.
type Query struct {
	Addresses []string `json:"addresses"`
	QueryType string   `json:"query_type"`
}

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	commaRegex      = regexp.MustCompile(`\s*,\s*`)
	suffixRegex     = regexp.MustCompile(`\b(street|avenue|road|drive|lane|court|place|crescent)\b`)
)

var streetSuffixes = map[string]string{
	"street":   "st",
	"avenue":   "ave",
	"road":     "rd",
	"drive":    "dr",
	"lane":     "ln",
	"court":    "ct",
	"place":    "pl",
	"crescent": "cres",
}

// NormalizeAddress canonicalizes an address so that trivially different
// spellings of the same property share a cache entry.
func NormalizeAddress(address string) string {
	addr := strings.ToLower(strings.TrimSpace(address))
	addr = whitespaceRegex.ReplaceAllString(addr, " ")
	addr = commaRegex.ReplaceAllString(addr, ", ")
	return suffixRegex.ReplaceAllStringFunc(addr, func(word string) string {
		return streetSuffixes[word]
	})
}

// Normalize returns a copy of q with normalized, sorted addresses.
func (q Query) Normalize() Query {
	addrs := make([]string, len(q.Addresses))
	for i, addr := range q.Addresses {
		addrs[i] = NormalizeAddress(addr)
	}
	sort.Strings(addrs)
	return Query{
		Addresses: addrs,
		QueryType: strings.ToLower(strings.TrimSpace(q.QueryType)),
	}
}

// Matches reports whether any address of q contains address as whole words
// once both are normalized, so "1 main st" does not match "11 main st".
func (q Query) Matches(address string) bool {
	target := NormalizeAddress(address)
	if target == "" {
		return false
	}
	for _, addr := range q.Addresses {
		if containsWords(NormalizeAddress(addr), target) {
			return true
		}
	}
	return false
}

func containsWords(s, sub string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(sub)
		if isBoundary(s, start-1, sub[0]) && isBoundary(s, end, sub[len(sub)-1]) {
			return true
		}
		from = start + 1
	}
}

// isBoundary reports whether s[i] separates the match from its neighbour.
// Punctuation at the edge of the match is its own boundary.
func isBoundary(s string, i int, edge byte) bool {
	if i < 0 || i >= len(s) || !isWordByte(edge) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}

// Key generates a consistent cache key for the query.
func Key(q Query) string {
	n := q.Normalize()
	canonical := strings.Join(n.Addresses, "\x1f") + "\x1e" + n.QueryType
	return fmt.Sprintf("%016x", xxhash.Sum64String(canonical))
}
