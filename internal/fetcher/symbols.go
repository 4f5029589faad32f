package fetcher

import (
	"sort"
	"strings"
)

// DefaultQuoteAsset is the settlement asset of the tracked perpetuals.
const DefaultQuoteAsset = "USDT"

// NormalizeSymbol upper-cases symbol and appends the quote asset when missing.
func NormalizeSymbol(symbol, quote string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return ""
	}
	if quote == "" {
		quote = DefaultQuoteAsset
	}
	quote = strings.ToUpper(quote)
	if !strings.HasSuffix(s, quote) {
		s += quote
	}
	return s
}

// FilterSymbols normalizes, de-duplicates and drops blacklisted symbols.
// The result is sorted so collection order is stable between runs.
func FilterSymbols(symbols, blacklist []string, quote string) []string {
	blocked := make(map[string]struct{}, len(blacklist))
	for _, b := range blacklist {
		if n := NormalizeSymbol(b, quote); n != "" {
			blocked[n] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s, quote)
		if n == "" {
			continue
		}
		if _, ok := blocked[n]; ok {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
