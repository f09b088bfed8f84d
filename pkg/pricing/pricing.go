// Package pricing maps model identifiers to per-million-token prices and
// computes turn costs from usage.
package pricing

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strings"
)

// Pricing is USD per million tokens for one model.
type Pricing struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read,omitempty"`
	CacheWrite float64 `json:"cache_write,omitempty"`
}

type Table map[string]Pricing

func DefaultTable() Table {
	return Table{
		"claude-opus-4.6":   {Input: 5.00, Output: 25.00, CacheRead: 0.50, CacheWrite: 6.25},
		"claude-opus-4.5":   {Input: 5.00, Output: 25.00, CacheRead: 0.50, CacheWrite: 6.25},
		"claude-opus-4.1":   {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"claude-opus-4":     {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"claude-sonnet-4.5": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-sonnet-4":   {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-haiku-4.5":  {Input: 1.00, Output: 5.00, CacheRead: 0.10, CacheWrite: 1.25},
		"claude-3.5-sonnet": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-3.5-haiku":  {Input: 0.80, Output: 4.00, CacheRead: 0.08, CacheWrite: 1.00},
		"claude-3-opus":     {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
	}
}

// Load returns the default table with optional JSON overrides from path.
func Load(path string) (Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var overrides map[string]Pricing
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}

	maps.Copy(table, overrides)

	return table, nil
}

// ForModel looks up pricing for a model identifier, normalizing dated and
// dashed variants first.
func ForModel(table Table, model string) (Pricing, bool) {
	normalized := normalizeModel(model)
	price, ok := table[normalized]
	if ok {
		return price, true
	}
	price, ok = table[model]
	return price, ok
}

// CostForTokens calculates cost using base input/output pricing.
// For cache-aware cost calculation, use CostForTokensWithCache.
func CostForTokens(price Pricing, inputTokens, outputTokens int64) (float64, float64, float64) {
	inputCost := float64(inputTokens) / 1_000_000.0 * price.Input
	outputCost := float64(outputTokens) / 1_000_000.0 * price.Output
	return inputCost, outputCost, inputCost + outputCost
}

// CostForTokensWithCache calculates cost accounting for prompt caching.
// When cache token counts are available, base input tokens are calculated as:
// baseInput = totalInput - cacheCreation - cacheRead
// Each token type is priced at its respective rate.
func CostForTokensWithCache(price Pricing, inputTokens, outputTokens, cacheCreation, cacheRead int64) (float64, float64, float64) {
	if cacheCreation == 0 && cacheRead == 0 {
		return CostForTokens(price, inputTokens, outputTokens)
	}

	// Base input tokens = total input minus cached tokens
	baseInput := max(inputTokens-cacheCreation-cacheRead, 0)

	inputCost := float64(baseInput) / 1_000_000.0 * price.Input
	inputCost += float64(cacheCreation) / 1_000_000.0 * price.CacheWrite
	inputCost += float64(cacheRead) / 1_000_000.0 * price.CacheRead
	outputCost := float64(outputTokens) / 1_000_000.0 * price.Output
	return inputCost, outputCost, inputCost + outputCost
}

func normalizeModel(model string) string {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if normalized == "" {
		return normalized
	}

	// Strip Anthropic-style date suffix: -YYYYMMDD (8 consecutive digits)
	if idx := strings.LastIndex(normalized, "-"); idx != -1 {
		suffix := normalized[idx+1:]
		if len(suffix) == 8 && isDigits(suffix) {
			normalized = normalized[:idx]
		}
	}

	normalized = strings.ReplaceAll(normalized, "-4-6", "-4.6")
	normalized = strings.ReplaceAll(normalized, "-4-5", "-4.5")
	normalized = strings.ReplaceAll(normalized, "-4-1", "-4.1")
	normalized = strings.ReplaceAll(normalized, "-3-5", "-3.5")
	return normalized
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
