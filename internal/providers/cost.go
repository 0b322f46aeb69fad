package providers

import (
	"strings"

	"github.com/revivalist/lorecard/internal/models"
)

// pricingTier is one token-count threshold of a model's per-million-token
// price. The tier is chosen by the call's input (prompt) token count and its
// input and output prices then apply to the whole call.
type pricingTier struct {
	upToTokens  int // 0 means unbounded, the final tier
	inputPerM   float64
	outputPerM  float64
}

// pricingTable is keyed by model name prefix; the longest matching prefix
// wins (so "gpt-4o-mini" is not priced as "gpt-4o"). Amounts are USD per million tokens. Entries are illustrative of
// public provider list pricing at the time this table was written and are
// not refreshed automatically — an unmatched prefix returns UnknownCost.
var pricingTable = map[string][]pricingTier{
	"gemini-1.5-pro": {
		{upToTokens: 128_000, inputPerM: 1.25, outputPerM: 5.00},
		{upToTokens: 0, inputPerM: 2.50, outputPerM: 10.00},
	},
	"gemini-1.5-flash": {
		{upToTokens: 128_000, inputPerM: 0.075, outputPerM: 0.30},
		{upToTokens: 0, inputPerM: 0.15, outputPerM: 0.60},
	},
	"gemini-2.0-flash": {
		{upToTokens: 0, inputPerM: 0.10, outputPerM: 0.40},
	},
	"claude-3-5-sonnet": {
		{upToTokens: 0, inputPerM: 3.00, outputPerM: 15.00},
	},
	"claude-3-5-haiku": {
		{upToTokens: 0, inputPerM: 0.80, outputPerM: 4.00},
	},
	"claude-3-opus": {
		{upToTokens: 0, inputPerM: 15.00, outputPerM: 75.00},
	},
	"deepseek-chat": {
		{upToTokens: 0, inputPerM: 0.27, outputPerM: 1.10},
	},
	"gpt-4o": {
		{upToTokens: 0, inputPerM: 2.50, outputPerM: 10.00},
	},
	"gpt-4o-mini": {
		{upToTokens: 0, inputPerM: 0.15, outputPerM: 0.60},
	},
}

// CalculateCost returns the estimated USD cost of one call, or
// models.UnknownCost if no table entry's prefix matches model (§4.4).
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	bestPrefix := ""
	for prefix := range pricingTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
		}
	}
	if bestPrefix == "" {
		return models.UnknownCost
	}
	return costFromTiers(pricingTable[bestPrefix], inputTokens, outputTokens)
}

func costFromTiers(tiers []pricingTier, inputTokens, outputTokens int) float64 {
	tier := tiers[len(tiers)-1]
	for _, t := range tiers {
		if t.upToTokens > 0 && inputTokens <= t.upToTokens {
			tier = t
			break
		}
	}
	inputCost := float64(inputTokens) / 1_000_000 * tier.inputPerM
	outputCost := float64(outputTokens) / 1_000_000 * tier.outputPerM
	return inputCost + outputCost
}
