// Package usage aggregates per-call token usage into batch totals and
// estimates cost from a per-model price table.
package usage

import (
	"strings"

	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

// Totals is the aggregate of every LLM call in a batch. Provider and Images
// describe the batch itself and are filled in by the caller after aggregation.
type Totals struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
	Provider         string
	Images           int
	CostCents        int
}

// Aggregate sums usages into batch totals. The first non-empty model name
// wins; mixed-model batches are priced at that model's rate.
func Aggregate(usages []*entity.TokenUsage) Totals {
	var t Totals
	for _, u := range usages {
		if u == nil {
			continue
		}
		t.PromptTokens += u.PromptTokens
		t.CompletionTokens += u.CompletionTokens
		t.TotalTokens += u.TotalTokens
		if t.Model == "" && u.Model != "" {
			t.Model = u.Model
		}
	}
	t.CostCents = EstimateCostCents(t.Model, t.TotalTokens)
	return t
}

// Blended USD price per 1M tokens. Unknown models get the default rate.
var pricePerMillion = map[string]float64{
	"gpt-4o":                   5.0,
	"gpt-4o-mini":              0.3,
	"gpt-3.5-turbo":            0.5,
	"claude-3-haiku-20240307":  0.25,
	"claude-3-sonnet":          3.0,
	"claude-3-opus":            15.0,
	"gemini-1.5-flash":         0.075,
	"gemini-1.5-pro":           1.25,
}

const defaultPricePerMillion = 2.5

// EstimateCostCents converts a token total into whole US cents. Model
// matching is by prefix so dated variants (claude-3-sonnet-20240229) price
// like their family.
func EstimateCostCents(model string, totalTokens int) int {
	if totalTokens <= 0 {
		return 0
	}
	price := defaultPricePerMillion
	if p, ok := pricePerMillion[model]; ok {
		price = p
	} else {
		// Longest matching prefix wins so gpt-4o-mini variants do not
		// price as gpt-4o.
		best := 0
		for name, p := range pricePerMillion {
			if strings.HasPrefix(model, name) && len(name) > best {
				best = len(name)
				price = p
			}
		}
	}
	usd := float64(totalTokens) / 1_000_000 * price
	return int(usd * 100)
}
