package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

func TestAggregate(t *testing.T) {
	t.Run("sums and keeps first model", func(t *testing.T) {
		got := Aggregate([]*entity.TokenUsage{
			{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, Model: "gpt-4o-mini"},
			nil,
			{PromptTokens: 200, CompletionTokens: 100, TotalTokens: 300, Model: "gpt-4o"},
		})
		assert.Equal(t, 300, got.PromptTokens)
		assert.Equal(t, 150, got.CompletionTokens)
		assert.Equal(t, 450, got.TotalTokens)
		assert.Equal(t, "gpt-4o-mini", got.Model)
	})

	t.Run("empty", func(t *testing.T) {
		got := Aggregate(nil)
		assert.Equal(t, 0, got.TotalTokens)
		assert.Equal(t, 0, got.CostCents)
	})
}

func TestEstimateCostCents(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		tokens int
		want   int
	}{
		{"zero tokens", "gpt-4o", 0, 0},
		{"gpt-4o one million", "gpt-4o", 1_000_000, 500},
		{"gpt-4o-mini", "gpt-4o-mini", 10_000_000, 300},
		{"claude haiku", "claude-3-haiku-20240307", 4_000_000, 100},
		{"gemini flash", "gemini-1.5-flash", 40_000_000, 300},
		{"unknown model default rate", "mystery-model", 1_000_000, 250},
		{"dated variant by prefix", "claude-3-sonnet-20240229", 1_000_000, 300},
		{"mini variant not priced as gpt-4o", "gpt-4o-mini-2024-07-18", 10_000_000, 300},
		{"sub-cent rounds down", "gemini-1.5-flash", 10_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateCostCents(tt.model, tt.tokens))
		})
	}
}
