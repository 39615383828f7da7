// Package llm drives the extraction providers. Each provider can extract
// schema-shaped data from recognized OCR text or directly from an image
// ("vision extraction"), and reports token usage for cost accounting.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

// Provider is the interface the pipeline depends on. Returned maps are the
// provider's raw decoded output; schema enforcement happens in the pipeline.
type Provider interface {
	Name() constants.AIProviderName
	ExtractText(ctx context.Context, text string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error)
	ExtractImage(ctx context.Context, imagePath string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error)
}

// Resolve maps a provider name to a constructed client. Unspecified or
// unrecognized names fall back to openai. Every provider except "custom"
// requires an API key; a missing key fails with a ConfigError before any
// image is processed.
func Resolve(name string, settings common.Settings, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = settings.AIProvider
	}
	apiKey := settings.AIAPIKey

	provider := constants.AIProviderName(name)
	if provider != constants.ProviderCustom && apiKey == "" {
		return nil, common.NewConfigError(name,
			fmt.Sprintf("API key not configured for %s. Set it in Settings.", name), nil)
	}

	switch provider {
	case constants.ProviderAnthropic:
		return NewAnthropic(AnthropicConfig{APIKey: apiKey}, logger), nil
	case constants.ProviderGemini:
		return NewGemini(GeminiConfig{APIKey: apiKey}, logger), nil
	case constants.ProviderCustom:
		if apiKey == "" {
			apiKey = "not-needed"
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:       apiKey,
			BaseURL:      settings.CustomEndpoint,
			Model:        settings.CustomModel,
			VisionModel:  settings.CustomModel,
			ProviderName: constants.ProviderCustom,
		}, logger), nil
	default:
		return NewOpenAI(OpenAIConfig{APIKey: apiKey}, logger), nil
	}
}
