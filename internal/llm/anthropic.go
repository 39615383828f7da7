package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

// AnthropicConfig configures the Anthropic messages-API client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string // default https://api.anthropic.com/v1
	Model   string // default claude-3-haiku-20240307
	Timeout time.Duration
}

type Anthropic struct {
	cfg    AnthropicConfig
	http   *http.Client
	logger *slog.Logger
}

func NewAnthropic(cfg AnthropicConfig, logger *slog.Logger) *Anthropic {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-haiku-20240307"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Anthropic{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Anthropic) Name() constants.AIProviderName { return constants.ProviderAnthropic }

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ExtractText extracts schema fields from OCR text.
func (c *Anthropic) ExtractText(ctx context.Context, text string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	content := []map[string]any{{"type": "text", "text": buildTextPrompt(text, schema)}}
	return c.message(ctx, content, schema)
}

// ExtractImage extracts schema fields directly from the image.
func (c *Anthropic) ExtractImage(ctx context.Context, imagePath string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	data, mimeType, err := readImageBase64(imagePath)
	if err != nil {
		return nil, nil, err
	}
	content := []map[string]any{
		{"type": "image", "source": map[string]any{
			"type":       "base64",
			"media_type": mimeType,
			"data":       data,
		}},
		{"type": "text", "text": buildVisionPrompt(schema)},
	}
	return c.message(ctx, content, schema)
}

func (c *Anthropic) message(ctx context.Context, content []map[string]any, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	start := time.Now()
	body := map[string]any{
		"model":      c.cfg.Model,
		"max_tokens": 1024,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("anthropic http error: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("llm.anthropic.failed", "status", resp.StatusCode, "model", c.cfg.Model)
		return nil, nil, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, string(raw))
	}

	var msg anthropicResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(msg.Content) == 0 {
		return nil, nil, fmt.Errorf("no content in anthropic response")
	}

	usage := &entity.TokenUsage{Model: c.cfg.Model}
	if msg.Usage != nil {
		usage.PromptTokens = msg.Usage.InputTokens
		usage.CompletionTokens = msg.Usage.OutputTokens
		usage.TotalTokens = msg.Usage.InputTokens + msg.Usage.OutputTokens
	}

	fields, err := decodeFields(msg.Content[0].Text, schema)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Info("llm.anthropic.ok", "model", c.cfg.Model, "tokens", usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds())
	return fields, usage, nil
}
