package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

// OpenAIConfig configures the OpenAI client. With a custom BaseURL and
// ProviderName it also serves any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // default https://api.openai.com/v1
	Model        string // text extraction model, default gpt-4o-mini
	VisionModel  string // vision extraction model, default gpt-4o
	Timeout      time.Duration
	ProviderName constants.AIProviderName
}

type OpenAI struct {
	cfg    OpenAIConfig
	http   *http.Client
	logger *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = constants.ProviderOpenAI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *OpenAI) Name() constants.AIProviderName { return c.cfg.ProviderName }

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ExtractText extracts schema fields from OCR text via chat/completions.
func (c *OpenAI) ExtractText(ctx context.Context, text string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	start := time.Now()
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": 0,
		"messages": []map[string]any{
			{"role": "system", "content": textSystemPrompt},
			{"role": "user", "content": buildTextPrompt(text, schema)},
		},
	}
	fields, usage, err := c.complete(ctx, body, c.cfg.Model, schema)
	if err != nil {
		c.logger.Error("llm.extract.failed", "provider", c.cfg.ProviderName, "model", c.cfg.Model, "error", err)
		return nil, nil, err
	}
	c.logger.Info("llm.extract.ok",
		"provider", c.cfg.ProviderName,
		"model", c.cfg.Model,
		"text_len", len(text),
		"tokens", tokenCount(usage),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, usage, nil
}

// ExtractImage extracts schema fields directly from the image using the
// vision model.
func (c *OpenAI) ExtractImage(ctx context.Context, imagePath string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	start := time.Now()
	data, mimeType, err := readImageBase64(imagePath)
	if err != nil {
		return nil, nil, err
	}
	body := map[string]any{
		"model":       c.cfg.VisionModel,
		"temperature": 0,
		"max_tokens":  1024,
		"messages": []map[string]any{
			{"role": "system", "content": visionSystemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": buildVisionPrompt(schema)},
				{"type": "image_url", "image_url": map[string]any{
					"url":    fmt.Sprintf("data:%s;base64,%s", mimeType, data),
					"detail": "high",
				}},
			}},
		},
	}
	fields, usage, err := c.complete(ctx, body, c.cfg.VisionModel, schema)
	if err != nil {
		c.logger.Error("llm.vision.failed", "provider", c.cfg.ProviderName, "model", c.cfg.VisionModel, "error", err)
		return nil, nil, err
	}
	c.logger.Info("llm.vision.ok",
		"provider", c.cfg.ProviderName,
		"model", c.cfg.VisionModel,
		"image", imagePath,
		"tokens", tokenCount(usage),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, usage, nil
}

func (c *OpenAI) complete(ctx context.Context, body map[string]any, model string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		return nil, nil, err
	}

	var cc openaiResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, nil, fmt.Errorf("no choices in openai response")
	}

	fields, err := decodeFields(cc.Choices[0].Message.Content, schema)
	if err != nil {
		return nil, nil, err
	}

	usage := &entity.TokenUsage{Model: model}
	if cc.Usage != nil {
		usage.PromptTokens = cc.Usage.PromptTokens
		usage.CompletionTokens = cc.Usage.CompletionTokens
		usage.TotalTokens = cc.Usage.TotalTokens
	}
	return fields, usage, nil
}

func (c *OpenAI) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func tokenCount(u *entity.TokenUsage) int {
	if u == nil {
		return 0
	}
	return u.TotalTokens
}
