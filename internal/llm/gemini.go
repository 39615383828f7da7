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

// GeminiConfig configures the Google Gemini client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string // default https://generativelanguage.googleapis.com/v1beta
	Model   string // default gemini-1.5-flash
	Timeout time.Duration
}

type Gemini struct {
	cfg    GeminiConfig
	http   *http.Client
	logger *slog.Logger
}

func NewGemini(cfg GeminiConfig, logger *slog.Logger) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Gemini) Name() constants.AIProviderName { return constants.ProviderGemini }

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// ExtractText extracts schema fields from OCR text.
func (c *Gemini) ExtractText(ctx context.Context, text string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	parts := []map[string]any{{"text": buildTextPrompt(text, schema)}}
	return c.generate(ctx, parts, schema)
}

// ExtractImage extracts schema fields directly from the image.
func (c *Gemini) ExtractImage(ctx context.Context, imagePath string, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	data, mimeType, err := readImageBase64(imagePath)
	if err != nil {
		return nil, nil, err
	}
	parts := []map[string]any{
		{"text": buildVisionPrompt(schema)},
		{"inline_data": map[string]any{"mime_type": mimeType, "data": data}},
	}
	return c.generate(ctx, parts, schema)
}

func (c *Gemini) generate(ctx context.Context, parts []map[string]any, schema entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	start := time.Now()
	body := map[string]any{
		"contents": []map[string]any{{"parts": parts}},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	// The key travels in a header, not the query string: url.Error and
	// status errors embed the full URL and end up in warnings and logs.
	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini http error: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("llm.gemini.failed", "status", resp.StatusCode, "model", c.cfg.Model)
		return nil, nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(raw))
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, nil, fmt.Errorf("no candidates in gemini response")
	}

	fields, err := decodeFields(out.Candidates[0].Content.Parts[0].Text, schema)
	if err != nil {
		return nil, nil, err
	}

	usage := &entity.TokenUsage{Model: c.cfg.Model}
	if out.UsageMetadata != nil {
		usage.PromptTokens = out.UsageMetadata.PromptTokenCount
		usage.CompletionTokens = out.UsageMetadata.CandidatesTokenCount
		usage.TotalTokens = out.UsageMetadata.TotalTokenCount
	}
	c.logger.Info("llm.gemini.ok", "model", c.cfg.Model, "tokens", usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds())
	return fields, usage, nil
}
