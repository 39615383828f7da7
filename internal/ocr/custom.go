package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/DruboPaul/web-surveyscriber/constants"
)

// CustomConfig configures the generic REST OCR engine.
type CustomConfig struct {
	Endpoint string
	APIKey   string
	Language string
	Timeout  time.Duration
}

// Custom posts a base64-encoded image to any OCR endpoint and accepts the
// common response shapes: a JSON object with a text-ish field, a JSON string,
// or plain text.
type Custom struct {
	cfg    CustomConfig
	http   *http.Client
	logger *slog.Logger
}

func NewCustom(cfg CustomConfig, logger *slog.Logger) *Custom {
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Custom{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Custom) Name() constants.OCREngineName { return constants.EngineCustom }

// GetText sends the image to the configured endpoint and returns the
// recognized text. No confidence filtering: custom endpoints report text only.
func (c *Custom) GetText(ctx context.Context, imagePath string) (string, error) {
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"image":    base64.StdEncoding.EncodeToString(content),
		"language": c.cfg.Language,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("custom ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("custom ocr status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	// Tolerate the common response shapes.
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"text", "result", "ocr_text"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return s, nil
			}
		}
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return string(raw), nil
}
