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

// GoogleConfig configures the Google Cloud Vision engine.
type GoogleConfig struct {
	APIKey   string
	BaseURL  string        // default https://vision.googleapis.com/v1
	Language string        // BCP-47 hint; "auto" or empty means no hint
	Timeout  time.Duration // per-request, default 60s
}

// GoogleVision recognizes text through the Cloud Vision images:annotate REST
// endpoint using DOCUMENT_TEXT_DETECTION, collecting per-paragraph confidence
// for line validation.
type GoogleVision struct {
	cfg    GoogleConfig
	http   *http.Client
	logger *slog.Logger
}

func NewGoogleVision(cfg GoogleConfig, logger *slog.Logger) *GoogleVision {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://vision.googleapis.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Language == "auto" {
		cfg.Language = ""
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleVision{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (g *GoogleVision) Name() constants.OCREngineName { return constants.EngineGoogle }

type gvAnnotateResponse struct {
	Responses []struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		FullTextAnnotation struct {
			Pages []struct {
				Blocks []struct {
					Paragraphs []struct {
						Words []struct {
							Confidence float64 `json:"confidence"`
							Symbols    []struct {
								Text string `json:"text"`
							} `json:"symbols"`
						} `json:"words"`
					} `json:"paragraphs"`
				} `json:"blocks"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
	} `json:"responses"`
}

func (g *GoogleVision) run(ctx context.Context, imagePath string) ([]Line, error) {
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	imageCtx := map[string]any{}
	if g.cfg.Language != "" {
		imageCtx["languageHints"] = []string{g.cfg.Language}
	}
	body := map[string]any{
		"requests": []map[string]any{{
			"image":        map[string]any{"content": base64.StdEncoding.EncodeToString(content)},
			"features":     []map[string]any{{"type": "DOCUMENT_TEXT_DETECTION"}},
			"imageContext": imageCtx,
		}},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	// Keep the key out of the URL so transport errors cannot leak it.
	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/images:annotate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google vision http error: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("google vision status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	var out gvAnnotateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode google vision response: %w", err)
	}
	if len(out.Responses) == 0 {
		return nil, nil
	}
	r := out.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return nil, fmt.Errorf("google vision api error: %s", r.Error.Message)
	}

	var lines []Line
	for _, page := range r.FullTextAnnotation.Pages {
		for _, block := range page.Blocks {
			for _, para := range block.Paragraphs {
				var sb strings.Builder
				var confSum float64
				for _, word := range para.Words {
					for _, sym := range word.Symbols {
						sb.WriteString(sym.Text)
					}
					sb.WriteString(" ")
					confSum += word.Confidence
				}
				text := strings.TrimSpace(sb.String())
				if text != "" && len(para.Words) > 0 {
					lines = append(lines, Line{Text: text, Confidence: confSum / float64(len(para.Words))})
				}
			}
		}
	}
	return lines, nil
}

// GetText returns validated recognized text for the image.
func (g *GoogleVision) GetText(ctx context.Context, imagePath string) (string, error) {
	lines, err := g.run(ctx, imagePath)
	if err != nil {
		return "", err
	}
	valid := ValidateLines(lines)
	g.logger.Debug("ocr.google.ok", "image", imagePath, "lines", len(lines), "valid_lines", len(valid))
	return JoinLines(valid), nil
}
