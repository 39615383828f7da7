package ocr

import (
	"bytes"
	"context"
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

// AzureConfig configures the Azure Computer Vision Read engine.
type AzureConfig struct {
	APIKey       string
	Endpoint     string // e.g. https://RESOURCE.cognitiveservices.azure.com
	Language     string // hint; "auto" or empty means auto-detect
	Timeout      time.Duration
	PollInterval time.Duration
}

// Azure recognizes text through the Read API: submit the image, then poll
// the Operation-Location until the analysis finishes.
type Azure struct {
	cfg    AzureConfig
	http   *http.Client
	logger *slog.Logger
}

func NewAzure(cfg AzureConfig, logger *slog.Logger) *Azure {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Language == "auto" {
		cfg.Language = ""
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Azure{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (a *Azure) Name() constants.OCREngineName { return constants.EngineAzure }

type azureReadResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ReadResults []struct {
			Lines []struct {
				Text  string `json:"text"`
				Words []struct {
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

func (a *Azure) run(ctx context.Context, imagePath string) ([]Line, error) {
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	url := strings.TrimRight(a.cfg.Endpoint, "/") + "/vision/v3.2/read/analyze"
	if a.cfg.Language != "" {
		url += "?language=" + a.cfg.Language
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure ocr http error: %w", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("azure ocr status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}
	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return nil, fmt.Errorf("azure ocr: missing Operation-Location header")
	}

	var result azureReadResult
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.cfg.PollInterval):
		}

		pollReq, err := http.NewRequestWithContext(ctx, http.MethodGet, opLocation, nil)
		if err != nil {
			return nil, err
		}
		pollReq.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.APIKey)
		pollResp, err := a.http.Do(pollReq)
		if err != nil {
			return nil, fmt.Errorf("azure ocr poll error: %w", err)
		}
		pollRaw, _ := io.ReadAll(pollResp.Body)
		pollResp.Body.Close()
		if pollResp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("azure ocr poll status %d: %s", pollResp.StatusCode, truncate(string(pollRaw), 512))
		}
		if err := json.Unmarshal(pollRaw, &result); err != nil {
			return nil, fmt.Errorf("decode azure read result: %w", err)
		}
		if result.Status != "running" && result.Status != "notStarted" {
			break
		}
	}
	if result.Status != "succeeded" {
		return nil, fmt.Errorf("azure ocr analysis %s", result.Status)
	}

	var lines []Line
	for _, page := range result.AnalyzeResult.ReadResults {
		for _, line := range page.Lines {
			text := strings.TrimSpace(line.Text)
			if text == "" {
				continue
			}
			conf := 0.85 // default when the API omits word confidence
			if len(line.Words) > 0 {
				var sum float64
				for _, w := range line.Words {
					sum += w.Confidence
				}
				conf = sum / float64(len(line.Words))
			}
			lines = append(lines, Line{Text: text, Confidence: conf})
		}
	}
	return lines, nil
}

// GetText returns validated recognized text for the image.
func (a *Azure) GetText(ctx context.Context, imagePath string) (string, error) {
	lines, err := a.run(ctx, imagePath)
	if err != nil {
		return "", err
	}
	valid := ValidateLines(lines)
	a.logger.Debug("ocr.azure.ok", "image", imagePath, "lines", len(lines), "valid_lines", len(valid))
	return JoinLines(valid), nil
}
