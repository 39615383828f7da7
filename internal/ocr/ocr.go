// Package ocr resolves and drives the configured OCR engine. Every engine
// turns an image file into recognized text; line-level confidence filtering
// is applied where the provider reports it.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
)

// Engine is the capability the pipeline depends on. GetText returns the
// validated recognized text; an empty string means the image produced no
// trustworthy lines.
type Engine interface {
	Name() constants.OCREngineName
	GetText(ctx context.Context, imagePath string) (string, error)
}

// Resolve maps a named engine to a constructed client. The name "none"
// resolves to a nil Engine, a valid sentinel meaning "skip OCR and go
// straight to vision extraction". An empty name falls back to the settings
// bag. Missing credentials and unknown names fail with a ConfigError carrying
// a remediation hint.
func Resolve(name string, settings common.Settings, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = settings.OCRProvider
	}
	if name == "" {
		name = string(constants.EngineNone)
	}
	lang := settings.OCRLanguage

	switch constants.OCREngineName(name) {
	case constants.EngineNone:
		logger.Info("ocr.resolve.none", "hint", "vision extraction will be used directly")
		return nil, nil

	case constants.EngineGoogle:
		if settings.GoogleVisionKey == "" {
			return nil, common.NewConfigError("google", "Google Vision API key not configured; set google_vision_key in Settings", nil)
		}
		return NewGoogleVision(GoogleConfig{APIKey: settings.GoogleVisionKey, Language: lang}, logger), nil

	case constants.EngineAzure:
		if settings.AzureOCRKey == "" || settings.AzureOCREndpoint == "" {
			return nil, common.NewConfigError("azure", "Azure OCR credentials (API key and endpoint) not configured", nil)
		}
		return NewAzure(AzureConfig{APIKey: settings.AzureOCRKey, Endpoint: settings.AzureOCREndpoint, Language: lang}, logger), nil

	case constants.EngineCustom:
		if settings.CustomOCREndpoint == "" {
			return nil, common.NewConfigError("custom", "Custom OCR endpoint URL not configured", nil)
		}
		return NewCustom(CustomConfig{Endpoint: settings.CustomOCREndpoint, APIKey: settings.CustomOCRKey, Language: lang}, logger), nil

	case constants.EngineLocal:
		if settings.LocalOCRPath == "" {
			return nil, common.NewConfigError("local", "Local OCR executable path not configured", nil)
		}
		if _, err := os.Stat(settings.LocalOCRPath); err != nil {
			return nil, common.NewConfigError("local", fmt.Sprintf("OCR executable not found: %s", settings.LocalOCRPath), err)
		}
		return NewLocal(LocalConfig{ExecutablePath: settings.LocalOCRPath, Language: tesseractLang(lang)}, logger), nil
	}

	return nil, common.NewConfigError(name,
		fmt.Sprintf("unknown OCR provider %q; valid options: %v", name, constants.OCREngineNames), nil)
}

// tesseractLang maps BCP-47-ish settings codes onto tesseract's three-letter
// codes for the common cases.
func tesseractLang(lang string) string {
	switch lang {
	case "", "auto", "en":
		return "eng"
	case "bn":
		return "ben"
	case "hi":
		return "hin"
	case "ar":
		return "ara"
	}
	return lang
}
