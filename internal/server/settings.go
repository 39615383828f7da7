package server

import (
	"encoding/json"
	"net/http"

	"github.com/DruboPaul/web-surveyscriber/internal/common"
)

// settingsResponse mirrors the settings bag with credentials reduced to
// presence flags so keys never travel back to the client.
type settingsResponse struct {
	OCRProvider       string `json:"ocr_provider"`
	OCRLanguage       string `json:"ocr_language"`
	AzureOCREndpoint  string `json:"azure_ocr_endpoint"`
	CustomOCREndpoint string `json:"custom_ocr_endpoint"`
	LocalOCRPath      string `json:"local_ocr_path"`
	AIProvider        string `json:"ai_provider"`
	CustomEndpoint    string `json:"custom_endpoint"`
	CustomModel       string `json:"custom_model"`
	EnableHistory     bool   `json:"enable_history"`

	HasAIAPIKey        bool `json:"has_ai_api_key"`
	HasGoogleVisionKey bool `json:"has_google_vision_key"`
	HasAzureOCRKey     bool `json:"has_azure_ocr_key"`
	HasCustomOCRKey    bool `json:"has_custom_ocr_key"`
}

func viewSettings(s common.Settings) settingsResponse {
	return settingsResponse{
		OCRProvider:       s.OCRProvider,
		OCRLanguage:       s.OCRLanguage,
		AzureOCREndpoint:  s.AzureOCREndpoint,
		CustomOCREndpoint: s.CustomOCREndpoint,
		LocalOCRPath:      s.LocalOCRPath,
		AIProvider:        s.AIProvider,
		CustomEndpoint:    s.CustomEndpoint,
		CustomModel:       s.CustomModel,
		EnableHistory:     s.EnableHistory,

		HasAIAPIKey:        s.AIAPIKey != "",
		HasGoogleVisionKey: s.GoogleVisionKey != "",
		HasAzureOCRKey:     s.AzureOCRKey != "",
		HasCustomOCRKey:    s.CustomOCRKey != "",
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewSettings(s.settings.Get()))
}

// handleUpdateSettings replaces the settings bag. Credential fields left
// empty keep their current values, so a read-modify-write round trip through
// the redacted GET response does not wipe stored keys.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in common.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cur := s.settings.Get()
	if in.AIAPIKey == "" {
		in.AIAPIKey = cur.AIAPIKey
	}
	if in.GoogleVisionKey == "" {
		in.GoogleVisionKey = cur.GoogleVisionKey
	}
	if in.AzureOCRKey == "" {
		in.AzureOCRKey = cur.AzureOCRKey
	}
	if in.CustomOCRKey == "" {
		in.CustomOCRKey = cur.CustomOCRKey
	}

	if err := s.settings.Update(in); err != nil {
		s.logger.Error("settings.save_failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	s.logger.Info("settings.updated", "ocr_provider", in.OCRProvider, "ai_provider", in.AIProvider)
	writeJSON(w, http.StatusOK, viewSettings(in))
}
