package entity

import (
	"path/filepath"

	"github.com/DruboPaul/web-surveyscriber/constants"
)

// ImageRef names one image inside a batch: the full path plus the short
// filename used in outputs and progress messages.
type ImageRef struct {
	Path     string
	Filename string
}

// NewImageRef derives the short identifier from the path.
func NewImageRef(path string) ImageRef {
	return ImageRef{Path: path, Filename: filepath.Base(path)}
}

// TokenUsage holds token counts for one LLM call, or an aggregate of them.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model,omitempty"`
}

// ExtractionResult is the outcome of one successfully processed image: the
// schema-shaped field values plus processing provenance and token usage.
// Results are append-only; nothing mutates them after creation.
type ExtractionResult struct {
	Fields     map[string]any
	SourceFile string

	OCRStatus  constants.OCRStatus
	AIStatus   string
	UsedVision bool
	OCRWarning string

	Usage *TokenUsage
}

// Reserved metadata keys, distinguishable from schema fields by the leading
// underscore (source_file predates the convention and is kept for
// compatibility with existing outputs).
const (
	KeySourceFile = "source_file"
	KeyOCRWarning = "_ocr_warning"
	KeyProcessing = "_processing"
	KeyTokenUsage = "_token_usage"
)

// Document flattens the result into the persisted/JSON form: schema fields
// plus the reserved metadata keys.
func (r *ExtractionResult) Document() map[string]any {
	doc := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc[KeySourceFile] = r.SourceFile
	if r.OCRWarning != "" {
		doc[KeyOCRWarning] = r.OCRWarning
	}
	doc[KeyProcessing] = map[string]any{
		"ocr_status":     string(r.OCRStatus),
		"ai_status":      r.AIStatus,
		"used_vision_ai": r.UsedVision,
	}
	if r.Usage != nil {
		doc[KeyTokenUsage] = r.Usage
	}
	return doc
}
