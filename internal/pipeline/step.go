// Package pipeline implements the per-image extraction step: decide between
// OCR-then-text extraction and direct vision extraction, run the chosen path,
// and assemble the result with provenance and token usage.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
	"github.com/DruboPaul/web-surveyscriber/internal/llm"
	"github.com/DruboPaul/web-surveyscriber/internal/ocr"
	"github.com/DruboPaul/web-surveyscriber/internal/script"
)

// warning messages attached to results are capped so a provider stack trace
// cannot blow up the output document.
const maxWarningLen = 100

// Step runs one image through the OCR/vision decision and extraction.
type Step struct {
	CallTimeout time.Duration // per upstream call; zero disables the cap
	Logger      *slog.Logger
}

func NewStep(callTimeout time.Duration, logger *slog.Logger) *Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &Step{CallTimeout: callTimeout, Logger: logger}
}

// ExtractOne processes a single image. schemaLatinHint is the batch-level
// classification of the schema's field names: when false the requested fields
// are non-Latin and OCR is skipped outright in favor of vision.
//
// OCR failures never fail the image; they downgrade to vision extraction with
// a warning carried on the result. Extraction (LLM) failures propagate to the
// caller for classification.
func (s *Step) ExtractOne(ctx context.Context, image entity.ImageRef, schema entity.Schema,
	engine ocr.Engine, provider llm.Provider, schemaLatinHint bool) (*entity.ExtractionResult, error) {

	res := &entity.ExtractionResult{SourceFile: image.Filename}

	text := ""
	useVision := true
	switch {
	case !schemaLatinHint:
		res.OCRStatus = constants.OCRStatusSkipped
	case engine == nil:
		res.OCRStatus = constants.OCRStatusSkipped
	default:
		t, err := s.call(ctx, func(ctx context.Context) (string, error) {
			return engine.GetText(ctx, image.Path)
		})
		// Engines are not required to trim; whitespace-only output counts
		// as empty.
		t = strings.TrimSpace(t)
		switch {
		case err != nil:
			res.OCRStatus = constants.OCRStatusFailed
			res.OCRWarning = common.Truncate(err.Error(), maxWarningLen)
			s.Logger.Warn("pipeline.ocr.failed", "file", image.Filename, "error", err)
		case t == "":
			res.OCRStatus = constants.OCRStatusEmpty
		default:
			res.OCRStatus = constants.OCRStatusSuccess
			if script.IsLatinDominant(t, script.DefaultThreshold) {
				text = t
				useVision = false
			}
			// Non-Latin OCR output is usable evidence that OCR ran fine,
			// just not as LLM input; fall through to vision.
		}
	}

	var (
		raw   map[string]any
		usage *entity.TokenUsage
		err   error
	)
	if useVision {
		raw, usage, err = s.callExtract(ctx, func(ctx context.Context) (map[string]any, *entity.TokenUsage, error) {
			return provider.ExtractImage(ctx, image.Path, schema)
		})
	} else {
		raw, usage, err = s.callExtract(ctx, func(ctx context.Context) (map[string]any, *entity.TokenUsage, error) {
			return provider.ExtractText(ctx, text, schema)
		})
	}
	if err != nil {
		return nil, err
	}

	res.Fields = schema.Enforce(raw)
	res.AIStatus = "success"
	res.UsedVision = useVision
	res.Usage = usage
	s.Logger.Info("pipeline.extract.ok", "file", image.Filename,
		"ocr_status", string(res.OCRStatus), "used_vision", useVision)
	return res, nil
}

func (s *Step) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if s.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CallTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (s *Step) callExtract(ctx context.Context,
	fn func(context.Context) (map[string]any, *entity.TokenUsage, error)) (map[string]any, *entity.TokenUsage, error) {
	if s.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CallTimeout)
		defer cancel()
	}
	return fn(ctx)
}
