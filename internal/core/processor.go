// Package core runs the batch extraction state machine: queued, processing,
// then completed or a terminal error kind.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
	"github.com/DruboPaul/web-surveyscriber/internal/export"
	"github.com/DruboPaul/web-surveyscriber/internal/llm"
	"github.com/DruboPaul/web-surveyscriber/internal/metrics"
	"github.com/DruboPaul/web-surveyscriber/internal/ocr"
	"github.com/DruboPaul/web-surveyscriber/internal/pipeline"
	"github.com/DruboPaul/web-surveyscriber/internal/progress"
	"github.com/DruboPaul/web-surveyscriber/internal/repository"
	"github.com/DruboPaul/web-surveyscriber/internal/script"
	"github.com/DruboPaul/web-surveyscriber/internal/usage"
)

// BatchJob carries everything a worker needs to process one submitted batch.
type BatchJob struct {
	JobID       string
	BatchID     string
	Schema      entity.Schema
	OutputName  string
	OCRProvider string // override; empty uses the configured default
	AIProvider  string
	Parallel    bool
	SubmittedAt time.Time
}

// Exporter is the output-writing collaborator.
type Exporter interface {
	SaveExcel(results []*entity.ExtractionResult, schema entity.Schema, base string) (string, error)
	SaveCSV(results []*entity.ExtractionResult, schema entity.Schema, base string) (string, error)
}

// Processor coordinates the per-image step over a whole batch and drives the
// progress record. Repositories are optional; a nil batch or usage repo just
// disables history persistence.
type Processor struct {
	logger    *slog.Logger
	settings  *common.SettingsStore
	uploadDir string

	step     *pipeline.Step
	tracker  progress.Store
	exporter Exporter
	batches  repository.BatchRepository
	usageRep repository.UsageRepository
	metrics  *metrics.Collector

	maxWorkers int
}

func NewProcessor(
	logger *slog.Logger,
	settings *common.SettingsStore,
	uploadDir string,
	step *pipeline.Step,
	tracker progress.Store,
	exporter Exporter,
	batches repository.BatchRepository,
	usageRep repository.UsageRepository,
	collector *metrics.Collector,
	maxWorkers int,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Processor{
		logger:     logger,
		settings:   settings,
		uploadDir:  uploadDir,
		step:       step,
		tracker:    tracker,
		exporter:   exporter,
		batches:    batches,
		usageRep:   usageRep,
		metrics:    collector,
		maxWorkers: maxWorkers,
	}
}

// listImages enumerates the batch directory in lexical order, keeping only
// recognized image files.
func (p *Processor) listImages(batchID string) ([]entity.ImageRef, error) {
	dir := filepath.Join(p.uploadDir, batchID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrBatchNotFound
		}
		return nil, fmt.Errorf("read batch dir: %w", err)
	}
	var images []entity.ImageRef
	for _, e := range entries {
		if e.IsDir() || !constants.IsAllowedImage(e.Name()) {
			continue
		}
		images = append(images, entity.NewImageRef(filepath.Join(dir, e.Name())))
	}
	return images, nil
}

// Submit validates the batch and provider configuration, creates the queued
// progress record, and returns the job to enqueue. Configuration problems
// surface here, before any image is touched.
func (p *Processor) Submit(batchID string, schema entity.Schema, outputName, ocrName, aiName string, parallel bool) (*BatchJob, error) {
	images, err := p.listImages(batchID)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, common.ErrNoImages
	}

	settings := p.settings.Get()
	if _, err := ocr.Resolve(ocrName, settings, p.logger); err != nil {
		return nil, err
	}
	if _, err := llm.Resolve(aiName, settings, p.logger); err != nil {
		return nil, err
	}

	job := &BatchJob{
		JobID:       uuid.NewString(),
		BatchID:     batchID,
		Schema:      schema,
		OutputName:  outputName,
		OCRProvider: ocrName,
		AIProvider:  aiName,
		Parallel:    parallel,
		SubmittedAt: time.Now(),
	}
	p.tracker.Create(job.JobID, batchID, len(images))
	if p.batches != nil {
		if err := p.batches.CreateBatch(context.Background(), batchID, len(images)); err != nil {
			p.logger.Warn("batch.create.save_failed", "batch_id", batchID, "err", err)
		}
	}
	p.metrics.BatchSubmitted()
	p.logger.Info("batch.submitted", "job_id", job.JobID, "batch_id", batchID, "images", len(images))
	return job, nil
}

// ProcessBatch runs one job to its terminal state. The error return is for
// the queue's logging only; the user-visible outcome lives in the tracker.
func (p *Processor) ProcessBatch(ctx context.Context, job *BatchJob) error {
	start := time.Now()

	settings := p.settings.Get()
	engine, err := ocr.Resolve(job.OCRProvider, settings, p.logger)
	if err != nil {
		return p.fail(job, constants.ErrKindGeneric, err.Error(), 0)
	}
	provider, err := llm.Resolve(job.AIProvider, settings, p.logger)
	if err != nil {
		return p.fail(job, constants.ErrKindGeneric, err.Error(), 0)
	}

	// Re-enumerate so images appended after submission are included.
	images, err := p.listImages(job.BatchID)
	if err != nil {
		return p.fail(job, constants.ErrKindBatchNotFound, common.UserMessage(constants.ErrKindBatchNotFound), 0)
	}
	if len(images) == 0 {
		return p.fail(job, constants.ErrKindNoImages, common.UserMessage(constants.ErrKindNoImages), 0)
	}

	p.tracker.Update(job.JobID, func(r *progress.Record) {
		r.Status = constants.JobStatusProcessing
		r.Total = len(images)
		r.Stage = "Starting extraction"
	})

	// One classification of the joined field names routes the whole batch.
	schemaLatin := script.IsLatinDominant(job.Schema.Joined(), script.SchemaThreshold)
	if !schemaLatin {
		p.logger.Info("batch.schema.nonlatin", "job_id", job.JobID, "hint", "vision extraction for all images")
	}

	var results []*entity.ExtractionResult
	if job.Parallel && p.maxWorkers > 1 {
		results, err = p.runPool(ctx, job, images, engine, provider, schemaLatin)
	} else {
		results, err = p.runSequential(ctx, job, images, engine, provider, schemaLatin)
	}
	if err != nil {
		// runSequential/runPool already moved the tracker to its terminal
		// error state.
		return err
	}

	return p.finalize(ctx, job, provider, results, start)
}

func (p *Processor) runSequential(ctx context.Context, job *BatchJob, images []entity.ImageRef,
	engine ocr.Engine, provider llm.Provider, schemaLatin bool) ([]*entity.ExtractionResult, error) {

	var results []*entity.ExtractionResult
	for i, img := range images {
		p.tracker.Update(job.JobID, func(r *progress.Record) {
			r.Stage = fmt.Sprintf("Processing image %d of %d", i+1, len(images))
		})

		res, err := p.step.ExtractOne(ctx, img, job.Schema, engine, provider, schemaLatin)
		if err != nil {
			kind := common.ClassifyExtractionError(err)
			if kind.Fatal() {
				processed := i + 1
				p.logger.Error("batch.fatal", "job_id", job.JobID, "file", img.Filename, "kind", string(kind), "err", err)
				return nil, p.fail(job, kind, common.UserMessage(kind), processed)
			}
			p.logger.Warn("batch.image.skipped", "job_id", job.JobID, "file", img.Filename, "err", err)
			p.metrics.ImageSkipped()
			p.advance(job.JobID, i+1)
			continue
		}

		results = append(results, res)
		p.metrics.ImageProcessed(res.UsedVision)
		p.advance(job.JobID, i+1)
	}
	return results, nil
}

func (p *Processor) advance(jobID string, processed int) {
	p.tracker.Update(jobID, func(r *progress.Record) {
		if processed > r.Processed {
			r.Processed = processed
		}
	})
}

// fail moves the job to its terminal error state. Always returns an error
// carrying the user message, for the queue log.
func (p *Processor) fail(job *BatchJob, kind constants.ErrorKind, msg string, processed int) error {
	p.tracker.Update(job.JobID, func(r *progress.Record) {
		r.Status = kind.Status()
		r.Stage = ""
		r.ErrorMsg = msg
		if processed > r.Processed {
			r.Processed = processed
		}
	})
	p.metrics.BatchFailed(string(kind))
	if p.batches != nil {
		_ = p.batches.SetBatchStatus(context.Background(), job.BatchID, string(kind.Status()))
	}
	return fmt.Errorf("batch %s: %s", job.BatchID, msg)
}

func (p *Processor) finalize(ctx context.Context, job *BatchJob, provider llm.Provider,
	results []*entity.ExtractionResult, start time.Time) error {
	if len(results) == 0 {
		return p.fail(job, constants.ErrKindNoValidData, common.UserMessage(constants.ErrKindNoValidData), 0)
	}

	p.tracker.Update(job.JobID, func(r *progress.Record) {
		r.Stage = "Writing output files"
	})

	base := export.BaseName(job.OutputName)
	excelPath, err := p.exporter.SaveExcel(results, job.Schema, base)
	if err != nil {
		return p.fail(job, constants.ErrKindGeneric, "Failed to write output files.", 0)
	}
	csvPath, err := p.exporter.SaveCSV(results, job.Schema, base)
	if err != nil {
		return p.fail(job, constants.ErrKindGeneric, "Failed to write output files.", 0)
	}

	usages := make([]*entity.TokenUsage, 0, len(results))
	for _, r := range results {
		usages = append(usages, r.Usage)
	}
	totals := usage.Aggregate(usages)
	totals.Provider = string(provider.Name())
	totals.Images = len(results)

	if p.batches != nil {
		if err := p.batches.SaveDocuments(ctx, job.BatchID, results); err != nil {
			p.logger.Warn("batch.history.save_failed", "job_id", job.JobID, "err", err)
		}
		_ = p.batches.SaveHistory(ctx, job.BatchID, string(constants.JobStatusCompleted), len(results), excelPath, csvPath)
		_ = p.batches.SetBatchStatus(ctx, job.BatchID, string(constants.JobStatusCompleted))
	}
	if p.usageRep != nil && totals.TotalTokens > 0 {
		if err := p.usageRep.SaveUsage(ctx, job.BatchID, totals); err != nil {
			p.logger.Warn("batch.usage.save_failed", "job_id", job.JobID, "err", err)
		}
	}

	p.tracker.Update(job.JobID, func(r *progress.Record) {
		r.Status = constants.JobStatusCompleted
		r.Stage = ""
		r.Processed = r.Total
		r.Rows = len(results)
		r.ExcelPath = excelPath
		r.CSVPath = csvPath
		r.Tokens = totals.TotalTokens
	})
	p.metrics.BatchCompleted(time.Since(start).Seconds())
	p.metrics.TokensConsumed(totals.TotalTokens)
	p.logger.Info("batch.completed", "job_id", job.JobID, "rows", len(results),
		"tokens", totals.TotalTokens, "cost_cents", totals.CostCents,
		"elapsed_ms", time.Since(start).Milliseconds())
	return nil
}
