package core

import (
	"context"
	"runtime"
	"sync"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
	"github.com/DruboPaul/web-surveyscriber/internal/llm"
	"github.com/DruboPaul/web-surveyscriber/internal/ocr"
	"github.com/DruboPaul/web-surveyscriber/internal/progress"
)

// poolCap bounds the per-batch image workers regardless of configuration;
// provider rate limits make more concurrency counterproductive.
const poolCap = 4

func (p *Processor) poolSize() int {
	n := p.maxWorkers
	if cpus := runtime.NumCPU(); cpus < n {
		n = cpus
	}
	if n > poolCap {
		n = poolCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// runPool processes images concurrently with a bounded worker pool. Results
// are collected as they complete; the first fatal error stops the dispatch of
// further images. The processed counter advances once per completion, in
// completion order, and never decreases.
func (p *Processor) runPool(ctx context.Context, job *BatchJob, images []entity.ImageRef,
	engine ocr.Engine, provider llm.Provider, schemaLatin bool) ([]*entity.ExtractionResult, error) {

	workers := p.poolSize()

	var (
		mu        sync.Mutex
		results   []*entity.ExtractionResult
		processed int
		fatalKind constants.ErrorKind
	)

	tasks := make(chan entity.ImageRef)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for img := range tasks {
				res, err := p.step.ExtractOne(ctx, img, job.Schema, engine, provider, schemaLatin)

				mu.Lock()
				processed++
				done := processed
				if err != nil {
					kind := common.ClassifyExtractionError(err)
					if kind.Fatal() && fatalKind == "" {
						fatalKind = kind
					}
					mu.Unlock()
					if kind.Fatal() {
						p.logger.Error("batch.fatal", "job_id", job.JobID, "file", img.Filename, "kind", string(kind), "err", err)
					} else {
						p.logger.Warn("batch.image.skipped", "job_id", job.JobID, "file", img.Filename, "err", err)
						p.metrics.ImageSkipped()
					}
					p.advance(job.JobID, done)
					continue
				}
				results = append(results, res)
				mu.Unlock()

				p.metrics.ImageProcessed(res.UsedVision)
				p.advance(job.JobID, done)
				p.tracker.Update(job.JobID, func(r *progress.Record) {
					r.Stage = "Processed " + img.Filename
				})
			}
		}()
	}

dispatch:
	for _, img := range images {
		mu.Lock()
		stop := fatalKind != ""
		mu.Unlock()
		if stop {
			break dispatch
		}
		tasks <- img
	}
	close(tasks)
	wg.Wait()

	if fatalKind != "" {
		mu.Lock()
		done := processed
		mu.Unlock()
		return nil, p.fail(job, fatalKind, common.UserMessage(fatalKind), done)
	}
	return results, nil
}
