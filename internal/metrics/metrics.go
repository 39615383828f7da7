// Package metrics exposes extraction pipeline counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the pipeline's Prometheus metrics. Register it once at
// startup; a nil *Collector is a valid no-op so tests can skip metrics.
type Collector struct {
	batchesSubmitted prometheus.Counter
	batchesCompleted prometheus.Counter
	batchesFailed    *prometheus.CounterVec

	imagesProcessed prometheus.Counter
	imagesSkipped   prometheus.Counter
	visionFallbacks prometheus.Counter

	tokensConsumed prometheus.Counter
	batchLatency   prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		batchesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_batches_submitted_total",
			Help: "Total number of batches submitted for extraction",
		}),
		batchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_batches_completed_total",
			Help: "Total number of batches completed successfully",
		}),
		batchesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extraction_batches_failed_total",
			Help: "Total number of batches ended in a terminal error, by kind",
		}, []string{"kind"}),
		imagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_images_processed_total",
			Help: "Total number of images that produced a result",
		}),
		imagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_images_skipped_total",
			Help: "Total number of images skipped after a non-fatal failure",
		}),
		visionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_vision_fallbacks_total",
			Help: "Total number of images extracted via vision instead of OCR text",
		}),
		tokensConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extraction_tokens_consumed_total",
			Help: "Total LLM tokens consumed across all batches",
		}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_batch_duration_seconds",
			Help:    "Wall-clock batch processing duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	reg.MustRegister(c.batchesSubmitted, c.batchesCompleted, c.batchesFailed,
		c.imagesProcessed, c.imagesSkipped, c.visionFallbacks,
		c.tokensConsumed, c.batchLatency)
	return c
}

func (c *Collector) BatchSubmitted() {
	if c == nil {
		return
	}
	c.batchesSubmitted.Inc()
}

func (c *Collector) BatchCompleted(seconds float64) {
	if c == nil {
		return
	}
	c.batchesCompleted.Inc()
	c.batchLatency.Observe(seconds)
}

func (c *Collector) BatchFailed(kind string) {
	if c == nil {
		return
	}
	c.batchesFailed.WithLabelValues(kind).Inc()
}

func (c *Collector) ImageProcessed(usedVision bool) {
	if c == nil {
		return
	}
	c.imagesProcessed.Inc()
	if usedVision {
		c.visionFallbacks.Inc()
	}
}

func (c *Collector) ImageSkipped() {
	if c == nil {
		return
	}
	c.imagesSkipped.Inc()
}

func (c *Collector) TokensConsumed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.tokensConsumed.Add(float64(n))
}
