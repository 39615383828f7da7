package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
	"github.com/DruboPaul/web-surveyscriber/internal/pipeline"
	"github.com/DruboPaul/web-surveyscriber/internal/progress"
	"github.com/DruboPaul/web-surveyscriber/internal/repository"
	"github.com/DruboPaul/web-surveyscriber/internal/usage"
)

// scriptedProvider fails or succeeds per source filename.
type scriptedProvider struct {
	mu     sync.Mutex
	fails  map[string]error // filename -> error
	calls  []string
}

func (s *scriptedProvider) Name() constants.AIProviderName { return constants.ProviderOpenAI }

func (s *scriptedProvider) extract(path string) (map[string]any, *entity.TokenUsage, error) {
	name := filepath.Base(path)
	s.mu.Lock()
	s.calls = append(s.calls, name)
	err := s.fails[name]
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	return map[string]any{"name": "value-" + name},
		&entity.TokenUsage{TotalTokens: 100, Model: "gpt-4o-mini"}, nil
}

func (s *scriptedProvider) ExtractText(_ context.Context, _ string, _ entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	return nil, nil, errors.New("unexpected text extraction in vision-only test")
}

func (s *scriptedProvider) ExtractImage(_ context.Context, path string, _ entity.Schema) (map[string]any, *entity.TokenUsage, error) {
	return s.extract(path)
}

type fakeExporter struct {
	mu    sync.Mutex
	saved int
	rows  []*entity.ExtractionResult
}

func (f *fakeExporter) SaveExcel(results []*entity.ExtractionResult, _ entity.Schema, base string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	f.rows = results
	return "/out/" + base + ".xlsx", nil
}

func (f *fakeExporter) SaveCSV(results []*entity.ExtractionResult, _ entity.Schema, base string) (string, error) {
	return "/out/" + base + ".csv", nil
}

type fakeBatchRepo struct {
	mu       sync.Mutex
	created  map[string]int
	statuses map[string]string
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{created: map[string]int{}, statuses: map[string]string{}}
}

func (f *fakeBatchRepo) CreateBatch(_ context.Context, batchID string, imageCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[batchID] = imageCount
	f.statuses[batchID] = "queued"
	return nil
}

func (f *fakeBatchRepo) SetBatchStatus(_ context.Context, batchID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[batchID] = status
	return nil
}

func (f *fakeBatchRepo) SaveDocuments(context.Context, string, []*entity.ExtractionResult) error {
	return nil
}

func (f *fakeBatchRepo) SaveHistory(context.Context, string, string, int, string, string) error {
	return nil
}

type fakeUsageRepo struct {
	mu    sync.Mutex
	saved []usage.Totals
}

func (f *fakeUsageRepo) SaveUsage(_ context.Context, _ string, totals usage.Totals) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, totals)
	return nil
}

func (f *fakeUsageRepo) Summary(context.Context, time.Time) (*repository.UsageSummary, error) {
	return &repository.UsageSummary{}, nil
}

func (f *fakeUsageRepo) Records(context.Context, time.Time) ([]repository.UsageRecord, error) {
	return nil, nil
}

func writeBatch(t *testing.T, uploadDir, batchID string, n int) {
	t.Helper()
	dir := filepath.Join(uploadDir, batchID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("img_%02d.jpg", i))
		require.NoError(t, os.WriteFile(path, []byte("fake"), 0o644))
	}
}

type testHarness struct {
	proc     *Processor
	tracker  *progress.MemoryStore
	exporter *fakeExporter
	provider *scriptedProvider
	batches  *fakeBatchRepo
	usageRep *fakeUsageRepo
}

func newHarness(t *testing.T, provider *scriptedProvider, maxWorkers int) (*testHarness, string) {
	t.Helper()
	uploadDir := t.TempDir()
	tracker := progress.NewMemoryStore(0)
	exporter := &fakeExporter{}
	batches := newFakeBatchRepo()
	usageRep := &fakeUsageRepo{}
	settings := common.NewSettingsStore("", common.Settings{OCRProvider: "none", AIProvider: "openai", AIAPIKey: "k"})
	proc := NewProcessor(nil, settings, uploadDir, pipeline.NewStep(time.Minute, nil),
		tracker, exporter, batches, usageRep, nil, maxWorkers)
	return &testHarness{proc: proc, tracker: tracker, exporter: exporter,
		provider: provider, batches: batches, usageRep: usageRep}, uploadDir
}

// run drives the batch directly through the internal loops so the scripted
// provider is used instead of a resolved real client.
func (h *testHarness) run(t *testing.T, batchID string, parallel bool) progress.Record {
	t.Helper()
	schema := entity.SchemaFromFields([]string{"name"})
	job := &BatchJob{JobID: "job-" + batchID, BatchID: batchID, Schema: schema, Parallel: parallel}
	images, err := h.proc.listImages(batchID)
	require.NoError(t, err)
	h.tracker.Create(job.JobID, batchID, len(images))
	h.tracker.Update(job.JobID, func(r *progress.Record) { r.Status = constants.JobStatusProcessing })

	var results []*entity.ExtractionResult
	if parallel {
		results, err = h.proc.runPool(context.Background(), job, images, nil, h.provider, true)
	} else {
		results, err = h.proc.runSequential(context.Background(), job, images, nil, h.provider, true)
	}
	if err == nil {
		_ = h.proc.finalize(context.Background(), job, h.provider, results, time.Now())
	}
	rec, _ := h.tracker.Get(job.JobID)
	return rec
}

func TestProcessBatchSequential(t *testing.T) {
	t.Run("fatal error halts the batch", func(t *testing.T) {
		p := &scriptedProvider{fails: map[string]error{
			"img_02.jpg": errors.New("openai status 401: unauthorized"),
		}}
		h, uploadDir := newHarness(t, p, 1)
		writeBatch(t, uploadDir, "b1", 5)

		rec := h.run(t, "b1", false)
		assert.Equal(t, constants.ErrKindInvalidKey.Status(), rec.Status)
		assert.Equal(t, 2, rec.Processed)
		assert.Equal(t, "API key is invalid. Check Settings.", rec.ErrorMsg)
		// Images 3-5 never attempted.
		assert.Len(t, p.calls, 2)
	})

	t.Run("transient error skips only that image", func(t *testing.T) {
		p := &scriptedProvider{fails: map[string]error{
			"img_01.jpg": errors.New("malformed response body"),
		}}
		h, uploadDir := newHarness(t, p, 1)
		writeBatch(t, uploadDir, "b2", 3)

		rec := h.run(t, "b2", false)
		assert.Equal(t, constants.JobStatusCompleted, rec.Status)
		assert.Equal(t, 2, rec.Rows)
		assert.Equal(t, 3, rec.Processed)
		assert.Equal(t, 100.0, rec.Percentage)
		assert.Equal(t, 200, rec.Tokens)
		assert.Len(t, h.exporter.rows, 2)

		require.Len(t, h.usageRep.saved, 1)
		totals := h.usageRep.saved[0]
		assert.Equal(t, "openai", totals.Provider)
		assert.Equal(t, 2, totals.Images)
		assert.Equal(t, 200, totals.TotalTokens)
	})

	t.Run("all images failing yields no_valid_data", func(t *testing.T) {
		p := &scriptedProvider{fails: map[string]error{
			"img_01.jpg": errors.New("bad response"),
			"img_02.jpg": errors.New("bad response"),
		}}
		h, uploadDir := newHarness(t, p, 1)
		writeBatch(t, uploadDir, "b3", 2)

		rec := h.run(t, "b3", false)
		assert.Equal(t, constants.ErrKindNoValidData.Status(), rec.Status)
	})

	t.Run("rate limit classified fatal", func(t *testing.T) {
		p := &scriptedProvider{fails: map[string]error{
			"img_01.jpg": errors.New("anthropic status 429: rate limit exceeded"),
		}}
		h, uploadDir := newHarness(t, p, 1)
		writeBatch(t, uploadDir, "b4", 3)

		rec := h.run(t, "b4", false)
		assert.Equal(t, constants.ErrKindRateLimit.Status(), rec.Status)
		assert.Len(t, p.calls, 1)
	})
}

func TestProcessBatchPool(t *testing.T) {
	t.Run("all succeed out of order", func(t *testing.T) {
		p := &scriptedProvider{}
		h, uploadDir := newHarness(t, p, 4)
		writeBatch(t, uploadDir, "b1", 8)

		rec := h.run(t, "b1", true)
		assert.Equal(t, constants.JobStatusCompleted, rec.Status)
		assert.Equal(t, 8, rec.Rows)
		assert.Equal(t, 8, rec.Processed)
		assert.Equal(t, 100.0, rec.Percentage)
	})

	t.Run("fatal error stops dispatch", func(t *testing.T) {
		p := &scriptedProvider{fails: map[string]error{
			"img_01.jpg": errors.New("quota exceeded, check billing"),
		}}
		h, uploadDir := newHarness(t, p, 2)
		writeBatch(t, uploadDir, "b2", 6)

		rec := h.run(t, "b2", true)
		assert.Equal(t, constants.ErrKindInsufficientCredits.Status(), rec.Status)
		assert.LessOrEqual(t, rec.Processed, rec.Total)
	})
}

func TestSubmit(t *testing.T) {
	schema := entity.SchemaFromFields([]string{"name"})

	t.Run("missing batch dir", func(t *testing.T) {
		h, _ := newHarness(t, &scriptedProvider{}, 1)
		_, err := h.proc.Submit("missing", schema, "", "", "", false)
		assert.ErrorIs(t, err, common.ErrBatchNotFound)
	})

	t.Run("empty batch dir", func(t *testing.T) {
		h, uploadDir := newHarness(t, &scriptedProvider{}, 1)
		require.NoError(t, os.MkdirAll(filepath.Join(uploadDir, "empty"), 0o755))
		_, err := h.proc.Submit("empty", schema, "", "", "", false)
		assert.ErrorIs(t, err, common.ErrNoImages)
	})

	t.Run("config error surfaces synchronously", func(t *testing.T) {
		uploadDir := t.TempDir()
		proc := NewProcessor(nil, common.NewSettingsStore("", common.Settings{AIProvider: "openai"}), uploadDir,
			pipeline.NewStep(0, nil), progress.NewMemoryStore(0), &fakeExporter{}, nil, nil, nil, 1)
		writeBatch(t, uploadDir, "b", 1)
		_, err := proc.Submit("b", schema, "", "", "", false)
		var cfgErr *common.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("batch row recorded at submission", func(t *testing.T) {
		h, uploadDir := newHarness(t, &scriptedProvider{}, 1)
		writeBatch(t, uploadDir, "b", 3)
		_, err := h.proc.Submit("b", schema, "", "", "", false)
		require.NoError(t, err)
		assert.Equal(t, 3, h.batches.created["b"])
		assert.Equal(t, "queued", h.batches.statuses["b"])
	})

	t.Run("two submissions get independent jobs", func(t *testing.T) {
		h, uploadDir := newHarness(t, &scriptedProvider{}, 1)
		writeBatch(t, uploadDir, "b", 2)
		j1, err := h.proc.Submit("b", schema, "", "", "", false)
		require.NoError(t, err)
		j2, err := h.proc.Submit("b", schema, "", "", "", false)
		require.NoError(t, err)
		assert.NotEqual(t, j1.JobID, j2.JobID)

		r1, ok := h.tracker.Get(j1.JobID)
		require.True(t, ok)
		r2, ok := h.tracker.Get(j2.JobID)
		require.True(t, ok)
		assert.Equal(t, constants.JobStatusQueued, r1.Status)
		assert.Equal(t, constants.JobStatusQueued, r2.Status)
	})
}

func TestListImagesFiltersNonImages(t *testing.T) {
	h, uploadDir := newHarness(t, &scriptedProvider{}, 1)
	dir := filepath.Join(uploadDir, "b")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.PNG"), []byte("x"), 0o644))

	images, err := h.proc.listImages("b")
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "a.jpg", images[0].Filename)
	assert.Equal(t, "b.PNG", images[1].Filename)
}
