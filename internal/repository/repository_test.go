package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DruboPaul/web-surveyscriber/internal/entity"
	"github.com/DruboPaul/web-surveyscriber/internal/usage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestRebind(t *testing.T) {
	sqlite := &DB{}
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", sqlite.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	pg := &DB{postgres: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
}

func TestBatchRepository(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewBatchRepository(db, nil)

	require.NoError(t, repo.CreateBatch(ctx, "batch-1", 3))
	require.NoError(t, repo.SetBatchStatus(ctx, "batch-1", "completed"))

	// Re-submitting the same batch refreshes the row instead of failing.
	require.NoError(t, repo.CreateBatch(ctx, "batch-1", 5))
	var imageCount int
	var status string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT image_count, status FROM batches WHERE id = 'batch-1'`).Scan(&imageCount, &status))
	assert.Equal(t, 5, imageCount)
	assert.Equal(t, "queued", status)

	results := []*entity.ExtractionResult{
		{Fields: map[string]any{"name": "Rahim"}, SourceFile: "a.jpg"},
		{Fields: map[string]any{"name": "Karim"}, SourceFile: "b.jpg"},
	}
	require.NoError(t, repo.SaveDocuments(ctx, "batch-1", results))
	require.NoError(t, repo.SaveHistory(ctx, "batch-1", "completed", 2, "/out/x.xlsx", "/out/x.csv"))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE batch_id = 'batch-1'`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestUsageRepository(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repo := NewUsageRepository(db, nil)

	require.NoError(t, repo.SaveUsage(ctx, "batch-1", usage.Totals{
		Provider: "openai", Model: "gpt-4o-mini", Images: 4,
		PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, CostCents: 1,
	}))
	require.NoError(t, repo.SaveUsage(ctx, "batch-2", usage.Totals{
		Provider: "anthropic", Model: "gpt-4o", Images: 9,
		PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500, CostCents: 7,
	}))

	summary, err := repo.Summary(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1650, summary.MonthTokens)
	assert.Equal(t, 8, summary.MonthCost)
	assert.Equal(t, 1650, summary.WeekTokens)
	require.Len(t, summary.Daily, 1)
	assert.Equal(t, 1650, summary.Daily[0].Tokens)

	recs, err := repo.Records(ctx, time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	byBatch := map[string]UsageRecord{}
	for _, rec := range recs {
		byBatch[rec.BatchID] = rec
	}
	assert.Equal(t, "openai", byBatch["batch-1"].Provider)
	assert.Equal(t, 4, byBatch["batch-1"].Images)
	assert.Equal(t, "anthropic", byBatch["batch-2"].Provider)
	assert.Equal(t, 9, byBatch["batch-2"].Images)
}
