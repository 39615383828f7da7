package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

type BatchRepository interface {
	CreateBatch(ctx context.Context, batchID string, imageCount int) error
	SetBatchStatus(ctx context.Context, batchID, status string) error
	SaveDocuments(ctx context.Context, batchID string, results []*entity.ExtractionResult) error
	SaveHistory(ctx context.Context, batchID, status string, rows int, excelPath, csvPath string) error
}

type batchRepo struct {
	db  *DB
	log *slog.Logger
}

func NewBatchRepository(db *DB, log *slog.Logger) BatchRepository {
	if log == nil {
		log = slog.Default()
	}
	return &batchRepo{db: db, log: log}
}

// CreateBatch registers a batch row at submission. Re-submitting the same
// batch refreshes its image count and resets its status.
func (r *batchRepo) CreateBatch(ctx context.Context, batchID string, imageCount int) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO batches (id, created_at, image_count, status) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET image_count = excluded.image_count, status = excluded.status`),
		batchID, time.Now().UTC(), imageCount, "queued")
	if err != nil {
		r.log.Error("batch create failed", "batch_id", batchID, "err", err)
		return err
	}
	return nil
}

func (r *batchRepo) SetBatchStatus(ctx context.Context, batchID, status string) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE batches SET status = ? WHERE id = ?`), status, batchID)
	if err != nil {
		r.log.Error("batch status update failed", "batch_id", batchID, "err", err)
	}
	return err
}

// SaveDocuments stores the flattened result documents as JSON rows.
func (r *batchRepo) SaveDocuments(ctx context.Context, batchID string, results []*entity.ExtractionResult) error {
	for _, res := range results {
		doc, err := json.Marshal(res.Document())
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, r.db.rebind(
			`INSERT INTO documents (id, batch_id, source_file, fields, created_at) VALUES (?, ?, ?, ?, ?)`),
			uuid.NewString(), batchID, res.SourceFile, string(doc), time.Now().UTC())
		if err != nil {
			r.log.Error("document save failed", "batch_id", batchID, "file", res.SourceFile, "err", err)
			return err
		}
	}
	r.log.Info("documents saved", "batch_id", batchID, "count", len(results))
	return nil
}

func (r *batchRepo) SaveHistory(ctx context.Context, batchID, status string, rows int, excelPath, csvPath string) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO extraction_history (id, batch_id, status, rows, excel_path, csv_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), batchID, status, rows, excelPath, csvPath, time.Now().UTC())
	if err != nil {
		r.log.Error("history save failed", "batch_id", batchID, "err", err)
		return err
	}
	return nil
}
