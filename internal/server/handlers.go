package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DruboPaul/web-surveyscriber/constants"
	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/core"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
)

const maxUploadBytes = 100 << 20

// handleUpload accepts multipart images and stores them under a batch
// directory. An existing batch_id appends to that batch; otherwise a new one
// is created.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form or upload too large")
		return
	}

	batchID := r.FormValue("batch_id")
	if batchID == "" {
		batchID = uuid.NewString()
	}
	dir := filepath.Join(s.uploadDir, batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("upload.mkdir.failed", "batch_id", batchID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no images in request (field name: images)")
		return
	}

	saved := 0
	skipped := 0
	for _, fh := range files {
		if !constants.IsAllowedImage(fh.Filename) {
			skipped++
			continue
		}
		src, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload: "+fh.Filename)
			return
		}
		dstPath := filepath.Join(dir, filepath.Base(fh.Filename))
		dst, err := os.Create(dstPath)
		if err != nil {
			src.Close()
			s.logger.Error("upload.save.failed", "file", fh.Filename, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		saved++
	}

	s.logger.Info("upload.ok", "batch_id", batchID, "saved", saved, "skipped", skipped)
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": batchID,
		"saved":    saved,
		"skipped":  skipped,
	})
}

type extractRequest struct {
	BatchID     string          `json:"batch_id"`
	Schema      json.RawMessage `json:"schema"`
	OutputName  string          `json:"output_name"`
	OCRProvider string          `json:"ocr_provider"`
	AIProvider  string          `json:"ai_provider"`
	Parallel    bool            `json:"parallel"`
}

func (s *Server) decodeExtractRequest(r *http.Request) (*extractRequest, entity.Schema, error) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.BatchID == "" {
		return nil, nil, errors.New("batch_id is required")
	}
	schema, err := entity.ParseSchemaJSON(req.Schema)
	if err != nil {
		return nil, nil, err
	}
	return &req, schema, nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) (*core.BatchJob, bool) {
	req, schema, err := s.decodeExtractRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	job, err := s.proc.Submit(req.BatchID, schema, req.OutputName, req.OCRProvider, req.AIProvider, req.Parallel)
	if err != nil {
		var cfgErr *common.ConfigError
		switch {
		case errors.Is(err, common.ErrBatchNotFound):
			writeError(w, http.StatusNotFound, common.UserMessage(constants.ErrKindBatchNotFound))
		case errors.Is(err, common.ErrNoImages):
			writeError(w, http.StatusBadRequest, common.UserMessage(constants.ErrKindNoImages))
		case errors.As(err, &cfgErr):
			writeError(w, http.StatusBadRequest, cfgErr.Hint)
		default:
			s.logger.Error("submit.failed", "batch_id", req.BatchID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return nil, false
	}
	return job, true
}

// handleExtractAsync queues the batch and returns the job id immediately.
func (s *Server) handleExtractAsync(w http.ResponseWriter, r *http.Request) {
	job, ok := s.submit(w, r)
	if !ok {
		return
	}
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"batch_id": job.BatchID,
		"status":   string(constants.JobStatusQueued),
	})
}

// handleExtractSync processes the batch inline and returns the terminal
// progress record. Intended for small batches.
func (s *Server) handleExtractSync(w http.ResponseWriter, r *http.Request) {
	job, ok := s.submit(w, r)
	if !ok {
		return
	}
	if err := s.proc.ProcessBatch(r.Context(), job); err != nil {
		s.logger.Warn("extract.sync.failed", "job_id", job.JobID, "err", err)
	}
	rec, _ := s.tracker.Get(job.JobID)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.tracker.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, rec)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	if s.usageRepo == nil {
		writeError(w, http.StatusNotFound, "usage history is disabled")
		return
	}
	summary, err := s.usageRepo.Summary(r.Context(), time.Now())
	if err != nil {
		s.logger.Error("usage.summary.failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleUsageReport streams the last N days of usage rows as CSV.
func (s *Server) handleUsageReport(w http.ResponseWriter, r *http.Request) {
	if s.usageRepo == nil {
		writeError(w, http.StatusNotFound, "usage history is disabled")
		return
	}
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	recs, err := s.usageRepo.Records(r.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		s.logger.Error("usage.report.failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="usage_report.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"date", "batch_id", "provider", "model", "images_processed", "prompt_tokens", "completion_tokens", "total_tokens", "cost_cents"})
	for _, rec := range recs {
		_ = cw.Write([]string{
			rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			rec.BatchID,
			rec.Provider,
			rec.Model,
			strconv.Itoa(rec.Images),
			strconv.Itoa(rec.PromptTokens),
			strconv.Itoa(rec.CompletionTokens),
			strconv.Itoa(rec.TotalTokens),
			strconv.Itoa(rec.CostCents),
		})
	}
	cw.Flush()
}
