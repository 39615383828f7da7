// Package server exposes the extraction pipeline over HTTP: batch upload,
// submission, progress polling, and usage reporting.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/core"
	"github.com/DruboPaul/web-surveyscriber/internal/progress"
	"github.com/DruboPaul/web-surveyscriber/internal/repository"
)

// Queue is the submission side of the background worker set.
type Queue interface {
	Enqueue(ctx context.Context, job *core.BatchJob) error
}

type Server struct {
	proc      *core.Processor
	queue     Queue
	tracker   progress.Store
	usageRepo repository.UsageRepository
	settings  *common.SettingsStore
	uploadDir string
	logger    *slog.Logger
}

func New(proc *core.Processor, queue Queue, tracker progress.Store,
	usageRepo repository.UsageRepository, settings *common.SettingsStore,
	uploadDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		proc:      proc,
		queue:     queue,
		tracker:   tracker,
		usageRepo: usageRepo,
		settings:  settings,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload/images", s.handleUpload)
	mux.HandleFunc("POST /api/extract/batch", s.handleExtractSync)
	mux.HandleFunc("POST /api/extract/batch/async", s.handleExtractAsync)
	mux.HandleFunc("GET /api/extract/batch/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/usage/summary", s.handleUsageSummary)
	mux.HandleFunc("GET /api/usage/report/download", s.handleUsageReport)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
