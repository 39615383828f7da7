// Package progress tracks batch job state for the polling API. Records are
// small and short-lived; the in-memory store expires them lazily after a TTL
// so abandoned pollers do not leak.
package progress

import (
	"math"
	"sync"
	"time"

	"github.com/DruboPaul/web-surveyscriber/constants"
)

// Record is the polling payload for one job. The JSON keys are part of the
// client contract.
type Record struct {
	JobID      string               `json:"job_id"`
	BatchID    string               `json:"batch_id,omitempty"`
	Status     constants.JobStatus  `json:"status"`
	Stage      string               `json:"stage,omitempty"`
	Processed  int                  `json:"processed"`
	Total      int                  `json:"total"`
	Percentage float64              `json:"percentage"`
	ErrorMsg   string               `json:"error_message,omitempty"`
	Rows       int                  `json:"rows,omitempty"`
	ExcelPath  string               `json:"excel_path,omitempty"`
	CSVPath    string               `json:"csv_path,omitempty"`
	Tokens     int                  `json:"total_tokens,omitempty"`

	updatedAt time.Time
}

// Percentage computes processed/total as a percentage rounded to one decimal
// place. A zero total yields 0, never NaN.
func Percentage(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(processed)/float64(total)*1000) / 10
}

// Store is what the processor and the status endpoint share.
type Store interface {
	Create(jobID, batchID string, total int)
	Update(jobID string, mutate func(*Record))
	Get(jobID string) (Record, bool)
}

// MemoryStore keeps records in a map guarded by a RWMutex. Expired records
// are swept lazily on writes rather than by a background goroutine.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]*Record
}

const defaultTTL = time.Hour

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]*Record),
	}
}

func (s *MemoryStore) Create(jobID, batchID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.records[jobID] = &Record{
		JobID:     jobID,
		BatchID:   batchID,
		Status:    constants.JobStatusQueued,
		Total:     total,
		updatedAt: s.now(),
	}
}

// Update applies mutate to the record under the lock and recomputes the
// percentage. Updates to unknown jobs are dropped.
func (s *MemoryStore) Update(jobID string, mutate func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return
	}
	mutate(r)
	r.Percentage = Percentage(r.Processed, r.Total)
	r.updatedAt = s.now()
}

// Get returns a copy of the record. Unknown or expired jobs report a
// not_found record so pollers always get a well-formed payload.
func (s *MemoryStore) Get(jobID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[jobID]
	if !ok || s.now().Sub(r.updatedAt) > s.ttl {
		return Record{JobID: jobID, Status: constants.JobStatusNotFound}, false
	}
	return *r, true
}

func (s *MemoryStore) sweepLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, r := range s.records {
		if r.updatedAt.Before(cutoff) {
			delete(s.records, id)
		}
	}
}
