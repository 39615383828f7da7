package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DruboPaul/web-surveyscriber/constants"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 0.0, Percentage(5, 0))
	assert.Equal(t, 50.0, Percentage(1, 2))
	assert.Equal(t, 33.3, Percentage(1, 3))
	assert.Equal(t, 66.7, Percentage(2, 3))
	assert.Equal(t, 100.0, Percentage(7, 7))
}

func TestMemoryStore(t *testing.T) {
	t.Run("lifecycle", func(t *testing.T) {
		s := NewMemoryStore(0)
		s.Create("job-1", "batch-1", 4)

		r, ok := s.Get("job-1")
		require.True(t, ok)
		assert.Equal(t, constants.JobStatusQueued, r.Status)
		assert.Equal(t, 4, r.Total)

		s.Update("job-1", func(r *Record) {
			r.Status = constants.JobStatusProcessing
			r.Processed = 3
			r.Stage = "Processing image 3 of 4"
		})
		r, ok = s.Get("job-1")
		require.True(t, ok)
		assert.Equal(t, 75.0, r.Percentage)
		assert.Equal(t, "Processing image 3 of 4", r.Stage)
	})

	t.Run("unknown job reports not_found", func(t *testing.T) {
		s := NewMemoryStore(0)
		r, ok := s.Get("missing")
		assert.False(t, ok)
		assert.Equal(t, constants.JobStatusNotFound, r.Status)
		assert.Equal(t, "missing", r.JobID)
	})

	t.Run("update of unknown job is dropped", func(t *testing.T) {
		s := NewMemoryStore(0)
		s.Update("missing", func(r *Record) { r.Processed = 1 })
		_, ok := s.Get("missing")
		assert.False(t, ok)
	})

	t.Run("expired record reads as not_found", func(t *testing.T) {
		s := NewMemoryStore(time.Minute)
		now := time.Unix(1000, 0)
		s.now = func() time.Time { return now }

		s.Create("job-1", "", 1)
		now = now.Add(2 * time.Minute)
		_, ok := s.Get("job-1")
		assert.False(t, ok)
	})

	t.Run("sweep on create removes stale records", func(t *testing.T) {
		s := NewMemoryStore(time.Minute)
		now := time.Unix(1000, 0)
		s.now = func() time.Time { return now }

		s.Create("old", "", 1)
		now = now.Add(2 * time.Minute)
		s.Create("new", "", 1)

		s.mu.RLock()
		_, stillThere := s.records["old"]
		s.mu.RUnlock()
		assert.False(t, stillThere)
	})
}
