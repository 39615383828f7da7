package common

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsStore(t *testing.T) {
	t.Run("get returns the seeded bag", func(t *testing.T) {
		st := NewSettingsStore("", Settings{AIProvider: "openai", AIAPIKey: "k"})
		assert.Equal(t, "openai", st.Get().AIProvider)
	})

	t.Run("update without a file path stays in memory", func(t *testing.T) {
		st := NewSettingsStore("", Settings{AIProvider: "openai"})
		require.NoError(t, st.Update(Settings{AIProvider: "anthropic"}))
		assert.Equal(t, "anthropic", st.Get().AIProvider)
	})

	t.Run("update persists to the settings file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		st := NewSettingsStore(path, Settings{AIProvider: "openai"})
		require.NoError(t, st.Update(Settings{AIProvider: "anthropic", AIAPIKey: "k"}))

		// A fresh process picks the persisted bag back up.
		t.Setenv("SETTINGS_FILE", path)
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.Settings.AIProvider)
		assert.Equal(t, "k", cfg.Settings.AIAPIKey)
	})

	t.Run("update surfaces write failures", func(t *testing.T) {
		st := NewSettingsStore(filepath.Join(t.TempDir(), "no", "such", "dir", "s.yaml"), Settings{})
		err := st.Update(Settings{AIProvider: "openai"})
		require.Error(t, err)
		// The in-memory bag still changed.
		assert.Equal(t, "openai", st.Get().AIProvider)
	})
}
