package common

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Paths    PathsConfig
	Queue    QueueConfig
	Settings Settings
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig holds history-store configuration. An empty DSN selects the
// embedded SQLite file; a postgres:// DSN selects Postgres.
type DatabaseConfig struct {
	DSN             string
	SQLitePath      string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PathsConfig holds filesystem layout for uploads and outputs.
type PathsConfig struct {
	UploadDir string
	OutputDir string
}

// QueueConfig bounds the background job queue and the per-batch worker pool.
type QueueConfig struct {
	BatchWorkers int           // concurrent batch jobs
	QueueSize    int           // pending jobs before backpressure
	MaxWorkers   int           // per-batch image workers; 1 = strictly sequential
	CallTimeout  time.Duration // upper bound per OCR/LLM call
}

// Settings is the user-editable settings bag: which OCR engine and extraction
// provider to use, plus their credentials. Mirrors the persisted settings file.
type Settings struct {
	OCRProvider string `yaml:"ocr_provider" json:"ocr_provider"`
	OCRLanguage string `yaml:"ocr_language" json:"ocr_language"`

	GoogleVisionKey   string `yaml:"google_vision_key" json:"google_vision_key"`
	AzureOCRKey       string `yaml:"azure_ocr_key" json:"azure_ocr_key"`
	AzureOCREndpoint  string `yaml:"azure_ocr_endpoint" json:"azure_ocr_endpoint"`
	CustomOCREndpoint string `yaml:"custom_ocr_endpoint" json:"custom_ocr_endpoint"`
	CustomOCRKey      string `yaml:"custom_ocr_key" json:"custom_ocr_key"`
	LocalOCRPath      string `yaml:"local_ocr_path" json:"local_ocr_path"`

	AIProvider     string `yaml:"ai_provider" json:"ai_provider"`
	AIAPIKey       string `yaml:"ai_api_key" json:"ai_api_key"`
	CustomEndpoint string `yaml:"custom_endpoint" json:"custom_endpoint"`
	CustomModel    string `yaml:"custom_model" json:"custom_model"`

	EnableHistory bool `yaml:"enable_history" json:"enable_history"`
}

// LoadConfig loads configuration from environment variables, then overlays
// the settings file named by SETTINGS_FILE when present.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", ""),
			SQLitePath:      getEnv("SQLITE_PATH", "data/surveyscriber.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Paths: PathsConfig{
			UploadDir: getEnv("UPLOAD_DIR", "data/uploads"),
			OutputDir: getEnv("OUTPUT_DIR", "data/outputs"),
		},
		Queue: QueueConfig{
			BatchWorkers: getEnvAsInt("QUEUE_BATCH_WORKERS", 2),
			QueueSize:    getEnvAsInt("QUEUE_SIZE", 64),
			MaxWorkers:   getEnvAsInt("IMAGE_WORKERS", 1),
			CallTimeout:  getEnvAsDuration("CALL_TIMEOUT", 2*time.Minute),
		},
		Settings: Settings{
			OCRProvider:   getEnv("OCR_PROVIDER", "none"),
			OCRLanguage:   getEnv("OCR_LANGUAGE", "en"),
			AIProvider:    getEnv("AI_PROVIDER", "openai"),
			AIAPIKey:      getEnv("AI_API_KEY", os.Getenv("OPENAI_API_KEY")),
			EnableHistory: getEnvAsBool("ENABLE_HISTORY", true),
		},
	}

	if path := os.Getenv("SETTINGS_FILE"); path != "" {
		if err := cfg.loadSettingsFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadSettingsFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(b, &c.Settings); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return nil
}

// SaveSettings writes the settings bag back to the given file.
func SaveSettings(path string, s Settings) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// SettingsStore holds the live settings bag behind a mutex so the settings
// endpoint can change providers and credentials without a restart. Updates
// are persisted to the settings file when one is configured.
type SettingsStore struct {
	mu   sync.RWMutex
	path string
	s    Settings
}

func NewSettingsStore(path string, s Settings) *SettingsStore {
	return &SettingsStore{path: path, s: s}
}

func (st *SettingsStore) Get() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// Update replaces the settings wholesale. The in-memory bag changes even
// when writing the file fails, so the caller can surface the error while
// the running instance keeps the new values.
func (st *SettingsStore) Update(s Settings) error {
	st.mu.Lock()
	st.s = s
	path := st.path
	st.mu.Unlock()
	if path == "" {
		return nil
	}
	return SaveSettings(path, s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
