package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
)

type Config struct {
	Mode Mode

	Port     string
	LogLevel string

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend string // memory, sqlite, redis or firestore
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string

	UseMockLLM bool // true = use mock even on GCP
	Moderation bool // classify completed assistant messages

	GraphFile       string // optional YAML agent graph
	DefaultScenario string
	DefaultUser     string
	HistoryLimit    int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "on", "ON":
		return true
	}
	return false
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Load reads all env vars and builds the config
func Load() (*Config, error) {
	var mode Mode
	switch getEnv("FARUM_MODE", "local") {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	redisDB, err := getIntEnv("FARUM_REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	historyLimit, err := getIntEnv("FARUM_HISTORY_LIMIT", domain.DefaultHistoryLimit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode: mode,

		Port:     getEnv("FARUM_PORT", getEnv("PORT", "8080")),
		LogLevel: getEnv("FARUM_LOG_LEVEL", "info"),

		GCPProjectID: getEnv("FARUM_GCP_PROJECT", ""),
		GCPLocation:  getEnv("FARUM_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("FARUM_MODEL_NAME", "gemini-2.5-flash-lite"),

		StorageBackend: getEnv("FARUM_STORAGE_BACKEND", BackendMemory),
		SQLitePath:     getEnv("FARUM_SQLITE_PATH", "data/farum.db"),
		RedisAddr:      getEnv("FARUM_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("FARUM_REDIS_PASSWORD", ""),
		RedisDB:        redisDB,
		RedisPrefix:    getEnv("FARUM_REDIS_PREFIX", "farum:"),

		UseMockLLM: getBoolEnv("FARUM_USE_MOCK_LLM", mode == ModeLocal),
		Moderation: getBoolEnv("FARUM_MODERATION", true),

		GraphFile:       getEnv("FARUM_GRAPH_FILE", ""),
		DefaultScenario: getEnv("FARUM_DEFAULT_SCENARIO", domain.DefaultScenario),
		DefaultUser:     getEnv("FARUM_DEFAULT_USER", string(domain.DefaultUserID)),
		HistoryLimit:    historyLimit,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that would only fail later at startup.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendSQLite, BackendRedis, BackendFirestore:
	default:
		return fmt.Errorf("%w: unknown FARUM_STORAGE_BACKEND %q", domain.ErrConfiguration, c.StorageBackend)
	}

	// Minimal validation in GCP mode
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("%w: FARUM_GCP_PROJECT must be set in gcp mode", domain.ErrConfiguration)
	}
	if c.StorageBackend == BackendFirestore && c.GCPProjectID == "" {
		return fmt.Errorf("%w: FARUM_GCP_PROJECT is required for the firestore backend", domain.ErrConfiguration)
	}
	if c.Moderation && !c.UseMockLLM && c.GCPProjectID == "" {
		return fmt.Errorf("%w: FARUM_GCP_PROJECT is required for Vertex moderation", domain.ErrConfiguration)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("%w: FARUM_HISTORY_LIMIT must be positive", domain.ErrConfiguration)
	}
	return nil
}
