package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	Port           string   `yaml:"port"`
	PublicURL      string   `yaml:"public_url"` // base of links to in-memory objects
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"` // "json" or "text"

	LLMBackend   string `yaml:"llm_backend"` // "mock", "gemini" or "function"
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GCPProjectID string `yaml:"gcp_project"`
	GCPLocation  string `yaml:"gcp_location"`
	ModelName    string `yaml:"model_name"`
	HistoryLimit int    `yaml:"history_limit"`

	StorageBackend string        `yaml:"storage_backend"` // "memory", "firestore", "sqlite" or "redis"
	SQLitePath     string        `yaml:"sqlite_path"`
	RedisURL       string        `yaml:"redis_url"`
	RedisTTL       time.Duration `yaml:"redis_ttl"`

	ObjectStorage string `yaml:"object_storage"` // "memory" or "gcs"
	Bucket        string `yaml:"bucket"`

	FunctionsURL       string        `yaml:"functions_url"`
	FunctionsKey       string        `yaml:"functions_key"`
	FunctionsRateLimit float64       `yaml:"functions_rate_limit"` // requests per second, 0 = unlimited
	FunctionsTimeout   time.Duration `yaml:"functions_timeout"`

	SpeechLocale string `yaml:"speech_locale"`
	DaemonSocket string `yaml:"daemon_socket"`
}

func defaults() *Config {
	return &Config{
		Mode:               ModeLocal,
		Port:               "8080",
		LogLevel:           "info",
		LogFormat:          "json",
		LLMBackend:         "mock",
		GCPLocation:        "us-central1",
		ModelName:          "gemini-2.5-flash",
		HistoryLimit:       20,
		StorageBackend:     "memory",
		SQLitePath:         "chicha.sqlite",
		RedisURL:           "redis://localhost:6379",
		RedisTTL:           7 * 24 * time.Hour,
		ObjectStorage:      "memory",
		Bucket:             "images",
		FunctionsRateLimit: 5,
		FunctionsTimeout:   60 * time.Second,
		SpeechLocale:       "en-US",
	}
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
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load builds the config from defaults, then the YAML file named by
// CHICHA_CONFIG (if any), then CHICHA_* env vars.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CHICHA_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	switch getEnv("CHICHA_MODE", string(c.Mode)) {
	case "gcp":
		c.Mode = ModeGCP
	default:
		c.Mode = ModeLocal
	}

	c.Port = getEnv("CHICHA_PORT", getEnv("PORT", c.Port))
	c.PublicURL = getEnv("CHICHA_PUBLIC_URL", c.PublicURL)
	if v := os.Getenv("CHICHA_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	c.LogLevel = getEnv("CHICHA_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("CHICHA_LOG_FORMAT", c.LogFormat)

	c.LLMBackend = getEnv("CHICHA_LLM_BACKEND", c.LLMBackend)
	if getBoolEnv("CHICHA_USE_MOCK_LLM", false) {
		c.LLMBackend = "mock"
	}
	c.GeminiAPIKey = getEnv("CHICHA_GEMINI_API_KEY", getEnv("GEMINI_API_KEY", c.GeminiAPIKey))
	c.GCPProjectID = getEnv("CHICHA_GCP_PROJECT", c.GCPProjectID)
	c.GCPLocation = getEnv("CHICHA_GCP_LOCATION", c.GCPLocation)
	c.ModelName = getEnv("CHICHA_MODEL_NAME", c.ModelName)
	c.HistoryLimit = getIntEnv("CHICHA_HISTORY_LIMIT", c.HistoryLimit)

	c.StorageBackend = getEnv("CHICHA_STORAGE_BACKEND", c.StorageBackend)
	c.SQLitePath = getEnv("CHICHA_SQLITE_PATH", c.SQLitePath)
	c.RedisURL = getEnv("CHICHA_REDIS_URL", getEnv("REDIS_URL", c.RedisURL))
	c.RedisTTL = getDurationEnv("CHICHA_REDIS_TTL", c.RedisTTL)

	c.ObjectStorage = getEnv("CHICHA_OBJECT_STORAGE", c.ObjectStorage)
	c.Bucket = getEnv("CHICHA_BUCKET", c.Bucket)

	c.FunctionsURL = getEnv("CHICHA_FUNCTIONS_URL", c.FunctionsURL)
	c.FunctionsKey = getEnv("CHICHA_FUNCTIONS_KEY", c.FunctionsKey)
	c.FunctionsRateLimit = getFloatEnv("CHICHA_FUNCTIONS_RATE_LIMIT", c.FunctionsRateLimit)
	c.FunctionsTimeout = getDurationEnv("CHICHA_FUNCTIONS_TIMEOUT", c.FunctionsTimeout)

	c.SpeechLocale = getEnv("CHICHA_SPEECH_LOCALE", c.SpeechLocale)
	c.DaemonSocket = getEnv("CHICHA_DAEMON_SOCKET", c.DaemonSocket)
}

// Validate checks the combinations that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("CHICHA_GCP_PROJECT must be set in gcp mode")
	}

	switch c.LLMBackend {
	case "mock":
	case "gemini":
		if c.GeminiAPIKey == "" && c.GCPProjectID == "" {
			return fmt.Errorf("gemini backend needs CHICHA_GEMINI_API_KEY or CHICHA_GCP_PROJECT")
		}
	case "function":
		if c.FunctionsURL == "" {
			return fmt.Errorf("function llm backend needs CHICHA_FUNCTIONS_URL")
		}
	default:
		return fmt.Errorf("unknown llm backend %q", c.LLMBackend)
	}

	switch c.StorageBackend {
	case "memory", "sqlite", "redis":
	case "firestore":
		if c.GCPProjectID == "" {
			return fmt.Errorf("CHICHA_GCP_PROJECT is required for firestore storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	switch c.ObjectStorage {
	case "memory", "gcs":
	default:
		return fmt.Errorf("unknown object storage %q", c.ObjectStorage)
	}
	if c.ObjectStorage == "gcs" && c.Bucket == "" {
		return fmt.Errorf("CHICHA_BUCKET is required for gcs object storage")
	}

	if c.PublicURL == "" {
		c.PublicURL = "http://localhost:" + c.Port
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")

	if c.HistoryLimit < 0 {
		c.HistoryLimit = 0
	}
	return nil
}
