package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the trialfinder configuration shared by the API server and
// the ingest CLI.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds admin authentication settings.
type AuthConfig struct {
	AdminTokens []string `yaml:"admin_tokens"`
}

// CORSConfig lists browser origins allowed in addition to the local dev servers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider settings.
// An empty APIKey disables embeddings: search stays lexical and ingested
// studies wait for a backfill.
type EmbeddingConfig struct {
	Provider      string          `yaml:"provider"`
	APIKey        string          `yaml:"api_key"`
	BaseURL       string          `yaml:"base_url"`
	Model         string          `yaml:"model"`
	Dimensions    int             `yaml:"dimensions"`
	TimeoutSec    int             `yaml:"timeout_sec"`
	CacheTTLHours int             `yaml:"cache_ttl_hours"` // 0 keeps cached vectors forever
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig bounds embedding provider calls per sliding window.
type RateLimitConfig struct {
	MaxCalls  int `yaml:"max_calls"` // 0 disables the limiter
	WindowSec int `yaml:"window_sec"`
}

// Enabled reports whether an embedding provider is configured.
func (e *EmbeddingConfig) Enabled() bool { return e.APIKey != "" }

// CacheTTL returns the embedding cache entry lifetime.
func (e *EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLHours) * time.Hour
}

// SearchConfig holds search engine settings.
type SearchConfig struct {
	SemanticEnabled  bool `yaml:"semantic_enabled"`
	VectorCandidates int  `yaml:"vector_candidates"`
	TextCandidates   int  `yaml:"text_candidates"`
	DefaultPageSize  int  `yaml:"default_page_size"`
}

// IngestConfig holds ClinicalTrials.gov ingestion settings.
type IngestConfig struct {
	BaseURL        string   `yaml:"base_url"`
	TimeoutSec     int      `yaml:"timeout_sec"`
	Workers        int      `yaml:"workers"`
	PageSize       int      `yaml:"page_size"`
	MaxPages       int      `yaml:"max_pages"`
	RecruitingOnly bool     `yaml:"recruiting_only"`
	BatchSize      int      `yaml:"batch_size"`
	Conditions     []string `yaml:"conditions"`
	MetricsPort    int      `yaml:"metrics_port"` // 0 disables the metrics listener
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadDotEnv loads variables from .env files into the process environment.
// Variables already set win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if !fileExists(f) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.HNSWM <= 0 {
		c.Database.HNSWM = 16
	}
	if c.Database.HNSWEFConstruct <= 0 {
		c.Database.HNSWEFConstruct = 200
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.RateLimit.MaxCalls > 0 && c.Embedding.RateLimit.WindowSec <= 0 {
		c.Embedding.RateLimit.WindowSec = 60
	}
	if c.Search.VectorCandidates <= 0 {
		c.Search.VectorCandidates = 150
	}
	if c.Search.TextCandidates <= 0 {
		c.Search.TextCandidates = 50
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 10
	}
	if c.Ingest.TimeoutSec <= 0 {
		c.Ingest.TimeoutSec = 30
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 8
	}
	if c.Ingest.PageSize <= 0 {
		c.Ingest.PageSize = 100
	}
	if c.Ingest.MaxPages <= 0 {
		c.Ingest.MaxPages = 10
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 100
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "trialfinder:"
	}
	c.Database.Addrs = splitEntries(c.Database.Addrs)
	c.Auth.AdminTokens = splitEntries(c.Auth.AdminTokens)
	c.CORS.AllowedOrigins = splitEntries(c.CORS.AllowedOrigins)
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Search.DefaultPageSize > 100 {
		return fmt.Errorf("search.default_page_size must be at most 100, got %d", c.Search.DefaultPageSize)
	}
	if c.Ingest.PageSize > 1000 {
		return fmt.Errorf("ingest.page_size must be at most 1000, got %d", c.Ingest.PageSize)
	}
	if c.Embedding.RateLimit.MaxCalls < 0 {
		return fmt.Errorf("embedding.rate_limit.max_calls must not be negative")
	}
	if c.Ingest.MetricsPort < 0 || c.Ingest.MetricsPort > 65535 {
		return fmt.Errorf("ingest.metrics_port must be between 0 and 65535, got %d", c.Ingest.MetricsPort)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

// splitEntries flattens comma separated entries and drops blanks, so a list
// setting can come from a single environment variable.
func splitEntries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
