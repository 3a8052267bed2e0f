// Package setup builds a ready memory.Manager from a YAML file, an
// optional .env file and environment variables.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/cache/redis"
	"github.com/becomeliminal/nim-memory/memory/cache/ristretto"
	"github.com/becomeliminal/nim-memory/memory/store/sqlstore"
)

// Backend names.
const (
	BackendNone      = "none"
	BackendRistretto = "ristretto"
	BackendRedis     = "redis"
	BackendFallback  = "fallback"
	BackendOpenAI    = "openai"
	BackendONNX      = "onnx"
	BackendAnthropic = "anthropic"
)

// Config is the full runtime configuration.
type Config struct {
	Memory    memory.Config   `yaml:"memory"`
	Store     sqlstore.Config `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Log       LogConfig       `yaml:"log"`
}

// CacheConfig selects and sizes the cache.
type CacheConfig struct {
	// Backend is "ristretto" (default), "redis" or "none".
	Backend   string           `yaml:"backend"`
	Ristretto ristretto.Config `yaml:"ristretto"`
	Redis     redis.Config     `yaml:"redis"`
}

// EmbedderConfig selects the primary embedder. Every backend sits behind
// the deterministic fallback.
type EmbedderConfig struct {
	// Backend is "openai", "onnx" or "fallback". Empty picks openai when
	// an API key or base URL is configured, fallback otherwise.
	Backend    string        `yaml:"backend"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	OpenAI     OpenAIConfig  `yaml:"openai"`
	ONNX       ONNXConfig    `yaml:"onnx"`
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey            string `yaml:"api_key,omitempty"`
	BaseURL           string `yaml:"base_url,omitempty"`
	Model             string `yaml:"model"`
	RequestDimensions bool   `yaml:"request_dimensions"`
}

// ONNXConfig locates a local model. Only used in binaries built with
// -tags onnx.
type ONNXConfig struct {
	ModelPath         string `yaml:"model_path"`
	TokenizerPath     string `yaml:"tokenizer_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
}

// GeneratorConfig enables model-written session summaries.
type GeneratorConfig struct {
	// Backend is "anthropic" or "none". Empty picks anthropic when an API
	// key is configured.
	Backend   string `yaml:"backend"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig keeps everything local: SQLite under ./data, an
// in-process cache and fallback-only embeddings.
func DefaultConfig() *Config {
	return &Config{
		Memory: memory.DefaultConfig(),
		Store: sqlstore.Config{
			Driver: sqlstore.DriverSQLite,
			Path:   "data/memory.db",
		},
		Cache: CacheConfig{
			Backend: BackendRistretto,
			Redis:   redis.Config{URL: "redis://localhost:6379/0", Namespace: "nim-memory:"},
		},
		Embedder: EmbedderConfig{
			Dimensions: 384,
			Timeout:    10 * time.Second,
			OpenAI:     OpenAIConfig{Model: "text-embedding-3-small", RequestDimensions: true},
		},
		Generator: GeneratorConfig{
			MaxTokens: 1024,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads path over DefaultConfig and applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from MEMORY_* and provider variables.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	str("MEMORY_DB_DRIVER", &c.Store.Driver)
	str("MEMORY_DB_PATH", &c.Store.Path)
	str("DATABASE_URL", &c.Store.DSN)
	str("MEMORY_DB_DSN", &c.Store.DSN)

	str("MEMORY_CACHE", &c.Cache.Backend)
	str("REDIS_URL", &c.Cache.Redis.URL)

	str("MEMORY_EMBEDDER", &c.Embedder.Backend)
	str("OPENAI_API_KEY", &c.Embedder.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.Embedder.OpenAI.BaseURL)
	str("MEMORY_EMBEDDING_MODEL", &c.Embedder.OpenAI.Model)
	str("MEMORY_ONNX_MODEL", &c.Embedder.ONNX.ModelPath)
	str("MEMORY_ONNX_TOKENIZER", &c.Embedder.ONNX.TokenizerPath)
	str("ONNXRUNTIME_LIB", &c.Embedder.ONNX.SharedLibraryPath)

	str("MEMORY_GENERATOR", &c.Generator.Backend)
	str("ANTHROPIC_API_KEY", &c.Generator.APIKey)
	str("ANTHROPIC_BASE_URL", &c.Generator.BaseURL)
	str("MEMORY_SUMMARY_MODEL", &c.Generator.Model)

	str("MEMORY_LOG_LEVEL", &c.Log.Level)
	str("MEMORY_LOG_FORMAT", &c.Log.Format)
	str("MEMORY_DEFAULT_SESSION", &c.Memory.DefaultSessionID)

	if v := os.Getenv("MEMORY_EMBEDDING_DIMENSIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("MEMORY_EMBEDDING_DIMENSIONS: %q is not a positive integer", v)
		}
		c.Embedder.Dimensions = n
	}
	if v := os.Getenv("MEMORY_SIMILARITY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < -1 || f > 1 {
			return fmt.Errorf("MEMORY_SIMILARITY_THRESHOLD: %q is not in [-1, 1]", v)
		}
		c.Memory.SimilarityThreshold = f
	}
	return nil
}

func (c *Config) embedderBackend() string {
	if c.Embedder.Backend != "" {
		return c.Embedder.Backend
	}
	if c.Embedder.OpenAI.APIKey != "" || c.Embedder.OpenAI.BaseURL != "" {
		return BackendOpenAI
	}
	return BackendFallback
}

func (c *Config) generatorBackend() string {
	if c.Generator.Backend != "" {
		return c.Generator.Backend
	}
	if c.Generator.APIKey != "" {
		return BackendAnthropic
	}
	return BackendNone
}
