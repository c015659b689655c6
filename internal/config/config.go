// Package config loads ragkit settings from defaults, a YAML file and
// RAGKIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/samzhu/ragkit/internal/logging"
	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/rag"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGKIT_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// Backend names.
const (
	BackendMemory   = "memory"
	BackendPGVector = "pgvector"
	BackendQdrant   = "qdrant"
	BackendRedis    = "redis"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderHashing   = "hashing"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig       `koanf:"server"`
	LLM       LLMConfig          `koanf:"llm"`
	Embedding EmbeddingConfig    `koanf:"embedding"`
	Splitter  rag.SplitterConfig `koanf:"splitter"`
	Store     StoreConfig        `koanf:"store"`
	Session   SessionConfig      `koanf:"session"`
	Logging   logging.Config     `koanf:"logging"`
	Telemetry TelemetryConfig    `koanf:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	SystemPrompt    string        `koanf:"system_prompt"`
	TopK            int           `koanf:"top_k"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	Provider    string          `koanf:"provider"`
	Model       string          `koanf:"model"`
	APIKey      string          `koanf:"api_key"`
	BaseURL     string          `koanf:"base_url"`
	Temperature float64         `koanf:"temperature"`
	MaxTokens   int             `koanf:"max_tokens"`
	Timeout     time.Duration   `koanf:"timeout"`
	Retry       llm.RetryConfig `koanf:"retry"`
}

// EmbeddingConfig selects the embedder and its wrappers.
type EmbeddingConfig struct {
	Provider   string `koanf:"provider"`
	Model      string `koanf:"model"`
	APIKey     string `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`
	Dimensions int    `koanf:"dimensions"`
	BatchSize  int    `koanf:"batch_size"`
	// RateLimit caps embedding requests per second (0 = unlimited).
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
	// Cache memoizes vectors in the session backend.
	Cache bool `koanf:"cache"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	Backend string `koanf:"backend"`
	// Snapshot is a bbolt file loaded at start and written at shutdown by
	// the memory backend.
	Snapshot    string `koanf:"snapshot"`
	DatabaseURL string `koanf:"database_url"`
	Table       string `koanf:"table"`
	QdrantHost  string `koanf:"qdrant_host"`
	QdrantPort  int    `koanf:"qdrant_port"`
	QdrantKey   string `koanf:"qdrant_key"`
	QdrantTLS   bool   `koanf:"qdrant_tls"`
	Collection  string `koanf:"collection"`
}

// SessionConfig selects where chat histories live between requests.
type SessionConfig struct {
	Backend       string        `koanf:"backend"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	Prefix        string        `koanf:"prefix"`
	TTL           time.Duration `koanf:"ttl"`
	// Limit caps the messages kept per session (0 = unbounded).
	Limit int `koanf:"limit"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			TopK:            rag.DefaultTopK,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       llm.ModelGPT4oMini,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
			Retry:       llm.DefaultRetryConfig(),
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOpenAI,
			Model:     llm.ModelTextEmbedding3Small,
			BatchSize: rag.DefaultBatchSize,
		},
		Splitter: rag.DefaultSplitterConfig(),
		Store: StoreConfig{
			Backend:    BackendMemory,
			Table:      "chunks",
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "ragkit",
		},
		Session: SessionConfig{
			Backend: BackendMemory,
			Prefix:  "ragkit:",
			TTL:     24 * time.Hour,
			Limit:   50,
		},
		Logging: logging.DefaultConfig(),
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "ragkit",
			SampleRate:  1.0,
		},
	}
}

// Load reads path (optional) over the defaults and then applies RAGKIT_*
// environment variables. OPENAI_API_KEY and ANTHROPIC_API_KEY fill empty
// API keys for the matching provider.
//
// Environment variables split on the first underscore after the prefix:
//
//	RAGKIT_SERVER_PORT     -> server.port
//	RAGKIT_LLM_API_KEY     -> llm.api_key
//	RAGKIT_STORE_BACKEND   -> store.backend
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return load(content, os.Environ())
}

// Parse loads YAML content over the defaults without consulting the
// environment.
func Parse(content []byte) (*Config, error) {
	return load(content, nil)
}

func load(content []byte, environ []string) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if environ != nil {
		if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyKeyFallbacks(cfg, lookupIn(environ))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps RAGKIT_SECTION_FIELD_NAME to section.field_name.
func envKey(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}
	return parts[0] + "." + parts[1], value
}

func lookupIn(environ []string) func(string) string {
	return func(key string) string {
		for _, kv := range environ {
			if k, v, ok := strings.Cut(kv, "="); ok && k == key {
				return v
			}
		}
		return ""
	}
}

func applyKeyFallbacks(cfg *Config, getenv func(string) string) {
	providerKey := func(provider string) string {
		switch provider {
		case ProviderOpenAI:
			return getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			return getenv("ANTHROPIC_API_KEY")
		}
		return ""
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider)
	}
	if cfg.Embedding.APIKey == "" {
		if cfg.Embedding.Provider == cfg.LLM.Provider {
			cfg.Embedding.APIKey = cfg.LLM.APIKey
		} else {
			cfg.Embedding.APIKey = providerKey(cfg.Embedding.Provider)
		}
	}
}

// Validate checks ports, backend and provider names, and splitter sizes.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.TopK <= 0 {
		errs = append(errs, fmt.Errorf("server.top_k %d must be positive", c.Server.TopK))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q: want openai or anthropic", c.LLM.Provider))
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
	case ProviderHashing:
		if c.Embedding.Dimensions < 0 {
			errs = append(errs, fmt.Errorf("embedding.dimensions %d must not be negative", c.Embedding.Dimensions))
		}
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q: want openai or hashing", c.Embedding.Provider))
	}
	if c.Embedding.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("embedding.rate_limit %v must not be negative", c.Embedding.RateLimit))
	}

	if err := c.Splitter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("splitter: %w", err))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPGVector:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for pgvector"))
		}
	case BackendQdrant:
		if c.Store.QdrantHost == "" || c.Store.QdrantPort <= 0 {
			errs = append(errs, errors.New("store.qdrant_host and store.qdrant_port are required for qdrant"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q: want memory, pgvector or qdrant", c.Store.Backend))
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			errs = append(errs, errors.New("session.redis_addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend %q: want memory or redis", c.Session.Backend))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate %v must be within [0,1]", c.Telemetry.SampleRate))
	}

	return errors.Join(errs...)
}
