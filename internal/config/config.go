// ABOUTME: Configuration loading and parsing for teller
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Embedder providers understood by the embedding factory.
const (
	EmbedderOpenAI = "openai"
	EmbedderOllama = "ollama"
	EmbedderHash   = "hash"
)

// Retriever index backends.
const (
	IndexMemory  = "memory"
	IndexChromem = "chromem"
)

// ClassifierAnthropic is the only classifier provider.
const ClassifierAnthropic = "anthropic"

// Config represents the complete teller configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Classifier ClassifierConfig `yaml:"classifier" toml:"classifier"`
	Embedder   EmbedderConfig   `yaml:"embedder" toml:"embedder"`
	Retriever  RetrieverConfig  `yaml:"retriever" toml:"retriever"`
	Ledger     LedgerConfig     `yaml:"ledger" toml:"ledger"`
	Chat       ChatConfig       `yaml:"chat" toml:"chat"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ClassifierConfig configures the intent classifier backend.
type ClassifierConfig struct {
	Provider    string   `yaml:"provider" toml:"provider"`
	APIKey      string   `yaml:"api_key" toml:"api_key"`
	BaseURL     string   `yaml:"base_url" toml:"base_url"`
	Model       string   `yaml:"model" toml:"model"`
	MaxTokens   int64    `yaml:"max_tokens" toml:"max_tokens"`
	Temperature *float64 `yaml:"temperature" toml:"temperature"` // nil means DefaultTemperature

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// EmbedderConfig configures the embedding backend
type EmbedderConfig struct {
	Provider   string `yaml:"provider" toml:"provider"`
	APIKey     string `yaml:"api_key" toml:"api_key"`
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	Model      string `yaml:"model" toml:"model"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions"` // hash provider only
	CacheSize  int    `yaml:"cache_size" toml:"cache_size"` // cached query embeddings, 0 disables
}

// RetrieverConfig configures document retrieval
type RetrieverConfig struct {
	Index string `yaml:"index" toml:"index"`
	TopK  int    `yaml:"top_k" toml:"top_k"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// LedgerConfig holds account issuance settings
type LedgerConfig struct {
	IBANAttempts int `yaml:"iban_attempts" toml:"iban_attempts"`
}

// ChatConfig holds websocket chat settings
type ChatConfig struct {
	Greeting       string   `yaml:"greeting" toml:"greeting"`
	HistoryLimit   int      `yaml:"history_limit" toml:"history_limit"`
	RateLimit      float64  `yaml:"rate_limit" toml:"rate_limit"` // messages per second, 0 disables
	Burst          int      `yaml:"burst" toml:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultTemperature is the classifier sampling temperature when none is configured.
const DefaultTemperature = 0.7

// DefaultGreeting is sent when a participant joins a room.
const DefaultGreeting = "Register by typing your full name and your current account balance"

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills zero values with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = ClassifierAnthropic
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "claude-3-5-haiku-latest"
	}
	if c.Classifier.MaxTokens == 0 {
		c.Classifier.MaxTokens = 512
	}
	if c.Classifier.Temperature == nil {
		t := DefaultTemperature
		c.Classifier.Temperature = &t
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 30 * time.Second
	}

	if c.Embedder.Provider == "" {
		c.Embedder.Provider = EmbedderHash
	}
	if c.Embedder.Dimensions == 0 {
		c.Embedder.Dimensions = 256
	}

	if c.Retriever.Index == "" {
		c.Retriever.Index = IndexMemory
	}
	if c.Retriever.TopK == 0 {
		c.Retriever.TopK = 3
	}
	if c.Retriever.Timeout == 0 {
		c.Retriever.Timeout = 10 * time.Second
	}

	if c.Ledger.IBANAttempts == 0 {
		c.Ledger.IBANAttempts = 1000
	}

	if c.Chat.Greeting == "" {
		c.Chat.Greeting = DefaultGreeting
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = 50
	}
	if c.Chat.RateLimit > 0 && c.Chat.Burst == 0 {
		c.Chat.Burst = 5
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Classifier.Provider != ClassifierAnthropic {
		return fmt.Errorf("classifier.provider %q is not supported (use %q)", c.Classifier.Provider, ClassifierAnthropic)
	}
	if c.Classifier.MaxTokens < 0 {
		return fmt.Errorf("classifier.max_tokens must be positive")
	}
	if t := c.Classifier.Temperature; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("classifier.temperature must be between 0 and 1")
	}

	switch c.Embedder.Provider {
	case EmbedderOpenAI:
		if c.Embedder.APIKey == "" {
			return fmt.Errorf("embedder.api_key is required for the openai provider")
		}
	case EmbedderOllama:
		if c.Embedder.Model == "" {
			return fmt.Errorf("embedder.model is required for the ollama provider")
		}
	case EmbedderHash:
		if c.Embedder.Dimensions < 0 {
			return fmt.Errorf("embedder.dimensions must be positive")
		}
	default:
		return fmt.Errorf("embedder.provider %q is not supported", c.Embedder.Provider)
	}
	if c.Embedder.CacheSize < 0 {
		return fmt.Errorf("embedder.cache_size must not be negative")
	}

	if c.Retriever.Index != IndexMemory && c.Retriever.Index != IndexChromem {
		return fmt.Errorf("retriever.index must be %q or %q", IndexMemory, IndexChromem)
	}
	if c.Retriever.TopK < 0 {
		return fmt.Errorf("retriever.top_k must be positive")
	}

	if c.Ledger.IBANAttempts < 0 {
		return fmt.Errorf("ledger.iban_attempts must be positive")
	}

	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat.history_limit must not be negative")
	}
	if c.Chat.RateLimit < 0 {
		return fmt.Errorf("chat.rate_limit must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Classifier.TimeoutRaw != "" {
		cfg.Classifier.Timeout, err = time.ParseDuration(cfg.Classifier.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing classifier.timeout %q: %w", cfg.Classifier.TimeoutRaw, err)
		}
	}

	if cfg.Retriever.TimeoutRaw != "" {
		cfg.Retriever.Timeout, err = time.ParseDuration(cfg.Retriever.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing retriever.timeout %q: %w", cfg.Retriever.TimeoutRaw, err)
		}
	}

	return nil
}
