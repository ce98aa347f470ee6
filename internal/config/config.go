package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the findex API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Edgar    EdgarConfig    `yaml:"edgar"`
	Indexing IndexingConfig `yaml:"indexing"`
	Search   SearchConfig   `yaml:"search"`
	Chat     ChatConfig     `yaml:"chat"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
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
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// OpenAIConfig holds embedding and completion provider settings.
type OpenAIConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	ChatModel           string `yaml:"chat_model"`
	TopicModel          string `yaml:"topic_model"`
	MaxCompletionTokens int    `yaml:"max_completion_tokens"`
}

// EdgarConfig holds SEC EDGAR client settings. SEC requires a descriptive
// User-Agent and caps request rate at 10/s per client.
type EdgarConfig struct {
	UserAgent  string  `yaml:"user_agent"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
	TimeoutSec int     `yaml:"timeout_sec"`
}

// IndexingConfig holds chunking and filing-selection settings.
type IndexingConfig struct {
	ChunkMaxTokens int `yaml:"chunk_max_tokens"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	// FilingLimits caps how many recent filings per form type are indexed.
	FilingLimits map[string]int `yaml:"filing_limits"`
	HNSWM        int            `yaml:"hnsw_m"`
	HNSWEF       int            `yaml:"hnsw_ef_construction"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	TopK        int `yaml:"top_k"`
	TokenBudget int `yaml:"token_budget"`
}

// ChatConfig holds agentic chat loop settings.
type ChatConfig struct {
	MaxToolIterations int `yaml:"max_tool_iterations"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

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
		// Chat turns stream for minutes; the per-response deadline has to
		// outlive a full agentic loop.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.OpenAI.EmbeddingDimensions <= 0 {
		c.OpenAI.EmbeddingDimensions = 1536
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o"
	}
	if c.OpenAI.TopicModel == "" {
		c.OpenAI.TopicModel = "gpt-4o-mini"
	}
	if c.OpenAI.MaxCompletionTokens <= 0 {
		c.OpenAI.MaxCompletionTokens = 4096
	}
	if c.Edgar.RatePerSec <= 0 {
		c.Edgar.RatePerSec = 8
	}
	if c.Edgar.Burst <= 0 {
		c.Edgar.Burst = 8
	}
	if c.Edgar.TimeoutSec <= 0 {
		c.Edgar.TimeoutSec = 30
	}
	if c.Indexing.ChunkMaxTokens <= 0 {
		c.Indexing.ChunkMaxTokens = 512
	}
	if c.Indexing.ChunkOverlap <= 0 {
		c.Indexing.ChunkOverlap = 50
	}
	if len(c.Indexing.FilingLimits) == 0 {
		c.Indexing.FilingLimits = map[string]int{
			"10-K": 3,
			"10-Q": 4,
			"8-K":  8,
		}
	}
	if c.Indexing.HNSWM <= 0 {
		c.Indexing.HNSWM = 32
	}
	if c.Indexing.HNSWEF <= 0 {
		c.Indexing.HNSWEF = 400
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 6
	}
	if c.Search.TokenBudget <= 0 {
		c.Search.TokenBudget = 4000
	}
	if c.Chat.MaxToolIterations <= 0 {
		c.Chat.MaxToolIterations = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Edgar.UserAgent == "" {
		return fmt.Errorf("edgar.user_agent is required (SEC fair-access policy)")
	}
	// Window stride is max_tokens - overlap; equal values would never advance.
	if c.Indexing.ChunkOverlap >= c.Indexing.ChunkMaxTokens {
		return fmt.Errorf(
			"indexing.chunk_overlap (%d) must be strictly less than indexing.chunk_max_tokens (%d)",
			c.Indexing.ChunkOverlap, c.Indexing.ChunkMaxTokens,
		)
	}
	for ft, n := range c.Indexing.FilingLimits {
		if n < 0 {
			return fmt.Errorf("indexing.filing_limits.%s must be non-negative, got %d", ft, n)
		}
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
