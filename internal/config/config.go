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

// Config holds the ragdex API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Storage      StorageConfig      `yaml:"storage"`
	Index        IndexConfig        `yaml:"index"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Completion   CompletionConfig   `yaml:"completion"`
	Chunking     ChunkingConfig     `yaml:"chunking"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
	Assembly     AssemblyConfig     `yaml:"assembly"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
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

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// IndexConfig holds the default index name and HNSW build parameters.
type IndexConfig struct {
	DefaultName     string `yaml:"default_name"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"` // label for logs and metrics
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	MaxDocumentSizeKB   int          `yaml:"max_document_size_kb"`
	Budget              BudgetConfig `yaml:"budget"`
	Rate                RateConfig   `yaml:"rate"`
	Cache               CacheConfig  `yaml:"cache"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"` // 0 = unlimited
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"` // informational, not enforced
	Action               string  `yaml:"action"`                  // "reject" | "warn" (default)
}

// RateConfig holds embedding request throttling settings.
type RateConfig struct {
	RPS   float64 `yaml:"rps"` // 0 = unlimited
	Burst int     `yaml:"burst"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 = keep cached vectors forever
}

// CompletionConfig holds the chat completion provider settings.
type CompletionConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ChunkingConfig holds document chunking settings.
type ChunkingConfig struct {
	Strategy  string `yaml:"strategy"` // fixed_window, sentence_bound
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
	MaxChars  int    `yaml:"max_chars"`
}

// IngestConfig holds indexing pipeline settings.
type IngestConfig struct {
	BatchSize   int `yaml:"batch_size"`
	MaxInFlight int `yaml:"max_in_flight"`
	MaxAttempts int `yaml:"max_attempts"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK      int    `yaml:"top_k"`
	Metric    string `yaml:"metric"`    // cosine, l2, ip
	Algorithm string `yaml:"algorithm"` // flat, hnsw
}

// ConversationConfig holds conversation store settings. Window counts
// exchanges; -1 keeps everything, 0 picks the default.
type ConversationConfig struct {
	Window  int  `yaml:"window"`
	Persist bool `yaml:"persist"`
}

// AssemblyConfig holds prompt assembly settings. BudgetChars -1 disables the
// budget, 0 picks the default.
type AssemblyConfig struct {
	BudgetChars  int    `yaml:"budget_chars"`
	Instructions string `yaml:"instructions"`
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
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "ragdex:"
	}
	if c.Index.DefaultName == "" {
		c.Index.DefaultName = "default"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "all-MiniLM-L6-v2"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.MaxDocumentSizeKB <= 0 {
		c.Embedding.MaxDocumentSizeKB = 164
	}
	if c.Completion.Provider == "" {
		c.Completion.Provider = c.Embedding.Provider
	}
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = c.Embedding.BaseURL
	}
	if c.Completion.APIKey == "" {
		c.Completion.APIKey = c.Embedding.APIKey
	}
	if c.Completion.MaxTokens <= 0 {
		c.Completion.MaxTokens = 512
	}
	if c.Chunking.Strategy == "" {
		c.Chunking.Strategy = "fixed_window"
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 200
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = 50
		}
	}
	if c.Chunking.MaxChars <= 0 {
		c.Chunking.MaxChars = 300
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 100
	}
	if c.Ingest.MaxInFlight <= 0 {
		c.Ingest.MaxInFlight = 4
	}
	if c.Ingest.MaxAttempts <= 0 {
		c.Ingest.MaxAttempts = 3
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 3
	}
	if c.Retrieval.Metric == "" {
		c.Retrieval.Metric = "cosine"
	}
	if c.Retrieval.Algorithm == "" {
		c.Retrieval.Algorithm = "flat"
	}
	if c.Conversation.Window == 0 {
		c.Conversation.Window = 5
	}
	if c.Assembly.BudgetChars == 0 {
		c.Assembly.BudgetChars = 6000
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
	switch c.Database.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("database.driver must be \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action)
	}
	switch c.Chunking.Strategy {
	case "fixed_window", "sentence_bound":
	default:
		return fmt.Errorf("chunking.strategy must be \"fixed_window\" or \"sentence_bound\", got %q",
			c.Chunking.Strategy)
	}
	switch c.Retrieval.Metric {
	case "cosine", "l2", "ip":
	default:
		return fmt.Errorf("retrieval.metric must be \"cosine\", \"l2\" or \"ip\", got %q",
			c.Retrieval.Metric)
	}
	switch c.Retrieval.Algorithm {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("retrieval.algorithm must be \"flat\" or \"hnsw\", got %q",
			c.Retrieval.Algorithm)
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
