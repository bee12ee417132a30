// Package config provides configuration for the intelligence pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the pipeline configuration. It is built once at startup and
// handed to each component; core logic never reads the environment itself.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Diversity DiversityConfig `yaml:"diversity"`
	Logging   LoggingConfig   `yaml:"logging"`
	Stream    StreamConfig    `yaml:"stream"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
	RPCPort  int `yaml:"rpc_port"`
}

// DatabaseConfig selects the SQL driver and DSN.
type DatabaseConfig struct {
	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LLMConfig configures the model client.
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	MaxTemperature float64       `yaml:"max_temperature"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	PricePer1K     float64       `yaml:"price_per_1k"`
}

// PipelineConfig configures the orchestrator and its collaborators.
type PipelineConfig struct {
	// StrictMode stops a run at the first failed phase and blocks synthesis
	// on any verdict other than PASS.
	StrictMode        bool          `yaml:"strict_mode"`
	MaxFailedPhases   int           `yaml:"max_failed_phases"`
	SchemaDir         string        `yaml:"schema_dir"`
	WatchSchemas      bool          `yaml:"watch_schemas"`
	ContextCharBudget int           `yaml:"context_char_budget"`
	AutoRebalance     bool          `yaml:"auto_rebalance"`
	SchedulerWorkers  int           `yaml:"scheduler_workers"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ExportDir         string        `yaml:"export_dir"`
}

// DiversityConfig holds the evidence gate thresholds.
type DiversityConfig struct {
	MinDiversityScore       float64 `yaml:"min_diversity_score"`
	MinUniqueDomains        int     `yaml:"min_unique_domains"`
	MaxConcentration        float64 `yaml:"max_concentration"`
	MinConfidenceRatio      float64 `yaml:"min_confidence_ratio"`
	CriticalDiversityScore  float64 `yaml:"critical_diversity_score"`
	CriticalUniqueDomains   int     `yaml:"critical_unique_domains"`
	CriticalConcentration   float64 `yaml:"critical_concentration"`
	CriticalConfidenceRatio float64 `yaml:"critical_confidence_ratio"`
	PassRatio               float64 `yaml:"pass_ratio"`
	HighConfidence          float64 `yaml:"high_confidence"`
}

// StreamConfig configures the websocket event stream.
type StreamConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: 8080,
			RPCPort:  8082,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:pipeline.db?cache=shared&mode=rwc",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Timeout:        120 * time.Second,
			MaxTokens:      4096,
			Temperature:    0.2,
			MaxTemperature: 0.4,
			RetryAttempts:  3,
			RetryBaseDelay: time.Second,
			RequestsPerSec: 2,
			PricePer1K:     0.002,
		},
		Pipeline: PipelineConfig{
			MaxFailedPhases:   0,
			ContextCharBudget: 24000,
			AutoRebalance:     true,
			SchedulerWorkers:  2,
			PollInterval:      2 * time.Second,
			ExportDir:         "exports",
		},
		Diversity: DefaultDiversity(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Stream: StreamConfig{
			PingInterval:   30 * time.Second,
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
			MaxMessageSize: 65536,
		},
	}
}

// DefaultDiversity returns the default gate thresholds.
func DefaultDiversity() DiversityConfig {
	return DiversityConfig{
		MinDiversityScore:       0.75,
		MinUniqueDomains:        10,
		MaxConcentration:        0.25,
		MinConfidenceRatio:      0.60,
		CriticalDiversityScore:  0.50,
		CriticalUniqueDomains:   6,
		CriticalConcentration:   0.40,
		CriticalConfidenceRatio: 0.40,
		PassRatio:               0.75,
		HighConfidence:          0.70,
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPPort = getEnvInt("HTTP_PORT", c.Server.HTTPPort)
	c.Server.RPCPort = getEnvInt("RPC_PORT", c.Server.RPCPort)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)

	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.MaxTemperature = getEnvFloat("LLM_MAX_TEMPERATURE", c.LLM.MaxTemperature)
	c.LLM.RetryAttempts = getEnvInt("LLM_RETRY_ATTEMPTS", c.LLM.RetryAttempts)
	c.LLM.RetryBaseDelay = getEnvDuration("LLM_RETRY_BASE_DELAY", c.LLM.RetryBaseDelay)
	c.LLM.RequestsPerSec = getEnvFloat("LLM_REQUESTS_PER_SEC", c.LLM.RequestsPerSec)
	c.LLM.PricePer1K = getEnvFloat("LLM_PRICE_PER_1K", c.LLM.PricePer1K)

	c.Pipeline.StrictMode = getEnvBool("PIPELINE_STRICT", c.Pipeline.StrictMode)
	c.Pipeline.MaxFailedPhases = getEnvInt("PIPELINE_MAX_FAILED_PHASES", c.Pipeline.MaxFailedPhases)
	c.Pipeline.SchemaDir = getEnv("SCHEMA_DIR", c.Pipeline.SchemaDir)
	c.Pipeline.WatchSchemas = getEnvBool("SCHEMA_WATCH", c.Pipeline.WatchSchemas)
	c.Pipeline.ContextCharBudget = getEnvInt("CONTEXT_CHAR_BUDGET", c.Pipeline.ContextCharBudget)
	c.Pipeline.AutoRebalance = getEnvBool("AUTO_REBALANCE", c.Pipeline.AutoRebalance)
	c.Pipeline.SchedulerWorkers = getEnvInt("SCHEDULER_WORKERS", c.Pipeline.SchedulerWorkers)
	c.Pipeline.PollInterval = getEnvDuration("SCHEDULER_POLL_INTERVAL", c.Pipeline.PollInterval)
	c.Pipeline.ExportDir = getEnv("EXPORT_DIR", c.Pipeline.ExportDir)

	c.Stream.PingInterval = getEnvDuration("WS_PING_INTERVAL", c.Stream.PingInterval)
	c.Stream.WriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", c.Stream.WriteTimeout)
	c.Stream.ReadTimeout = getEnvDuration("WS_READ_TIMEOUT", c.Stream.ReadTimeout)
	c.Stream.MaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(c.Stream.MaxMessageSize)))

	c.Diversity.MinDiversityScore = getEnvFloat("DIVERSITY_MIN_SCORE", c.Diversity.MinDiversityScore)
	c.Diversity.MinUniqueDomains = getEnvInt("DIVERSITY_MIN_DOMAINS", c.Diversity.MinUniqueDomains)
	c.Diversity.MaxConcentration = getEnvFloat("DIVERSITY_MAX_CONCENTRATION", c.Diversity.MaxConcentration)
	c.Diversity.MinConfidenceRatio = getEnvFloat("DIVERSITY_MIN_CONFIDENCE_RATIO", c.Diversity.MinConfidenceRatio)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// bare integers are milliseconds
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
