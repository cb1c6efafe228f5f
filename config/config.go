package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the reflow service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig configures the upstream text-generation service.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai or any openai-compatible endpoint
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// WorkflowConfig bounds the refinement loop.
type WorkflowConfig struct {
	DefaultMaxIterations int `mapstructure:"default_max_iterations"`
	MaxIterationsCap     int `mapstructure:"max_iterations_cap"`
}

// ToolsConfig configures the capability table.
type ToolsConfig struct {
	Search     SearchConfig     `mapstructure:"search"`
	Calculator CalculatorConfig `mapstructure:"calculator"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
}

// SearchConfig selects and configures the search provider.
type SearchConfig struct {
	Provider string `mapstructure:"provider"` // brave, serper or local
	APIKey   string `mapstructure:"api_key"`
	TopK     int    `mapstructure:"top_k"`
	IndexDir string `mapstructure:"index_dir"` // document directory for the local provider
}

// CalculatorConfig bounds arithmetic evaluation.
type CalculatorConfig struct {
	MaxExpressionLength int `mapstructure:"max_expression_length"`
}

// FetchConfig configures the page-fetch capability.
type FetchConfig struct {
	Engine   string        `mapstructure:"engine"` // plain or chromedp
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// StorageConfig carries database settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig describes the run-history database.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// QueueConfig configures the async run queue.
type QueueConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig describes the stream broker used for async runs.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	Group    string `mapstructure:"group"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// SchedulerConfig drives recurring query dispatch.
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LoadConfig reads configuration from the given file, or from the usual
// lookup paths when path is empty. Environment variables with the REFLOW_
// prefix override file values.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":10080")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("workflow.default_max_iterations", 3)
	v.SetDefault("workflow.max_iterations_cap", 10)
	v.SetDefault("tools.search.provider", "brave")
	v.SetDefault("tools.search.top_k", 5)
	v.SetDefault("tools.calculator.max_expression_length", 100)
	v.SetDefault("tools.fetch.engine", "plain")
	v.SetDefault("tools.fetch.timeout", 15*time.Second)
	v.SetDefault("tools.fetch.max_chars", 20000)
	v.SetDefault("queue.redis.stream", "reflow:runs")
	v.SetDefault("queue.redis.group", "reflow-workers")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.cost_tracking", true)
	v.SetDefault("scheduler.interval", time.Minute)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("REFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config files are optional: defaults plus env cover a full setup.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.Workflow.DefaultMaxIterations < 1 {
		return nil, fmt.Errorf("workflow.default_max_iterations must be >= 1")
	}
	if cfg.Workflow.MaxIterationsCap < cfg.Workflow.DefaultMaxIterations {
		return nil, fmt.Errorf("workflow.max_iterations_cap must be >= workflow.default_max_iterations")
	}
	return &cfg, nil
}
