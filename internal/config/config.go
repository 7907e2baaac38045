// Package config provides configuration for the task agent.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ModeMock selects the scripted LLM client instead of the hosted API.
	ModeMock = "MOCK"

	// DefaultModel is used when MODEL is not set.
	DefaultModel = "llama-3.3-70b-versatile"
	// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
)

// Config holds the task agent configuration.
type Config struct {
	// Server settings
	HTTPPort int `mapstructure:"http_port"`
	RPCPort  int `mapstructure:"rpc_port"` // JSON-RPC over TCP; zero disables it

	// Database
	DatabaseURL     string `mapstructure:"database_url"`
	SeedSampleTasks bool   `mapstructure:"seed_sample_tasks"`

	// LLM settings
	Mode         string  `mapstructure:"mode"`
	APIKey       string  `mapstructure:"groq_api_key"`
	BaseURL      string  `mapstructure:"llm_base_url"`
	Model        string  `mapstructure:"model"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	LLMTimeoutMs int     `mapstructure:"llm_timeout_ms"`

	// Conversation
	MaxIterations    int    `mapstructure:"max_iterations"`
	SystemPromptPath string `mapstructure:"system_prompt_path"`
	TurnTimeoutMs    int    `mapstructure:"turn_timeout_ms"`

	// Sessions idle longer than this are dropped. Zero keeps them forever.
	SessionIdleTimeoutMs int `mapstructure:"session_idle_timeout_ms"`

	// WebSocket settings
	WSPingIntervalMs int   `mapstructure:"ws_ping_interval_ms"`
	WSWriteTimeoutMs int   `mapstructure:"ws_write_timeout_ms"`
	WSReadTimeoutMs  int   `mapstructure:"ws_read_timeout_ms"`
	WSMaxMessageSize int64 `mapstructure:"ws_max_message_size"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
}

// ErrMissingAPIKey is returned by Validate when no API key is configured outside mock mode.
var ErrMissingAPIKey = errors.New("GROQ_API_KEY environment variable is not set")

// Load loads configuration from defaults, an optional config file (CONFIG_FILE),
// an optional .env file in the working directory and environment variables,
// in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := mergeDotEnv(v, ".env"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Mode = strings.ToUpper(strings.TrimSpace(cfg.Mode))
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 8080)
	v.SetDefault("rpc_port", 8081)
	v.SetDefault("database_url", "file:task_db.sqlite?cache=shared&mode=rwc")
	v.SetDefault("seed_sample_tasks", false)
	v.SetDefault("mode", "")
	v.SetDefault("groq_api_key", "")
	v.SetDefault("llm_base_url", DefaultBaseURL)
	v.SetDefault("model", DefaultModel)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 4096)
	v.SetDefault("llm_timeout_ms", 60000)
	v.SetDefault("max_iterations", 5)
	v.SetDefault("system_prompt_path", "prompts/system_prompt.txt")
	v.SetDefault("turn_timeout_ms", 120000)
	v.SetDefault("session_idle_timeout_ms", 1800000)
	v.SetDefault("ws_ping_interval_ms", 30000)
	v.SetDefault("ws_write_timeout_ms", 10000)
	v.SetDefault("ws_read_timeout_ms", 60000)
	v.SetDefault("ws_max_message_size", 65536)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")
}

// mergeDotEnv layers a dotenv file under the environment. A missing file is not an error.
func mergeDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	dot := viper.New()
	dot.SetConfigFile(path)
	dot.SetConfigType("env")
	if err := dot.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := v.MergeConfigMap(dot.AllSettings()); err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}
	return nil
}

// MockMode reports whether the scripted LLM client should be used.
func (c *Config) MockMode() bool {
	return c.Mode == ModeMock
}

// Validate checks the settings required to talk to the hosted model.
func (c *Config) Validate() error {
	if !c.MockMode() && c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// LLMTimeout is the per-request HTTP timeout for the model API.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutMs) * time.Millisecond
}

// TurnTimeout bounds one user turn. Zero disables the bound.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutMs) * time.Millisecond
}

// SessionIdleTimeout is how long an unused session is kept. Zero disables expiry.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutMs) * time.Millisecond
}

// PingInterval is how often the WebSocket server pings idle clients.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.WSPingIntervalMs) * time.Millisecond
}

// WriteTimeout bounds a single WebSocket write.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WSWriteTimeoutMs) * time.Millisecond
}

// ReadTimeout is how long a WebSocket client may stay silent, pongs included.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.WSReadTimeoutMs) * time.Millisecond
}
