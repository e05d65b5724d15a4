package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported advisor providers.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
)

type Config struct {
	// HTTP Server
	Port               string `mapstructure:"port"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
	CORSOrigin         string `mapstructure:"cors_origin"`

	// Database
	SQLiteDBPath string `mapstructure:"sqlite_db_path"`

	// AMQP, optional for the server
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	// Advisor
	LLMProvider        string        `mapstructure:"llm_provider"`
	OpenAIAPIKey       string        `mapstructure:"openai_api_key"`
	OpenAIModel        string        `mapstructure:"openai_model"`
	OpenAIBaseURL      string        `mapstructure:"openai_base_url"`
	AdvisorTimeout     time.Duration `mapstructure:"advisor_timeout"`
	AdvisorMaxAttempts int           `mapstructure:"advisor_max_attempts"`
	AdvisorBackoff     time.Duration `mapstructure:"advisor_backoff"`
	AdvisorAuthURL     string        `mapstructure:"advisor_auth_url"`

	// Worker
	RolloverInterval time.Duration `mapstructure:"rollover_interval"`

	LogLevel string `mapstructure:"log_level"`
	Timezone string `mapstructure:"timezone"`
}

var defaults = map[string]any{
	"port":                  "8081",
	"rate_limit_per_minute": 120,
	"cors_origin":           "*",
	"sqlite_db_path":        "./data/bills.db",
	"amqp_url":              "",
	"amqp_exchange":         "bills",
	"amqp_queue":            "bills.actions",
	"llm_provider":          ProviderNone,
	"openai_api_key":        "",
	"openai_model":          "gpt-4o-mini",
	"openai_base_url":       "",
	"advisor_timeout":       20 * time.Second,
	"advisor_max_attempts":  3,
	"advisor_backoff":       500 * time.Millisecond,
	"advisor_auth_url":      "",
	"rollover_interval":     time.Hour,
	"log_level":             "info",
	"timezone":              "Europe/Rome",
}

// Load reads the defaults, the optional file named by BILLS_CONFIG and the
// environment, in increasing order of precedence. Variables use the upper
// case key names (PORT, SQLITE_DB_PATH, ...).
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path := os.Getenv("BILLS_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return &cfg, nil
}

// Location returns the time zone used to decide "today".
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.LLMProvider {
	case ProviderNone:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required when LLM_PROVIDER is openai")
		}
		if c.OpenAIBaseURL != "" {
			if u, err := url.Parse(c.OpenAIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid OpenAI base URL '%s'", c.OpenAIBaseURL))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid LLM provider '%s': must be one of [none openai]", c.LLMProvider))
	}

	if c.AdvisorTimeout < time.Second || c.AdvisorTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid advisor timeout %v: must be between 1s and 5m", c.AdvisorTimeout))
	}
	if c.AdvisorMaxAttempts < 1 || c.AdvisorMaxAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid advisor max attempts %d: must be between 1 and 10", c.AdvisorMaxAttempts))
	}
	if c.AdvisorBackoff < 0 || c.AdvisorBackoff > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid advisor backoff %v: must be between 0 and 1m", c.AdvisorBackoff))
	}

	if c.RolloverInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at least 1 minute", c.RolloverInterval))
	} else if c.RolloverInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at most 24 hours", c.RolloverInterval))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
