// Package config loads the relay configuration from a YAML file with
// environment-variable fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted in configuration.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	Twilio  TwilioConfig  `yaml:"twilio"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
}

// TwilioConfig holds messaging-provider credentials.
type TwilioConfig struct {
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	WhatsAppNumber string `yaml:"whatsapp_number"`
}

// OpenAIConfig holds completion API settings.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SessionConfig bounds the conversation window.
type SessionConfig struct {
	MaxHistory     int `yaml:"max_history"`
	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// StorageConfig selects and configures the session backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // memory, redis, postgres
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PostgresURL   string `yaml:"postgres_url"`
}

// ServerConfig holds the HTTP listen settings.
type ServerConfig struct {
	Port          int `yaml:"port"`
	MetricsPort   int `yaml:"metrics_port"`
	RatePerMinute int `yaml:"rate_per_minute"` // per-sender webhook budget, 0 disables
}

// Load reads configuration from path (optional) and applies environment
// fallbacks and defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse file: %w", err)
		}
	}

	// Secrets come from the environment when the file omits them.
	if cfg.Twilio.AccountSID == "" {
		cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.Twilio.AuthToken == "" {
		cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.Twilio.WhatsAppNumber == "" {
		cfg.Twilio.WhatsAppNumber = os.Getenv("TWILIO_WHATSAPP_NUMBER")
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = os.Getenv("STORAGE_BACKEND")
	}
	if cfg.Storage.RedisAddr == "" {
		cfg.Storage.RedisAddr = os.Getenv("REDIS_ADDR")
	}
	if cfg.Storage.RedisPassword == "" {
		cfg.Storage.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.Storage.PostgresURL == "" {
		cfg.Storage.PostgresURL = os.Getenv("DATABASE_URL")
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.Temperature == 0 {
		cfg.OpenAI.Temperature = 0.3
	}
	if cfg.OpenAI.MaxTokens == 0 {
		cfg.OpenAI.MaxTokens = 500
	}
	if cfg.Session.MaxHistory == 0 {
		cfg.Session.MaxHistory = envInt("MAX_CONVERSATION_HISTORY", 10)
	}
	if cfg.Session.TimeoutMinutes == 0 {
		cfg.Session.TimeoutMinutes = envInt("SESSION_TIMEOUT_MINUTES", 30)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = envInt("PORT", 8080)
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
}

// Validate checks that required settings are present and coherent.
func (c *Config) Validate() error {
	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.WhatsAppNumber == "" {
		return fmt.Errorf("config: twilio account_sid, auth_token and whatsapp_number are required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("config: openai api_key is required")
	}
	if c.Session.MaxHistory < 1 {
		return fmt.Errorf("config: session max_history must be positive")
	}
	if c.Session.TimeoutMinutes < 1 {
		return fmt.Errorf("config: session timeout_minutes must be positive")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("config: redis_addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("config: postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
