package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
twilio:
  account_sid: AC123
  auth_token: secret
  whatsapp_number: "whatsapp:+15550000000"
openai:
  api_key: sk-test
  model: gpt-4o
  temperature: 0.7
  max_tokens: 200
session:
  max_history: 6
  timeout_minutes: 15
storage:
  backend: redis
  redis_addr: localhost:6379
server:
  port: 8081
  rate_per_minute: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Twilio.AccountSID != "AC123" {
		t.Errorf("AccountSID = %q", cfg.Twilio.AccountSID)
	}
	if cfg.OpenAI.Model != "gpt-4o" || cfg.OpenAI.MaxTokens != 200 {
		t.Errorf("openai config = %+v", cfg.OpenAI)
	}
	if cfg.Session.MaxHistory != 6 || cfg.Session.TimeoutMinutes != 15 {
		t.Errorf("session config = %+v", cfg.Session)
	}
	if cfg.Storage.Backend != BackendRedis {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Server.Port != 8081 || cfg.Server.RatePerMinute != 5 {
		t.Errorf("server config = %+v", cfg.Server)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("default Model = %q", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.MaxTokens != 500 {
		t.Errorf("default MaxTokens = %d", cfg.OpenAI.MaxTokens)
	}
	if cfg.Session.MaxHistory != 10 {
		t.Errorf("default MaxHistory = %d", cfg.Session.MaxHistory)
	}
	if cfg.Session.TimeoutMinutes != 30 {
		t.Errorf("default TimeoutMinutes = %d", cfg.Session.TimeoutMinutes)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("default Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Server.Port != 8080 || cfg.Server.MetricsPort != 9090 {
		t.Errorf("default ports = %d/%d", cfg.Server.Port, cfg.Server.MetricsPort)
	}
}

func TestLoadEnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC-env")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok-env")
	t.Setenv("TWILIO_WHATSAPP_NUMBER", "whatsapp:+15559990000")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/warelay")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Twilio.AccountSID != "AC-env" || cfg.OpenAI.APIKey != "sk-env" {
		t.Errorf("env fallbacks not applied: %+v", cfg)
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.Storage.PostgresURL != "postgres://localhost/warelay" {
		t.Errorf("storage env fallbacks not applied: %+v", cfg.Storage)
	}
}

func TestFileTakesPrecedenceOverEnv(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC-env")
	path := writeConfigFile(t, `
twilio:
  account_sid: AC-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Twilio.AccountSID != "AC-file" {
		t.Errorf("AccountSID = %q, want AC-file", cfg.Twilio.AccountSID)
	}
}

func TestValidateErrors(t *testing.T) {
	valid := func() *Config {
		cfg, _ := Load("")
		cfg.Twilio = TwilioConfig{AccountSID: "AC1", AuthToken: "t", WhatsAppNumber: "whatsapp:+1555"}
		cfg.OpenAI.APIKey = "sk-1"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing twilio", func(c *Config) { c.Twilio.AuthToken = "" }},
		{"missing api key", func(c *Config) { c.OpenAI.APIKey = "" }},
		{"bad max history", func(c *Config) { c.Session.MaxHistory = 0 }},
		{"bad timeout", func(c *Config) { c.Session.TimeoutMinutes = -1 }},
		{"redis without addr", func(c *Config) { c.Storage.Backend = BackendRedis }},
		{"postgres without url", func(c *Config) { c.Storage.Backend = BackendPostgres }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline Validate() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() = nil error for missing file")
	}
}
