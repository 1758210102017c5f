package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"vulnhalla.app/triage/core/db"
)

// Error reports an invalid or missing configuration key. Load returns it
// before any database or model API call is made.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

type Config struct {
	Env      string
	OTel     OTelConfig
	LLM      LLMConfig
	Analysis AnalysisConfig
	DB       db.Config
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type LLMConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	BaseURL   string // Optional: for custom endpoints
	Model     string
	MaxTokens int
}

// AnalysisConfig drives the batch run: where the CodeQL exports live, where
// results land, and the guardrails on each conversation.
type AnalysisConfig struct {
	DatabasesRoot string
	ResultsRoot   string
	Language      string
	TemplatesDir  string // Optional: overrides the embedded prompt templates
	Workers       int
	MaxReminders  int
}

// Load loads configuration from environment variables. In development it
// also reads a local .env file.
func Load() (Config, error) {
	if getEnv("TRIAGE_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env: getEnv("TRIAGE_ENV", "development"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "triage"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		LLM: LLMConfig{
			Provider:  getEnv("TRIAGE_LLM_PROVIDER", "openai"),
			APIKey:    getEnv("TRIAGE_LLM_API_KEY", ""),
			BaseURL:   getEnv("TRIAGE_LLM_BASE_URL", ""),
			Model:     getEnv("TRIAGE_LLM_MODEL", "gpt-4o"),
			MaxTokens: getEnvInt("TRIAGE_LLM_MAX_TOKENS", 8192),
		},
		Analysis: AnalysisConfig{
			DatabasesRoot: getEnv("DATABASES_ROOT", ""),
			ResultsRoot:   getEnv("RESULTS_ROOT", "results"),
			Language:      getEnv("TRIAGE_LANGUAGE", "c"),
			TemplatesDir:  getEnv("TRIAGE_TEMPLATES_DIR", ""),
			Workers:       getEnvInt("TRIAGE_WORKERS", 1),
			MaxReminders:  getEnvInt("TRIAGE_MAX_REMINDERS", 10),
		},
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 10),
			MinConns: getEnvInt32("DB_MIN_CONNS", 2),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Analysis.DatabasesRoot == "" {
		return &Error{Key: "DATABASES_ROOT", Reason: "is required"}
	}
	if c.Analysis.Workers < 1 {
		return &Error{Key: "TRIAGE_WORKERS", Reason: "must be at least 1"}
	}
	if c.Analysis.MaxReminders < 1 {
		return &Error{Key: "TRIAGE_MAX_REMINDERS", Reason: "must be at least 1"}
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return &Error{Key: "TRIAGE_LLM_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}
	if c.LLM.APIKey == "" {
		return &Error{Key: "TRIAGE_LLM_API_KEY", Reason: "is required"}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
