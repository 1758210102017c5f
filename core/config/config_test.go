package config

import (
	"errors"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRIAGE_ENV", "test")
	t.Setenv("DATABASES_ROOT", "/data/databases")
	t.Setenv("TRIAGE_LLM_PROVIDER", "openai")
	t.Setenv("TRIAGE_LLM_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Analysis.DatabasesRoot != "/data/databases" {
		t.Errorf("DatabasesRoot = %q", cfg.Analysis.DatabasesRoot)
	}
	if cfg.Analysis.ResultsRoot != "results" {
		t.Errorf("ResultsRoot = %q, want default", cfg.Analysis.ResultsRoot)
	}
	if cfg.Analysis.Language != "c" {
		t.Errorf("Language = %q, want default c", cfg.Analysis.Language)
	}
	if cfg.Analysis.Workers != 1 || cfg.Analysis.MaxReminders != 10 {
		t.Errorf("Workers = %d, MaxReminders = %d, want defaults 1 and 10",
			cfg.Analysis.Workers, cfg.Analysis.MaxReminders)
	}
	if cfg.LLM.MaxTokens != 8192 {
		t.Errorf("MaxTokens = %d, want default", cfg.LLM.MaxTokens)
	}
	if cfg.DB.Enabled() {
		t.Error("DB.Enabled() = true without DATABASE_URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TRIAGE_WORKERS", "8")
	t.Setenv("TRIAGE_MAX_REMINDERS", "3")
	t.Setenv("TRIAGE_LANGUAGE", "cpp")
	t.Setenv("DATABASE_URL", "postgres://localhost/triage")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Analysis.Workers != 8 || cfg.Analysis.MaxReminders != 3 {
		t.Errorf("Workers = %d, MaxReminders = %d", cfg.Analysis.Workers, cfg.Analysis.MaxReminders)
	}
	if cfg.Analysis.Language != "cpp" {
		t.Errorf("Language = %q", cfg.Analysis.Language)
	}
	if !cfg.DB.Enabled() {
		t.Error("DB.Enabled() = false with DATABASE_URL set")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T)
		wantKey string
	}{
		{"missing databases root", func(t *testing.T) { t.Setenv("DATABASES_ROOT", "") }, "DATABASES_ROOT"},
		{"zero workers", func(t *testing.T) { t.Setenv("TRIAGE_WORKERS", "0") }, "TRIAGE_WORKERS"},
		{"unsupported provider", func(t *testing.T) { t.Setenv("TRIAGE_LLM_PROVIDER", "gemini") }, "TRIAGE_LLM_PROVIDER"},
		{"missing api key", func(t *testing.T) { t.Setenv("TRIAGE_LLM_API_KEY", "") }, "TRIAGE_LLM_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			tt.mutate(t)

			_, err := Load()
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("got %v, want *config.Error", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Fatalf("Key = %q, want %q", cfgErr.Key, tt.wantKey)
			}
		})
	}
}
