package llm

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid openai", Config{Provider: ProviderOpenAI, APIKey: "sk-test"}, ""},
		{"valid anthropic", Config{Provider: ProviderAnthropic, APIKey: "sk-ant"}, ""},
		{"missing provider", Config{APIKey: "sk-test"}, "provider is required"},
		{"unsupported provider", Config{Provider: "gemini", APIKey: "k"}, "unsupported llm provider"},
		{"missing api key", Config{Provider: ProviderOpenAI}, "API key is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseToolArguments(t *testing.T) {
	type params struct {
		FunctionName string `json:"function_name"`
	}

	got, err := ParseToolArguments[params](`{"function_name":"memcpy_wrapper"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got.FunctionName != "memcpy_wrapper" {
		t.Fatalf("FunctionName = %q", got.FunctionName)
	}

	if _, err := ParseToolArguments[params](`not json`); err == nil {
		t.Fatal("expected an error for malformed arguments")
	}
}

func TestNewAgentClientRejectsBadConfig(t *testing.T) {
	if _, err := NewAgentClient(Config{Provider: "gemini", APIKey: "k"}); err == nil {
		t.Fatal("expected an error for an unsupported provider")
	}
	if _, err := NewAgentClient(Config{Provider: ProviderOpenAI}); err == nil {
		t.Fatal("expected an error for a missing API key")
	}
}
