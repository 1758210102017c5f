// Package llm provides a provider-agnostic client for tool-calling
// conversations, backed by the Anthropic or OpenAI APIs.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Provider selects the API backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds LLM client configuration. Required fields depend on the
// provider variant; Validate enforces them before any network call is made.
type Config struct {
	Provider Provider
	APIKey   string
	BaseURL  string // Optional: custom API endpoint (Azure-style deployments, proxies)
	Model    string // Model name (e.g. "gpt-4o", "claude-sonnet-4-5-20250514")
}

// Validate checks the per-provider required fields.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		if c.APIKey == "" {
			return fmt.Errorf("llm provider %q: API key is required", c.Provider)
		}
		return nil
	case "":
		return fmt.Errorf("llm provider is required")
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.Provider)
	}
}

// AgentClient supports tool-calling conversations for agent loops.
type AgentClient interface {
	ChatWithTools(ctx context.Context, req AgentRequest) (*AgentResponse, error)
	Model() string
}

// AgentRequest contains the messages and tools for one conversation turn.
type AgentRequest struct {
	Messages    []Message
	Tools       []Tool
	MaxTokens   int
	Temperature *float64
	TopP        *float64
}

// Message represents a conversation message.
type Message struct {
	Role       string     // "system", "user", "assistant", "tool"
	Content    string     // Text content
	ToolCalls  []ToolCall // For assistant messages that request tool calls
	ToolCallID string     // For tool result messages (references the tool call)
}

// Tool defines a function the LLM can call.
type Tool struct {
	Name        string
	Description string
	Parameters  any // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	ID        string // Unique ID for this call
	Name      string // Tool name
	Arguments string // JSON-encoded arguments
}

// AgentResponse contains the LLM's response.
type AgentResponse struct {
	Content          string     // Text response (when no tool calls)
	ToolCalls        []ToolCall // Tool calls to execute
	FinishReason     string     // "stop", "tool_calls", "length"
	PromptTokens     int
	CompletionTokens int
}

// NewAgentClient creates an AgentClient for the configured provider.
func NewAgentClient(cfg Config) (AgentClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	case ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// ParseToolArguments unmarshals tool arguments into the target struct.
func ParseToolArguments[T any](arguments string) (T, error) {
	var result T
	if err := json.Unmarshal([]byte(arguments), &result); err != nil {
		return result, fmt.Errorf("parse tool arguments: %w", err)
	}
	return result, nil
}

// GenerateSchemaFrom generates a JSON schema from an instance value.
func GenerateSchemaFrom(v any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}

// Temp is a helper for setting sampling parameters inline.
func Temp(t float64) *float64 {
	return &t
}
