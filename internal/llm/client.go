package llm

import (
	"context"
	"strings"
)

// Message represents a chat message
type Message struct {
	Role      string     `json:"role"` // "user", "assistant", "tool"
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolID    string     `json:"tool_id,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"` // Name of the tool for tool responses
}

// ToolCall is a provider-neutral tool invocation request. Provider dialects
// are resolved into this shape once, at the adapter boundary; nothing past
// the adapter re-inspects raw provider payloads.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded argument object
}

// ToolSpec declares a tool to the completion provider
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolChoice controls whether the provider must, may, or must not call tools
type ToolChoice int

const (
	// ToolChoiceNone omits tools from the request entirely
	ToolChoiceNone ToolChoice = iota
	// ToolChoiceAuto lets the model decide whether to call a tool
	ToolChoiceAuto
	// ToolChoiceRequired forces the model to call at least one tool
	ToolChoiceRequired
)

// CompletionRequest represents a completion request
type CompletionRequest struct {
	Messages     []*Message `json:"messages"`
	Tools        []ToolSpec `json:"tools,omitempty"`
	ToolChoice   ToolChoice `json:"tool_choice,omitempty"`
	Temperature  float64    `json:"temperature"`
	MaxTokens    int        `json:"max_tokens,omitempty"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
}

// Client is the interface for completion provider clients
type Client interface {
	// CompleteWithRequest sends a completion request and returns the response
	CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	// Complete is a simplified version for a single prompt
	Complete(ctx context.Context, prompt string) (string, error)
	// GetModelName returns the model name
	GetModelName() string
}

// CheckUsable rejects a response that carries neither text nor tool calls.
// An empty completion is treated as a failure requiring retry, never as
// valid empty output.
func CheckUsable(provider string, resp *CompletionResponse) error {
	if resp == nil {
		return &EmptyResponseError{Provider: provider}
	}
	if strings.TrimSpace(resp.Content) == "" && len(resp.ToolCalls) == 0 {
		return &EmptyResponseError{Provider: provider}
	}
	return nil
}
