// Package providers abstracts LLM backends behind a common chat interface.
package providers

import "context"

// Message is a single turn in a chat conversation.
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	Images     []ImageContent // user messages only
	ToolCalls  []ToolCall     // assistant messages only
	ToolCallID string         // tool result messages only
}

// ImageContent is an inline base64 image attached to a user message.
type ImageContent struct {
	MimeType string
	Data     string // base64, no data: prefix
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolDefinition describes a callable tool in OpenAI function format.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Model       string // empty means the provider default
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
	JSONMode    bool // constrain output to a JSON object
}

// ChatResponse is the parsed result of a chat completion.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // "stop", "tool_calls", "length"
	Usage        *Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is a chat completion backend.
type Provider interface {
	Name() string
	DefaultModel() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
