// Package llm defines the model transport contracts used by the agent
// orchestrator, plus OpenAI and Anthropic implementations.
//
// Invariants:
// - Chat is a single blocking request/response exchange.
// - ChatStream yields a lazy, finite, non-restartable delta sequence; the
//   channel is closed after the terminal delta.
// - Tool calls are normalized to JSON-text arguments before they leave this
//   package, regardless of provider wire format.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons, normalized across providers.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// ToolCall is a normalized tool invocation request from the model.
// Arguments is always a JSON object serialized as text.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // always "function"
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in the conversation transcript.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSchema describes one callable tool to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage tracks token consumption for one model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request contains the parameters for one model call.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// Response is the outcome of a blocking model call.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

// StreamDelta is one event of a streaming model call. Content carries the
// incremental text fragment. ToolCalls, Usage and FinishReason are only
// populated on the terminal delta (Done=true). Err reports a transport
// failure; after an Err delta the sequence ends.
type StreamDelta struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        *Usage
	FinishReason string
	Done         bool
	Err          error
}

// Provider is an interface for LLM API providers.
type Provider interface {
	// Chat makes a blocking model call.
	Chat(ctx context.Context, req Request) (*Response, error)

	// ChatStream makes a streaming model call. The returned channel is
	// closed after the terminal delta. The sequence cannot be restarted.
	ChatStream(ctx context.Context, req Request) (<-chan StreamDelta, error)

	// Name returns the provider name.
	Name() string
}
