package agent

import (
	"context"

	"github.com/SanJoeng/ChatLab/pkg/llm"
	"github.com/SanJoeng/ChatLab/pkg/toolruntime"
)

// ToolRuntime is the tool-execution collaborator. *toolruntime.Executor
// satisfies it; tests substitute fakes.
type ToolRuntime interface {
	// Schemas returns the current tool schema catalog.
	Schemas() []llm.ToolSchema

	// Has reports whether a tool is registered.
	Has(name string) bool

	// ExecuteBatch runs a batch of calls and returns one result per call,
	// positionally aligned, never erroring.
	ExecuteBatch(ctx context.Context, calls []llm.ToolCall, execCtx *toolruntime.ExecutionContext) []toolruntime.Result
}

// Settings is a read-only view of the active runtime configuration. It is
// consulted once per semantic-pipeline invocation and never cached across
// executions.
type Settings interface {
	// EmbeddingModel returns the configured embedding model name; empty or
	// blank means no embedding mode is configured.
	EmbeddingModel() string

	// MaxMessageLimit returns the externally configured cap on messages a
	// retrieval may return; zero means uncapped.
	MaxMessageLimit() int
}

// StaticSettings is a fixed-value Settings implementation.
type StaticSettings struct {
	Embedding  string
	MessageCap int
}

func (s StaticSettings) EmbeddingModel() string { return s.Embedding }

func (s StaticSettings) MaxMessageLimit() int { return s.MessageCap }

// Options configures one agent's model calls and round budget.
type Options struct {
	Model         string  `json:"model"`
	MaxToolRounds int     `json:"max_tool_rounds,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
}

// DefaultOptions returns the default options for a model.
func DefaultOptions(model string) Options {
	return Options{
		Model:         model,
		MaxToolRounds: 5,
		Temperature:   0.7,
		MaxTokens:     2048,
	}
}

// Result contains the outcome of one execution.
type Result struct {
	Content    string    `json:"content"`
	ToolsUsed  []string  `json:"tools_used,omitempty"`
	ToolRounds int       `json:"tool_rounds"`
	TotalUsage llm.Usage `json:"total_usage"`
}

// ChunkType discriminates streaming events.
type ChunkType string

const (
	ChunkContent    ChunkType = "content"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkToolResult ChunkType = "tool_result"
	ChunkDone       ChunkType = "done"
	ChunkError      ChunkType = "error"
)

// StreamChunk is one event delivered to a streaming consumer. Exactly one
// terminal chunk (done or error) is delivered per execution; done and error
// both carry the usage accumulated so far.
type StreamChunk struct {
	Type       ChunkType           `json:"type"`
	Content    string              `json:"content,omitempty"`
	ToolName   string              `json:"tool_name,omitempty"`
	ToolArgs   string              `json:"tool_args,omitempty"`
	ToolResult *toolruntime.Result `json:"tool_result,omitempty"`
	Usage      *llm.Usage          `json:"usage,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// ChunkHandler receives stream chunks in order.
type ChunkHandler func(chunk StreamChunk)
