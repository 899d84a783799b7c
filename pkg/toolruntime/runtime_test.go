package toolruntime

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SanJoeng/ChatLab/pkg/llm"
)

func echoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echoes its input",
		Parameters: []ToolParameter{
			{Name: "input", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
			return params["input"], nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))

		assert.True(t, e.Has("echo"))
		assert.Equal(t, []string{"echo"}, e.List())
	})

	t.Run("should reject duplicate registration", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))

		err := e.Register(echoTool())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("should reject a tool without a name", func(t *testing.T) {
		def := echoTool()
		def.Name = ""
		assert.Error(t, New().Register(def))
	})

	t.Run("should reject a tool without a handler", func(t *testing.T) {
		def := echoTool()
		def.Handler = nil
		assert.Error(t, New().Register(def))
	})

	t.Run("should reject an invalid parameter type", func(t *testing.T) {
		def := echoTool()
		def.Parameters[0].Type = "text"
		assert.Error(t, New().Register(def))
	})
}

func TestSchemas(t *testing.T) {
	t.Run("should expose a sorted JSON-schema catalog", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(ToolDefinition{
			Name:        "b_tool",
			Description: "B",
			Handler:     func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) { return nil, nil },
		}))
		require.NoError(t, e.Register(echoTool()))

		schemas := e.Schemas()
		require.Len(t, schemas, 2)
		assert.Equal(t, "b_tool", schemas[0].Name)
		assert.Equal(t, "echo", schemas[1].Name)

		assert.Equal(t, "object", schemas[1].Parameters["type"])
		props, ok := schemas[1].Parameters["properties"].(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, props, "input")
		assert.Equal(t, []string{"input"}, schemas[1].Parameters["required"])
	})
}

func TestExecute(t *testing.T) {
	t.Run("should execute a tool successfully", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))

		res := e.Execute(context.Background(), "echo", map[string]interface{}{"input": "hello"}, nil)
		assert.True(t, res.Success)
		assert.Equal(t, "hello", res.Output)
		assert.False(t, res.Truncated)
	})

	t.Run("should fail for an unknown tool", func(t *testing.T) {
		e := New()
		res := e.Execute(context.Background(), "missing", nil, nil)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "tool not found")
	})

	t.Run("should reject parameters failing validation", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))

		res := e.Execute(context.Background(), "echo", map[string]interface{}{}, nil)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "validation")
	})

	t.Run("should reject unexpected parameters", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))

		res := e.Execute(context.Background(), "echo", map[string]interface{}{"input": "x", "extra": 1}, nil)
		assert.False(t, res.Success)
	})

	t.Run("should report handler errors in the result", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(ToolDefinition{
			Name:        "failing",
			Description: "Always fails",
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
				return nil, fmt.Errorf("db unavailable")
			},
		}))

		res := e.Execute(context.Background(), "failing", nil, nil)
		assert.False(t, res.Success)
		assert.Equal(t, "db unavailable", res.Error)
	})

	t.Run("should recover from a panicking handler", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(ToolDefinition{
			Name:        "panicky",
			Description: "Panics",
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
				panic("boom")
			},
		}))

		res := e.Execute(context.Background(), "panicky", nil, nil)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "panicked")
	})

	t.Run("should time out a slow handler", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(ToolDefinition{
			Name:        "slow",
			Description: "Sleeps",
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
				time.Sleep(2 * time.Second)
				return "done", nil
			},
		}))

		res := e.Execute(context.Background(), "slow", nil, &ExecutionContext{Timeout: 50 * time.Millisecond})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "timeout")
	})

	t.Run("should report cancellation rather than a timeout", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(ToolDefinition{
			Name:        "slow",
			Description: "Sleeps",
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
				time.Sleep(2 * time.Second)
				return "done", nil
			},
		}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res := e.Execute(ctx, "slow", nil, nil)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "canceled")
		assert.NotContains(t, res.Error, "timeout")
	})

	t.Run("should truncate oversized output", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(ToolDefinition{
			Name:        "huge",
			Description: "Returns a lot",
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error) {
				return strings.Repeat("x", 20*1024), nil
			},
		}))

		res := e.Execute(context.Background(), "huge", nil, nil)
		assert.True(t, res.Success)
		assert.True(t, res.Truncated)
		assert.Contains(t, res.Output.(string), "[output truncated]")
	})
}

func TestExecuteBatch(t *testing.T) {
	t.Run("should align results with calls and never abort", func(t *testing.T) {
		e := New()
		require.NoError(t, e.Register(echoTool()))

		calls := []llm.ToolCall{
			{ID: "a", Name: "echo", Arguments: `{"input":"first"}`},
			{ID: "b", Name: "echo", Arguments: `not json`},
			{ID: "c", Name: "missing", Arguments: `{}`},
			{ID: "d", Name: "echo", Arguments: `{"input":"last"}`},
		}

		results := e.ExecuteBatch(context.Background(), calls, nil)
		require.Len(t, results, 4)

		assert.True(t, results[0].Success)
		assert.Equal(t, "first", results[0].Output)

		assert.False(t, results[1].Success)
		assert.Contains(t, results[1].Error, "malformed")

		assert.False(t, results[2].Success)
		assert.Contains(t, results[2].Error, "not found")

		assert.True(t, results[3].Success)
		assert.Equal(t, "last", results[3].Output)
	})

	t.Run("should handle an empty batch", func(t *testing.T) {
		e := New()
		results := e.ExecuteBatch(context.Background(), nil, nil)
		assert.Empty(t, results)
	})
}
