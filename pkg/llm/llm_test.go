package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactory(t *testing.T) {
	var f Factory

	t.Run("should create the openai provider", func(t *testing.T) {
		p, err := f.NewProvider("openai", "key", "")
		assert.NoError(t, err)
		assert.Equal(t, "openai", p.Name())
	})

	t.Run("should create the anthropic provider", func(t *testing.T) {
		p, err := f.NewProvider("anthropic", "key", "")
		assert.NoError(t, err)
		assert.Equal(t, "anthropic", p.Name())
	})

	t.Run("should reject unknown providers", func(t *testing.T) {
		_, err := f.NewProvider("gemini", "key", "")
		assert.Error(t, err)
	})
}

func TestNormalizeFinishReason(t *testing.T) {
	t.Run("should normalize openai reasons", func(t *testing.T) {
		assert.Equal(t, FinishToolCalls, normalizeFinishReason("tool_calls"))
		assert.Equal(t, FinishToolCalls, normalizeFinishReason("function_call"))
		assert.Equal(t, FinishLength, normalizeFinishReason("length"))
		assert.Equal(t, FinishStop, normalizeFinishReason("stop"))
		assert.Equal(t, FinishStop, normalizeFinishReason("content_filter"))
		assert.Empty(t, normalizeFinishReason(""))
	})

	t.Run("should normalize anthropic stop reasons", func(t *testing.T) {
		assert.Equal(t, FinishToolCalls, normalizeAnthropicStopReason("tool_use"))
		assert.Equal(t, FinishLength, normalizeAnthropicStopReason("max_tokens"))
		assert.Equal(t, FinishStop, normalizeAnthropicStopReason("end_turn"))
		assert.Empty(t, normalizeAnthropicStopReason(""))
	})
}
