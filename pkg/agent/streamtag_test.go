package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// collect feeds deltas through a parser and returns the forwarded output
// plus the finalize tail.
func collect(deltas ...string) string {
	p := newStreamTagParser()
	var out strings.Builder
	for _, d := range deltas {
		out.WriteString(p.feed(d))
	}
	out.WriteString(p.finalize())
	return out.String()
}

func TestStreamTagParser(t *testing.T) {
	t.Run("should pass plain text through unchanged", func(t *testing.T) {
		assert.Equal(t, "hello world", collect("hello ", "world"))
	})

	t.Run("should suppress a complete thinking span", func(t *testing.T) {
		out := collect("<think>reasoning</think>Here is the answer.")
		assert.Equal(t, "Here is the answer.", out)
	})

	t.Run("should suppress a thinking span split across deltas", func(t *testing.T) {
		out := collect("<thi", "nk>internal ", "stuff</th", "ink>visible")
		assert.Equal(t, "visible", out)
	})

	t.Run("should suppress embedded tool-call spans", func(t *testing.T) {
		out := collect("before <tool_call>{\"name\":\"x\"}</tool_call> after")
		assert.Equal(t, "before  after", out)
	})

	t.Run("should match markers case-insensitively", func(t *testing.T) {
		out := collect("<THINK>hidden</Think>shown")
		assert.Equal(t, "shown", out)
	})

	t.Run("should hold back a partial opening marker until it resolves", func(t *testing.T) {
		p := newStreamTagParser()
		first := p.feed("answer <to")
		assert.Equal(t, "answer ", first)

		// The tail turns out to be plain text after all.
		second := p.feed("tally fine")
		assert.Equal(t, "<totally fine", second)
		assert.Empty(t, p.finalize())
	})

	t.Run("should replay an unterminated thinking marker as text at end", func(t *testing.T) {
		out := collect("<think>never closed")
		assert.Equal(t, "<think>never closed", out)
	})

	t.Run("should replay an unterminated tool-call marker as text at end", func(t *testing.T) {
		out := collect("text <tool_call>{\"name\"")
		assert.Equal(t, "text <tool_call>{\"name\"", out)
	})

	t.Run("should emit each forwardable character exactly once", func(t *testing.T) {
		p := newStreamTagParser()
		var out strings.Builder
		for _, r := range "a<think>b</think>c<tool_call>d</tool_call>e" {
			out.WriteString(p.feed(string(r)))
		}
		out.WriteString(p.finalize())
		assert.Equal(t, "ace", out.String())
	})

	t.Run("should keep full text available in buffer", func(t *testing.T) {
		p := newStreamTagParser()
		p.feed("<think>a</think>b")
		assert.Equal(t, "<think>a</think>b", p.buffer())
	})

	t.Run("should preserve multi-byte text around spans", func(t *testing.T) {
		out := collect("早上好<think>推理</think>，你好")
		assert.Equal(t, "早上好，你好", out)
	})

	t.Run("should handle consecutive spans", func(t *testing.T) {
		out := collect("<think>a</think><think>b</think>done")
		assert.Equal(t, "done", out)
	})
}

func TestStripHelpers(t *testing.T) {
	t.Run("should strip completed thinking spans only", func(t *testing.T) {
		assert.Equal(t, "answer", StripThinking("<think>x</think>answer"))
		assert.Equal(t, "<think>open answer", StripThinking("<think>open answer"))
	})

	t.Run("should strip tool-call spans", func(t *testing.T) {
		assert.Equal(t, "a  b", StripToolCalls("a <tool_call>{}</tool_call> b"))
	})

	t.Run("should detect complete tool-call spans", func(t *testing.T) {
		assert.True(t, HasToolCallSpan("x<tool_call>{}</tool_call>"))
		assert.False(t, HasToolCallSpan("x<tool_call>{}"))
		assert.False(t, HasToolCallSpan("plain"))
	})
}

func TestPartialMarkerLen(t *testing.T) {
	t.Run("should detect proper prefixes of opening markers", func(t *testing.T) {
		assert.Equal(t, 1, partialMarkerLen("abc<"))
		assert.Equal(t, 3, partialMarkerLen("x<th"))
		assert.Equal(t, 5, partialMarkerLen("<tool"))
		assert.Equal(t, 0, partialMarkerLen("plain"))
	})
}

func TestAsciiLower(t *testing.T) {
	t.Run("should lowercase ASCII and keep byte offsets", func(t *testing.T) {
		in := "A中B"
		out := asciiLower(in)
		assert.Equal(t, "a中b", out)
		assert.Equal(t, len(in), len(out))
	})
}
