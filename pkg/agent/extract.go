package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/SanJoeng/ChatLab/pkg/llm"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// embeddedCall is the JSON payload expected inside a tool-call span.
// Arguments may be a JSON-encoded string or a nested object.
type embeddedCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ExtractToolCalls parses embedded tool-call markup into normalized tool
// calls with synthesized ids. Individual unparsable blocks are skipped and
// logged; they never abort extraction of later blocks. The second return
// value reports whether any block was present at all, so callers can tell
// "markup was garbage" apart from "no markup".
func ExtractToolCalls(text string, logger zerolog.Logger) ([]llm.ToolCall, bool) {
	matches := toolCallSpanRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, false
	}

	calls := []llm.ToolCall{}
	for _, m := range matches {
		payload := strings.TrimSpace(m[1])

		var ec embeddedCall
		if err := json.Unmarshal([]byte(payload), &ec); err != nil {
			logger.Warn().Err(err).Str("payload", logSnippet(payload)).Msg("Skipping unparsable tool-call block")
			continue
		}
		if ec.Name == "" {
			logger.Warn().Str("payload", logSnippet(payload)).Msg("Skipping tool-call block without a name")
			continue
		}

		args, err := normalizeArguments(ec.Arguments)
		if err != nil {
			logger.Warn().Err(err).Str("tool", ec.Name).Msg("Skipping tool-call block with bad arguments")
			continue
		}

		calls = append(calls, llm.ToolCall{
			ID:        newCallID(),
			Type:      "function",
			Name:      ec.Name,
			Arguments: args,
		})
	}

	return calls, true
}

// normalizeArguments serializes the arguments field to JSON object text.
// A JSON-encoded string is unwrapped; an object passes through.
func normalizeArguments(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "{}", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		if strings.TrimSpace(s) == "" {
			return "{}", nil
		}
		return s, nil
	}

	return string(trimmed), nil
}

// newCallID synthesizes a unique id for a fallback-extracted call.
func newCallID() string {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the system entropy source does.
		return "call_fallback"
	}
	return "call_" + id
}

func logSnippet(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
