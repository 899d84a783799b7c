package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/SanJoeng/ChatLab/pkg/llm"
	"github.com/SanJoeng/ChatLab/pkg/prompts"
	"github.com/rs/zerolog"
)

// SemanticSearchTool is the tool the retrieval pipeline forces before the
// round loop runs.
const SemanticSearchTool = "semantic_search_messages"

// Retrieval plan bounds.
const (
	defaultTopK           = 5
	defaultCandidateLimit = 200
	minTopK               = 1
	maxTopK               = 50
	minCandidateLimit     = 20
	maxCandidateLimit     = 500
)

// retrievalPlan is the JSON shape the rewrite call must produce.
type retrievalPlan struct {
	Query          string `json:"query"`
	TopK           int    `json:"top_k"`
	CandidateLimit int    `json:"candidate_limit"`
}

// runSemanticRetrieval guarantees the user's question is grounded in one
// semantic search before the round loop, when an embedding mode is
// configured and the search tool is registered. It runs at most once per
// execution. The return value reports whether cancellation was observed;
// once it has been, no forced call is dispatched and the caller must not
// issue any further model or tool calls.
func (a *Agent) runSemanticRetrieval(ctx context.Context, st *execState, question string, onChunk ChunkHandler, logger zerolog.Logger) bool {
	if ctx.Err() != nil {
		return true
	}
	if strings.TrimSpace(a.settings.EmbeddingModel()) == "" {
		return false
	}
	if !a.runtime.Has(SemanticSearchTool) {
		return false
	}

	plan, canceled := a.rewriteQuestion(ctx, st, question, logger)
	if canceled || ctx.Err() != nil {
		return true
	}
	plan = clampPlan(plan, a.settings.MaxMessageLimit())

	args, err := json.Marshal(map[string]interface{}{
		"query":           plan.Query,
		"top_k":           plan.TopK,
		"candidate_limit": plan.CandidateLimit,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode forced search arguments")
		return false
	}

	call := llm.ToolCall{
		ID:        newCallID(),
		Type:      "function",
		Name:      SemanticSearchTool,
		Arguments: string(args),
	}

	if onChunk != nil {
		onChunk(StreamChunk{Type: ChunkToolCall, ToolName: call.Name, ToolArgs: call.Arguments})
	}

	results := a.runtime.ExecuteBatch(ctx, []llm.ToolCall{call}, a.execCtx)
	res := results[0]

	if onChunk != nil {
		r := res
		onChunk(StreamChunk{Type: ChunkToolResult, ToolName: call.Name, ToolResult: &r})
	}

	st.toolsUsed = append(st.toolsUsed, call.Name)
	st.transcript = append(st.transcript, llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{call},
	})
	serialized := encodeToolResult(res)
	st.transcript = append(st.transcript, llm.Message{
		Role:       llm.RoleTool,
		Content:    serialized,
		ToolCallID: call.ID,
	})

	if res.Success && hasRetrievalContent(serialized) {
		evidence := llm.Message{
			Role:    llm.RoleSystem,
			Content: prompts.Evidence(a.locale, plan.Query, plan.TopK, plan.CandidateLimit, serialized),
		}
		st.transcript = insertBeforeLastUser(st.transcript, evidence)
	} else {
		logger.Debug().Bool("success", res.Success).Msg("Forced semantic search returned no usable evidence")
	}

	logger.Info().
		Str("query", plan.Query).
		Int("top_k", plan.TopK).
		Int("candidate_limit", plan.CandidateLimit).
		Msg("Semantic retrieval pipeline ran")

	return false
}

// rewriteQuestion issues one isolated model call (not appended to the
// transcript, no tool schemas) to turn the question into a retrieval plan.
// Ordinary call or parse failures degrade silently to the raw question; a
// cancellation error is reported separately so the pipeline can stop
// instead of dispatching the forced call.
func (a *Agent) rewriteQuestion(ctx context.Context, st *execState, question string, logger zerolog.Logger) (retrievalPlan, bool) {
	fallback := retrievalPlan{
		Query:          question,
		TopK:           defaultTopK,
		CandidateLimit: defaultCandidateLimit,
	}

	resp, err := a.provider.Chat(ctx, llm.Request{
		Model: a.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompts.Rewrite(a.locale, a.overrides)},
			{Role: llm.RoleUser, Content: question},
		},
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		if isCancellation(err) {
			logger.Debug().Err(err).Msg("Query rewrite canceled")
			return fallback, true
		}
		logger.Warn().Err(err).Msg("Query rewrite failed, using raw question")
		return fallback, false
	}
	st.usage.add(resp.Usage)

	obj := firstJSONObject(resp.Content)
	if obj == "" {
		logger.Warn().Msg("Query rewrite produced no JSON object, using raw question")
		return fallback, false
	}

	var plan retrievalPlan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		logger.Warn().Err(err).Msg("Query rewrite JSON unparsable, using raw question")
		return fallback, false
	}

	if strings.TrimSpace(plan.Query) == "" {
		plan.Query = question
	}
	if plan.TopK == 0 {
		plan.TopK = defaultTopK
	}
	if plan.CandidateLimit == 0 {
		plan.CandidateLimit = defaultCandidateLimit
	}
	return plan, false
}

// clampPlan bounds the plan parameters, additionally capped by the
// externally configured message limit.
func clampPlan(plan retrievalPlan, messageCap int) retrievalPlan {
	plan.TopK = clamp(plan.TopK, minTopK, maxTopK)
	plan.CandidateLimit = clamp(plan.CandidateLimit, minCandidateLimit, maxCandidateLimit)

	if messageCap > 0 {
		if plan.CandidateLimit > messageCap {
			plan.CandidateLimit = messageCap
		}
		if plan.TopK > messageCap {
			plan.TopK = messageCap
		}
	}
	return plan
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// hasRetrievalContent reports whether serialized tool output carries any
// actual results.
func hasRetrievalContent(serialized string) bool {
	switch strings.TrimSpace(serialized) {
	case "", "[]", "{}", "null":
		return false
	}
	return true
}

// insertBeforeLastUser splices msg immediately before the most recent
// user-role message, searched from the end. With no user message present it
// appends at the tail.
func insertBeforeLastUser(transcript []llm.Message, msg llm.Message) []llm.Message {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == llm.RoleUser {
			out := make([]llm.Message, 0, len(transcript)+1)
			out = append(out, transcript[:i]...)
			out = append(out, msg)
			out = append(out, transcript[i:]...)
			return out
		}
	}
	return append(transcript, msg)
}

// firstJSONObject returns the first balanced JSON object in s, tolerating
// surrounding prose and code fences. Braces inside JSON strings are ignored.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
