package chatstore

import (
	"context"
	"fmt"
	"time"

	"github.com/SanJoeng/ChatLab/pkg/toolruntime"
)

// Tool names exposed to the model.
const (
	ToolRecentMessages    = "get_recent_messages"
	ToolSearchMessages    = "search_messages"
	ToolMessagesByDate    = "get_messages_by_date"
	ToolChatStats         = "get_chat_stats"
	ToolSemanticSearch    = "semantic_search_messages"
	defaultToolLimit      = 20
	maxToolLimitUnbounded = 200
)

// RegisterTools registers the chat-corpus tools on an executor. The
// semantic search tool is only registered when the store has an embedding
// provider.
func RegisterTools(exec *toolruntime.Executor, store *Store) error {
	tools := []toolruntime.ToolDefinition{
		{
			Name:        ToolRecentMessages,
			Description: "Get the most recent messages of the conversation, in chronological order.",
			Parameters: []toolruntime.ToolParameter{
				{Name: "limit", Type: "integer", Description: "Maximum number of messages to return", Required: false, Default: defaultToolLimit},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *toolruntime.ExecutionContext) (interface{}, error) {
				limit := capLimit(intParam(params, "limit", defaultToolLimit), execCtx)
				return store.Recent(ctx, chatKey(execCtx), limit, window(execCtx))
			},
		},
		{
			Name:        ToolSearchMessages,
			Description: "Full-text keyword search over the conversation history.",
			Parameters: []toolruntime.ToolParameter{
				{Name: "query", Type: "string", Description: "Keyword or phrase to search for", Required: true},
				{Name: "limit", Type: "integer", Description: "Maximum number of messages to return", Required: false, Default: defaultToolLimit},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *toolruntime.ExecutionContext) (interface{}, error) {
				query, _ := params["query"].(string)
				limit := capLimit(intParam(params, "limit", defaultToolLimit), execCtx)
				return store.SearchKeyword(ctx, chatKey(execCtx), query, limit, window(execCtx))
			},
		},
		{
			Name:        ToolMessagesByDate,
			Description: "Get messages sent on one calendar day. The date format is YYYY-MM-DD.",
			Parameters: []toolruntime.ToolParameter{
				{Name: "date", Type: "string", Description: "Calendar day in YYYY-MM-DD format", Required: true},
				{Name: "limit", Type: "integer", Description: "Maximum number of messages to return", Required: false, Default: defaultToolLimit},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *toolruntime.ExecutionContext) (interface{}, error) {
				dateStr, _ := params["date"].(string)
				day, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
				if err != nil {
					return nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", dateStr)
				}
				limit := capLimit(intParam(params, "limit", defaultToolLimit), execCtx)
				return store.ByDate(ctx, chatKey(execCtx), day, limit)
			},
		},
		{
			Name:        ToolChatStats,
			Description: "Aggregate message statistics for the conversation: totals, per-sender counts, first and last message times.",
			Parameters:  []toolruntime.ToolParameter{},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *toolruntime.ExecutionContext) (interface{}, error) {
				return store.ChatStats(ctx, chatKey(execCtx), window(execCtx))
			},
		},
	}

	if store.embeddings != nil {
		tools = append(tools, toolruntime.ToolDefinition{
			Name:        ToolSemanticSearch,
			Description: "Semantic similarity search over the conversation history using vector embeddings.",
			Parameters: []toolruntime.ToolParameter{
				{Name: "query", Type: "string", Description: "Natural-language description of what to find", Required: true},
				{Name: "top_k", Type: "integer", Description: "Number of results to return", Required: false, Default: 5},
				{Name: "candidate_limit", Type: "integer", Description: "Size of the nearest-neighbor candidate pool", Required: false, Default: 200},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, execCtx *toolruntime.ExecutionContext) (interface{}, error) {
				query, _ := params["query"].(string)
				topK := capLimit(intParam(params, "top_k", 5), execCtx)
				candidateLimit := intParam(params, "candidate_limit", 200)
				if candidateLimit > 500 {
					candidateLimit = 500
				}
				if execCtx != nil && execCtx.MaxMessages > 0 && candidateLimit > execCtx.MaxMessages {
					candidateLimit = execCtx.MaxMessages
				}
				return store.SemanticSearch(ctx, chatKey(execCtx), query, topK, candidateLimit)
			},
		})
	}

	for _, def := range tools {
		if err := exec.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func chatKey(execCtx *toolruntime.ExecutionContext) string {
	if execCtx == nil {
		return ""
	}
	return execCtx.ChatKey
}

func window(execCtx *toolruntime.ExecutionContext) *Window {
	if execCtx == nil || execCtx.TimeRange == nil {
		return nil
	}
	return &Window{Start: execCtx.TimeRange.Start, End: execCtx.TimeRange.End}
}

// capLimit bounds a requested limit by the execution context's message cap.
func capLimit(limit int, execCtx *toolruntime.ExecutionContext) int {
	if limit <= 0 {
		limit = defaultToolLimit
	}
	max := maxToolLimitUnbounded
	if execCtx != nil && execCtx.MaxMessages > 0 {
		max = execCtx.MaxMessages
	}
	if limit > max {
		return max
	}
	return limit
}

// intParam reads an integer parameter that JSON decoding may have produced
// as float64.
func intParam(params map[string]interface{}, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
