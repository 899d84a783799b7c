package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SanJoeng/ChatLab/pkg/llm"
	"github.com/SanJoeng/ChatLab/pkg/prompts"
	"github.com/SanJoeng/ChatLab/pkg/toolruntime"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds agent construction parameters.
type Config struct {
	Provider    llm.Provider
	Runtime     ToolRuntime
	ExecContext *toolruntime.ExecutionContext
	Settings    Settings
	Options     Options
	History     []llm.Message
	ChatType    string // prompts.ChatTypePrivate or prompts.ChatTypeGroup
	Overrides   *prompts.Overrides
	Locale      string
	Logger      zerolog.Logger
}

// Agent orchestrates one user turn at a time: it assembles the transcript,
// runs the optional semantic-retrieval pipeline, then drives the round loop
// until a final answer, a cancellation, or the round budget.
type Agent struct {
	provider  llm.Provider
	runtime   ToolRuntime
	execCtx   *toolruntime.ExecutionContext
	settings  Settings
	opts      Options
	history   []llm.Message
	chatType  string
	overrides *prompts.Overrides
	locale    string
	logger    zerolog.Logger
}

// New creates a new Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("tool runtime is required")
	}
	if cfg.Options.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.Options.Temperature < 0 || cfg.Options.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if cfg.Options.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	}

	opts := cfg.Options
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 5
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}

	settings := cfg.Settings
	if settings == nil {
		settings = StaticSettings{}
	}

	chatType := cfg.ChatType
	if chatType == "" {
		chatType = prompts.ChatTypePrivate
	}

	return &Agent{
		provider:  cfg.Provider,
		runtime:   cfg.Runtime,
		execCtx:   cfg.ExecContext,
		settings:  settings,
		opts:      opts,
		history:   cfg.History,
		chatType:  chatType,
		overrides: cfg.Overrides,
		locale:    cfg.Locale,
		logger:    cfg.Logger,
	}, nil
}

// execState holds the per-execution mutable state. A fresh one is created
// for every Execute/ExecuteStream call.
type execState struct {
	transcript []llm.Message
	usage      usageTotal
	toolsUsed  []string
	rounds     int
	streaming  bool
}

// Execute runs one blocking execution and returns the final result.
func (a *Agent) Execute(ctx context.Context, question string) (Result, error) {
	return a.run(ctx, question, nil)
}

// ExecuteStream runs one streaming execution, delivering chunks to onChunk,
// and returns the same final result as Execute. Exactly one terminal chunk
// (done or error) is delivered.
func (a *Agent) ExecuteStream(ctx context.Context, question string, onChunk ChunkHandler) (Result, error) {
	if onChunk == nil {
		return Result{}, fmt.Errorf("chunk handler is required")
	}
	return a.run(ctx, question, onChunk)
}

func (a *Agent) run(ctx context.Context, question string, onChunk ChunkHandler) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := a.logger.With().Str("execution_id", uuid.NewString()).Logger()

	st := &execState{streaming: onChunk != nil}
	st.transcript = append(st.transcript, llm.Message{
		Role:    llm.RoleSystem,
		Content: prompts.System(a.chatType, a.locale, a.overrides),
	})
	st.transcript = append(st.transcript, a.history...)
	st.transcript = append(st.transcript, llm.Message{Role: llm.RoleUser, Content: question})

	canceled := a.runSemanticRetrieval(ctx, st, question, onChunk, logger)

	var content string
	var err error
	if !canceled {
		content, err = a.roundLoop(ctx, st, onChunk, logger)
	}

	result := Result{
		Content:    content,
		ToolsUsed:  st.toolsUsed,
		ToolRounds: st.rounds,
		TotalUsage: st.usage.snapshot(),
	}

	if err != nil {
		logger.Error().Err(err).Msg("Agent execution failed")
		if onChunk != nil {
			usage := st.usage.snapshot()
			onChunk(StreamChunk{Type: ChunkError, Error: err.Error(), Usage: &usage})
		}
		return result, err
	}

	logger.Info().
		Int("tool_rounds", st.rounds).
		Int("total_tokens", result.TotalUsage.TotalTokens).
		Msg("Agent execution completed")

	if onChunk != nil {
		usage := st.usage.snapshot()
		onChunk(StreamChunk{Type: ChunkDone, Usage: &usage})
	}
	return result, nil
}

// roundLoop drives model call / tool dispatch iterations. Cancellation is
// not an error: it yields whatever has been produced so far.
func (a *Agent) roundLoop(ctx context.Context, st *execState, onChunk ChunkHandler, logger zerolog.Logger) (string, error) {
	for st.rounds < a.opts.MaxToolRounds {
		if ctx.Err() != nil {
			return "", nil
		}

		turn, err := a.modelCall(ctx, st, a.runtime.Schemas(), onChunk, logger)
		if err != nil {
			if isCancellation(err) {
				return "", nil
			}
			return "", err
		}
		if turn.canceled {
			return StripThinking(StripToolCalls(turn.content)), nil
		}

		calls := turn.toolCalls
		visible := StripThinking(turn.content)

		// Native structured calls take precedence; embedded markup is
		// consulted whenever the reply carries no native call, regardless
		// of the reported finish reason.
		if len(calls) == 0 {
			if HasToolCallSpan(turn.content) {
				extracted, found := ExtractToolCalls(turn.content, logger)
				if found && len(extracted) > 0 {
					calls = extracted
					visible = StripToolCalls(visible)
				} else {
					// Markup present but garbage: the thinking-stripped
					// text is the final answer, no retry.
					return StripThinking(turn.content), nil
				}
			}
		}

		if len(calls) == 0 {
			return StripThinking(turn.content), nil
		}

		a.dispatchCalls(ctx, st, visible, calls, onChunk, logger)
		st.rounds++
	}

	return a.forcedFinal(ctx, st, onChunk, logger)
}

// modelTurn is the outcome of one model call, normalized across blocking
// and streaming transports.
type modelTurn struct {
	content      string
	toolCalls    []llm.ToolCall
	finishReason string
	canceled     bool
}

func (a *Agent) modelCall(ctx context.Context, st *execState, tools []llm.ToolSchema, onChunk ChunkHandler, logger zerolog.Logger) (modelTurn, error) {
	req := llm.Request{
		Model:       a.opts.Model,
		Messages:    st.transcript,
		Tools:       tools,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	}

	if !st.streaming {
		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			return modelTurn{}, err
		}
		st.usage.add(resp.Usage)
		return modelTurn{
			content:      resp.Content,
			toolCalls:    resp.ToolCalls,
			finishReason: resp.FinishReason,
		}, nil
	}

	deltas, err := a.provider.ChatStream(ctx, req)
	if err != nil {
		return modelTurn{}, err
	}

	parser := newStreamTagParser()
	turn := modelTurn{}

	for delta := range deltas {
		if ctx.Err() != nil {
			turn.content = parser.buffer()
			turn.canceled = true
			return turn, nil
		}

		if delta.Err != nil {
			st.usage.add(delta.Usage)
			if isCancellation(delta.Err) {
				turn.content = parser.buffer()
				turn.canceled = true
				return turn, nil
			}
			return modelTurn{}, delta.Err
		}

		if delta.Content != "" {
			if safe := parser.feed(delta.Content); safe != "" && onChunk != nil {
				onChunk(StreamChunk{Type: ChunkContent, Content: safe})
			}
		}

		if delta.Done {
			st.usage.add(delta.Usage)
			turn.toolCalls = delta.ToolCalls
			turn.finishReason = delta.FinishReason
		}
	}

	if tail := parser.finalize(); tail != "" && onChunk != nil {
		onChunk(StreamChunk{Type: ChunkContent, Content: tail})
	}

	turn.content = parser.buffer()
	return turn, nil
}

// dispatchCalls appends the assistant message carrying the calls, runs the
// batch, and appends one tool message per result, preserving call order.
func (a *Agent) dispatchCalls(ctx context.Context, st *execState, visible string, calls []llm.ToolCall, onChunk ChunkHandler, logger zerolog.Logger) {
	st.transcript = append(st.transcript, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   visible,
		ToolCalls: calls,
	})

	if onChunk != nil {
		for _, call := range calls {
			onChunk(StreamChunk{Type: ChunkToolCall, ToolName: call.Name, ToolArgs: call.Arguments})
		}
	}

	results := a.runtime.ExecuteBatch(ctx, calls, a.execCtx)

	for i, call := range calls {
		res := results[i]
		st.toolsUsed = append(st.toolsUsed, call.Name)
		st.transcript = append(st.transcript, llm.Message{
			Role:       llm.RoleTool,
			Content:    encodeToolResult(res),
			ToolCallID: call.ID,
		})

		logger.Debug().
			Str("tool", call.Name).
			Bool("success", res.Success).
			Msg("Tool call dispatched")

		if onChunk != nil {
			r := res
			onChunk(StreamChunk{Type: ChunkToolResult, ToolName: call.Name, ToolResult: &r})
		}
	}
}

// forcedFinal handles round-budget exhaustion: one synthetic instruction,
// one last model call without tool schemas, and its content is the answer
// regardless of any further tool-call attempts in it.
func (a *Agent) forcedFinal(ctx context.Context, st *execState, onChunk ChunkHandler, logger zerolog.Logger) (string, error) {
	if ctx.Err() != nil {
		return "", nil
	}

	logger.Info().Int("rounds", st.rounds).Msg("Tool-round budget exhausted, forcing final answer")

	st.transcript = append(st.transcript, llm.Message{
		Role:    llm.RoleUser,
		Content: prompts.Exhausted(a.locale, a.overrides),
	})

	resp, err := a.provider.Chat(ctx, llm.Request{
		Model:       a.opts.Model,
		Messages:    st.transcript,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		if isCancellation(err) {
			return "", nil
		}
		return "", err
	}
	st.usage.add(resp.Usage)

	content := StripThinking(StripToolCalls(resp.Content))
	if onChunk != nil && content != "" {
		onChunk(StreamChunk{Type: ChunkContent, Content: content})
	}
	return content, nil
}

// encodeToolResult serializes a tool result into tool-message text. Errors
// become textual content so the model can react to the failure.
func encodeToolResult(res toolruntime.Result) string {
	if !res.Success {
		return fmt.Sprintf("Error: %s", res.Error)
	}
	if s, ok := res.Output.(string); ok {
		return s
	}
	b, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Sprintf("%v", res.Output)
	}
	return string(b)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
