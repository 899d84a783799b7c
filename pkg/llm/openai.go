package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat APIs.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL may be empty to
// use the default endpoint, or point at any OpenAI-compatible server.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Chat makes a blocking API call to OpenAI.
func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (*Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]

	toolCalls := []ToolCall{}
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Type:      "function",
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &Response{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: normalizeFinishReason(string(choice.FinishReason)),
		Usage: &Usage{
			PromptTokens:     int(response.Usage.PromptTokens),
			CompletionTokens: int(response.Usage.CompletionTokens),
			TotalTokens:      int(response.Usage.TotalTokens),
		},
	}, nil
}

// ChatStream makes a streaming API call to OpenAI. Deltas are forwarded as
// they arrive; the terminal delta carries accumulated tool calls and usage.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req Request) (<-chan StreamDelta, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	out := make(chan StreamDelta)

	go func() {
		defer close(out)

		acc := openai.ChatCompletionAccumulator{}
		finishReason := ""
		var usage *Usage

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				if choice.Delta.Content != "" {
					select {
					case out <- StreamDelta{Content: choice.Delta.Content}:
					case <-ctx.Done():
						return
					}
				}
				if choice.FinishReason != "" {
					finishReason = normalizeFinishReason(choice.FinishReason)
				}
			}

			// The usage chunk arrives after the final choice chunk.
			if chunk.Usage.TotalTokens > 0 {
				usage = &Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case out <- StreamDelta{Err: err, Usage: usage, Done: true}:
			case <-ctx.Done():
			}
			return
		}

		toolCalls := []ToolCall{}
		if len(acc.Choices) > 0 {
			for _, tc := range acc.Choices[0].Message.ToolCalls {
				toolCalls = append(toolCalls, ToolCall{
					ID:        tc.ID,
					Type:      "function",
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}

		select {
		case out <- StreamDelta{
			ToolCalls:    toolCalls,
			Usage:        usage,
			FinishReason: finishReason,
			Done:         true,
		}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// buildParams converts a normalized request into OpenAI parameters.
func (p *OpenAIProvider) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, tc := range msg.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.Parameters),
				},
			})
		}
		params.Tools = tools
	}

	return params, nil
}

// normalizeFinishReason maps provider-specific finish reasons to the
// normalized constants.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length", "max_tokens":
		return FinishLength
	case "":
		return ""
	default:
		return FinishStop
	}
}
