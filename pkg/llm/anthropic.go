package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider for Anthropic Claude.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Chat makes a blocking API call to Anthropic Claude.
func (p *AnthropicProvider) Chat(ctx context.Context, req Request) (*Response, error) {
	reqParams, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	response, err := p.client.Messages.New(ctx, reqParams)
	if err != nil {
		return nil, err
	}

	content, toolCalls, err := extractAnthropicContent(response.Content)
	if err != nil {
		return nil, err
	}

	return &Response{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: normalizeAnthropicStopReason(string(response.StopReason)),
		Usage: &Usage{
			PromptTokens:     int(response.Usage.InputTokens),
			CompletionTokens: int(response.Usage.OutputTokens),
			TotalTokens:      int(response.Usage.InputTokens + response.Usage.OutputTokens),
		},
	}, nil
}

// ChatStream makes a streaming API call to Anthropic Claude.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req Request) (<-chan StreamDelta, error) {
	reqParams, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, reqParams)
	out := make(chan StreamDelta)

	go func() {
		defer close(out)

		message := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				select {
				case out <- StreamDelta{Err: err, Done: true}:
				case <-ctx.Done():
				}
				return
			}

			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if deltaVariant.Text != "" {
						select {
						case out <- StreamDelta{Content: deltaVariant.Text}:
						case <-ctx.Done():
							return
						}
					}
				}
			}
		}

		usage := &Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		}

		if err := stream.Err(); err != nil {
			select {
			case out <- StreamDelta{Err: err, Usage: usage, Done: true}:
			case <-ctx.Done():
			}
			return
		}

		_, toolCalls, err := extractAnthropicContent(message.Content)
		if err != nil {
			select {
			case out <- StreamDelta{Err: err, Usage: usage, Done: true}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case out <- StreamDelta{
			ToolCalls:    toolCalls,
			Usage:        usage,
			FinishReason: normalizeAnthropicStopReason(string(message.StopReason)),
			Done:         true,
		}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// buildParams converts a normalized request into Anthropic parameters.
// System messages are lifted out of the transcript into the system field.
func (p *AnthropicProvider) buildParams(req Request) (anthropic.MessageNewParams, error) {
	anthropicMessages := []anthropic.MessageParam{}
	systemPrompt := ""

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content

		case RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input map[string]interface{}
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return anthropic.MessageNewParams{}, fmt.Errorf("failed to decode tool arguments: %w", err)
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
				}
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}

		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))

		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(maxTokens),
	}

	if systemPrompt != "" {
		reqParams.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	if req.Temperature > 0 {
		reqParams.Temperature = anthropic.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, tool := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.Parameters["properties"],
				},
			}

			if required, ok := tool.Parameters["required"]; ok {
				if reqSlice, ok := required.([]string); ok {
					toolParam.InputSchema.Required = reqSlice
				} else if reqSlice, ok := required.([]interface{}); ok {
					strSlice := make([]string, len(reqSlice))
					for i, v := range reqSlice {
						strSlice[i], _ = v.(string)
					}
					toolParam.InputSchema.Required = strSlice
				}
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		reqParams.Tools = tools
	}

	return reqParams, nil
}

// extractAnthropicContent flattens response blocks into text plus normalized
// tool calls.
func extractAnthropicContent(blocks []anthropic.ContentBlockUnion) (string, []ToolCall, error) {
	content := ""
	toolCalls := []ToolCall{}

	for _, block := range blocks {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, ToolCall{
				ID:        b.ID,
				Type:      "function",
				Name:      b.Name,
				Arguments: b.JSON.Input.Raw(),
			})
		}
	}

	return content, toolCalls, nil
}

// normalizeAnthropicStopReason maps Anthropic stop reasons to the normalized
// constants.
func normalizeAnthropicStopReason(reason string) string {
	switch reason {
	case "tool_use":
		return FinishToolCalls
	case "max_tokens":
		return FinishLength
	case "":
		return ""
	default:
		return FinishStop
	}
}
