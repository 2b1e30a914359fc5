package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens applies when the config leaves max_tokens
// unset; the Messages API requires one.
const defaultAnthropicMaxTokens = 1024

// AnthropicOptions configures an AnthropicClient.
type AnthropicOptions struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int64
}

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	api       *anthropic.Client
	maxTokens int64
	logger    *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client. SDK retries are
// disabled.
func NewAnthropicClient(opts AnthropicOptions, logger *slog.Logger) (*AnthropicClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("anthropic: missing API key")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimSuffix(base, "/v1")))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	client := anthropic.NewClient(reqOpts...)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return &AnthropicClient{
		api:       &client,
		maxTokens: maxTokens,
		logger:    logger.With("provider", "anthropic"),
	}, nil
}

// Chat sends a non-streaming chat completion request.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []Message, tools []ToolDefinition) (*ChatResponse, error) {
	anthropicMsgs, systemPrompt, err := convertToAnthropic(messages)
	if err != nil {
		return nil, err
	}
	anthropicTools := convertToolsToAnthropic(tools)

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(anthropicMsgs),
		"tools", len(anthropicTools),
		"system_len", len(systemPrompt),
	)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  anthropicMsgs,
		MaxTokens: c.maxTokens,
		Tools:     anthropicTools,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if c.logger.Enabled(ctx, LevelTrace) {
		if payload, err := json.Marshal(params); err == nil {
			c.logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))
		}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr != nil {
			return nil, fmt.Errorf("anthropic API error %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	result, err := convertFromAnthropic(resp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
		"stop_reason", result.FinishReason,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)

	return result, nil
}

// convertToAnthropic converts our messages to Anthropic format, pulling
// system messages out into a separate prompt. Tool results become user
// messages carrying tool_result blocks.
func convertToAnthropic(messages []Message) ([]anthropic.MessageParam, string, error) {
	var systemParts []string
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			if len(blocks) == 0 {
				return nil, "", errors.New("anthropic: empty assistant message")
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			// Results for several calls in one turn share a single user
			// message, as the API requires.
			if n := len(result); n > 0 && isToolResultMessage(result[n-1]) {
				result[n-1].Content = append(result[n-1].Content, block)
				continue
			}
			result = append(result, anthropic.NewUserMessage(block))

		default:
			return nil, "", fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	return result, strings.Join(systemParts, "\n\n"), nil
}

func isToolResultMessage(m anthropic.MessageParam) bool {
	if m.Role != anthropic.MessageParamRoleUser || len(m.Content) == 0 {
		return false
	}
	for _, b := range m.Content {
		if b.OfToolResult == nil {
			return false
		}
	}
	return true
}

// convertToolsToAnthropic converts JSON Schema tool definitions to the
// Anthropic tool format.
func convertToolsToAnthropic(tools []ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: map[string]any{},
		}
		if props, ok := tool.Parameters["properties"].(map[string]any); ok {
			schema.Properties = props
		}
		schema.Required = requiredFields(tool.Parameters["required"])

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}

// requiredFields accepts both []string and the []any a JSON round trip
// produces.
func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// convertFromAnthropic converts an Anthropic response to our internal format.
func convertFromAnthropic(resp *anthropic.Message) (*ChatResponse, error) {
	var content strings.Builder
	var toolCalls []ToolCall

	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic: decode input for %s: %w", b.Name, err)
				}
			}
			toolCalls = append(toolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return &ChatResponse{
		Model: string(resp.Model),
		Message: Message{
			Role:      RoleAssistant,
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
		FinishReason: string(resp.StopReason),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
