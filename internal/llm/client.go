package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// tools may be empty, in which case the model cannot call any.
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDefinition) (*ChatResponse, error)
}
