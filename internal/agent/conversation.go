package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/llm"
)

// ErrUnmatchedToolResult is returned when a tool result does not answer a
// call from the immediately preceding model reply.
var ErrUnmatchedToolResult = errors.New("tool result does not match a pending tool call")

// Conversation is the ordered, append-only message list for one request.
// It is never persisted and is discarded once the response is built.
type Conversation struct {
	messages []llm.Message
}

// NewConversation starts a conversation with a single user message.
func NewConversation(userText string) *Conversation {
	return &Conversation{
		messages: []llm.Message{{Role: llm.RoleUser, Content: userText}},
	}
}

// Messages returns a copy of the conversation so far.
func (c *Conversation) Messages() []llm.Message {
	return slices.Clone(c.messages)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// AppendReply appends a model reply. The role is forced to assistant.
func (c *Conversation) AppendReply(msg llm.Message) {
	msg.Role = llm.RoleAssistant
	msg.ToolCalls = slices.Clone(msg.ToolCalls)
	c.messages = append(c.messages, msg)
}

// AppendToolResult appends the result of one tool call. id must name a
// call in the most recent model reply, with only tool results after that
// reply, and must not already have been answered.
func (c *Conversation) AppendToolResult(id, content string) error {
	answered := make(map[string]bool)
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		switch m.Role {
		case llm.RoleTool:
			answered[m.ToolCallID] = true
			continue
		case llm.RoleAssistant:
			if answered[id] {
				return fmt.Errorf("%w: %q already answered", ErrUnmatchedToolResult, id)
			}
			for _, tc := range m.ToolCalls {
				if tc.ID == id {
					c.messages = append(c.messages, llm.Message{
						Role:       llm.RoleTool,
						Content:    content,
						ToolCallID: id,
					})
					return nil
				}
			}
		}
		break
	}
	return fmt.Errorf("%w: %q", ErrUnmatchedToolResult, id)
}

// MarshalJSON encodes the conversation as a JSON array of messages.
func (c *Conversation) MarshalJSON() ([]byte, error) {
	if c.messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.messages)
}

// UnmarshalJSON decodes a JSON array of messages.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var msgs []llm.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	c.messages = msgs
	return nil
}
