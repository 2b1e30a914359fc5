package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/audit"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/llm"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// turn produces one scripted model reply. It sees exactly what the loop
// sent, so it can behave like a model reading the tool catalog.
type turn func(messages []llm.Message, defs []llm.ToolDefinition) (*llm.ChatResponse, error)

// scriptedLLM replays turns in order and records every call.
type scriptedLLM struct {
	mu    sync.Mutex
	turns []turn
	calls []chatCall
}

type chatCall struct {
	model    string
	messages []llm.Message
	defs     []llm.ToolDefinition
}

func (s *scriptedLLM) Chat(_ context.Context, model string, messages []llm.Message, defs []llm.ToolDefinition) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, chatCall{model: model, messages: messages, defs: defs})
	n := len(s.calls) - 1
	if n >= len(s.turns) {
		return nil, errors.New("scriptedLLM: no more turns")
	}
	return s.turns[n](messages, defs)
}

func say(content string) turn {
	return func([]llm.Message, []llm.ToolDefinition) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Model:        "test-model",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
			FinishReason: "stop",
			InputTokens:  10,
			OutputTokens: 5,
		}, nil
	}
}

func callTools(calls ...llm.ToolCall) turn {
	return func([]llm.Message, []llm.ToolDefinition) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{
			Model:        "test-model",
			Message:      llm.Message{Role: llm.RoleAssistant, ToolCalls: calls},
			FinishReason: "tool_calls",
			InputTokens:  20,
			OutputTokens: 7,
		}, nil
	}
}

// fakeEvents is an in-memory calendly event service.
type fakeEvents struct {
	mu        sync.Mutex
	events    []calendly.ScheduledEvent
	cancelled []string
}

func (f *fakeEvents) ListScheduledEvents(context.Context) (*calendly.EventCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &calendly.EventCollection{Collection: append([]calendly.ScheduledEvent(nil), f.events...)}, nil
}

func (f *fakeEvents) CancelEvent(_ context.Context, uuid string) (*calendly.Cancellation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, uuid)
	return &calendly.Cancellation{Resource: calendly.CancellationDetail{CancelerType: "host"}}, nil
}

type recordingAuditor struct{ entries []audit.Entry }

func (r *recordingAuditor) Record(_ context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

type recordingAnnouncer struct{ sent []notify.Cancellation }

func (r *recordingAnnouncer) AnnounceCancellation(_ context.Context, c notify.Cancellation) error {
	r.sent = append(r.sent, c)
	return nil
}
