package tools

import (
	"context"
	"log/slog"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
)

// EventService is the slice of the Calendly client the tools need.
type EventService interface {
	ListScheduledEvents(ctx context.Context) (*calendly.EventCollection, error)
	CancelEvent(ctx context.Context, uuid string) (*calendly.Cancellation, error)
}

// listEventsArgs is intentionally empty: the tool takes no arguments.
type listEventsArgs struct{}

// ListEventsTool returns the user's scheduled events exactly as Calendly
// reports them.
type ListEventsTool struct {
	events EventService
	logger *slog.Logger
}

// NewListEventsTool creates the list_scheduled_events tool.
func NewListEventsTool(events EventService, logger *slog.Logger) *ListEventsTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListEventsTool{events: events, logger: logger}
}

func (t *ListEventsTool) Name() string { return "list_scheduled_events" }

func (t *ListEventsTool) Description() string {
	return "List the user's scheduled events from Calendly. Use this tool when the user asks to see their upcoming events or scheduled appointments."
}

func (t *ListEventsTool) Parameters() map[string]any {
	return mustSchema(&listEventsArgs{})
}

// Call ignores args. On success it returns the provider's collection.
func (t *ListEventsTool) Call(ctx context.Context, _ map[string]any) any {
	events, err := t.events.ListScheduledEvents(ctx)
	if err != nil {
		t.logger.Warn("list scheduled events failed", "error", err)
		return errorResult(err)
	}
	return events
}
