package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
)

// stubTool returns a fixed value.
type stubTool struct {
	name   string
	result any
	calls  int
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub " + s.name }
func (s *stubTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (s *stubTool) Call(context.Context, map[string]any) any {
	s.calls++
	return s.result
}

func TestRegistry_DefinitionsInOrder(t *testing.T) {
	r := NewRegistry(discardLogger())
	svc := &fakeEvents{}
	r.Register(NewListEventsTool(svc, nil))
	r.Register(NewCancelEventTool(svc, CancelOptions{Clock: func() time.Time { return fixedNow }}))

	defs := r.Definitions()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
		if d.Description == "" || d.Parameters == nil {
			t.Errorf("definition %s incomplete: %+v", d.Name, d)
		}
	}
	if diff := cmp.Diff([]string{"list_scheduled_events", "cancel_event"}, names); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(names, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_ReplaceKeepsPosition(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	replacement := &stubTool{name: "a", result: "new"}
	r.Register(replacement)

	if diff := cmp.Diff([]string{"a", "b"}, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	got, err := r.Get("a")
	if err != nil || got != replacement {
		t.Errorf("Get(a) = %v, %v; want replacement", got, err)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get("reschedule_event")

	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("Get() err = %v, want *ErrToolUnavailable", err)
	}
	if unavailable.ToolName != "reschedule_event" {
		t.Errorf("ToolName = %q", unavailable.ToolName)
	}
}

func TestRegistry_GetCaseInsensitiveFallback(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&stubTool{name: "cancel_event"})
	if _, err := r.Get("Cancel_Event"); err != nil {
		t.Errorf("Get(Cancel_Event) = %v, want lower-case match", err)
	}
}

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry(discardLogger())
	svc := &fakeEvents{events: []calendly.ScheduledEvent{event("AAA", calendly.StatusActive, "2024-04-18T15:00:00Z")}}
	r.Register(NewCancelEventTool(svc, CancelOptions{Logger: discardLogger()}))

	got, err := r.Execute(context.Background(), "cancel_event", map[string]any{"date": "2024-04-18", "time": "16:00"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != `{"error":"Event not found"}` {
		t.Errorf("Execute() = %q", got)
	}

	_, err = r.Execute(context.Background(), "reschedule_event", nil)
	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) || unavailable.ToolName != "reschedule_event" {
		t.Fatalf("Execute(reschedule_event) err = %v, want *ErrToolUnavailable", err)
	}
	if want := `tool "reschedule_event" is not available`; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
}

func TestRegistry_ExecuteNilArgs(t *testing.T) {
	r := NewRegistry(nil)
	stub := &stubTool{name: "list", result: "ok"}
	r.Register(stub)
	got, err := r.Execute(context.Background(), "list", nil)
	if err != nil || got != "ok" || stub.calls != 1 {
		t.Errorf("Execute() = %q, %v (calls %d)", got, err, stub.calls)
	}
}
