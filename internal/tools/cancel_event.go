package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/audit"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/notify"
)

// NotFoundMessage is returned when no active event starts at the
// requested date and time.
const NotFoundMessage = "Event not found"

// Layouts used to compare a start time with the model's arguments.
const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// startTimeLayouts are tried in order. Calendly sends RFC 3339 with
// microseconds; the zone-less forms cover hand-written fixtures.
var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// timeArgLayouts normalize the model's time argument. The model is asked
// for 24-hour HH:MM but does not always comply.
var timeArgLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04PM",
	"3:04 PM",
	"3PM",
	"3 PM",
}

// Auditor records cancellation attempts.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Announcer publishes successful cancellations.
type Announcer interface {
	AnnounceCancellation(ctx context.Context, c notify.Cancellation) error
}

// cancelEventArgs describes the arguments the model must supply. The
// date description is extended at runtime with the current date.
type cancelEventArgs struct {
	Date string `json:"date" jsonschema:"format=date" jsonschema_description:"The date of the event to cancel. If the user provides a relative day description like 'today', 'tomorrow', or a specific day (e.g., 'Monday'), convert it to the proper date format (YYYY-MM-DD) relative to the current date."`
	Time string `json:"time" jsonschema:"format=time" jsonschema_description:"The time of the event to cancel. If they specify the time in any format, convert it to the 24-hour format (HH:MM)."`
}

// CancelOptions configures a CancelEventTool. Every field is optional.
type CancelOptions struct {
	// Clock supplies "today" for the date guidance. Defaults to time.Now.
	Clock func() time.Time
	// Location is the zone "today" is computed in. Defaults to time.Local.
	Location  *time.Location
	Auditor   Auditor
	Announcer Announcer
	Logger    *slog.Logger
}

// CancelEventTool cancels the first active event whose start matches the
// requested date and time.
type CancelEventTool struct {
	events    EventService
	clock     func() time.Time
	loc       *time.Location
	auditor   Auditor
	announcer Announcer
	logger    *slog.Logger
}

// NewCancelEventTool creates the cancel_event tool.
func NewCancelEventTool(events EventService, opts CancelOptions) *CancelEventTool {
	t := &CancelEventTool{
		events:    events,
		clock:     opts.Clock,
		loc:       opts.Location,
		auditor:   opts.Auditor,
		announcer: opts.Announcer,
		logger:    opts.Logger,
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

func (t *CancelEventTool) Name() string { return "cancel_event" }

func (t *CancelEventTool) Description() string {
	return "Cancel an event in Calendly. Use this tool when the user wants to cancel a specific scheduled event, typically by providing a description like 'cancel my event at 3pm today'."
}

// Parameters embeds today's date in the date description so the model
// can resolve relative days.
func (t *CancelEventTool) Parameters() map[string]any {
	schema := mustSchema(&cancelEventArgs{})
	if props, ok := schema["properties"].(map[string]any); ok {
		if date, ok := props["date"].(map[string]any); ok {
			desc, _ := date["description"].(string)
			date["description"] = desc + " " + t.today()
		}
	}
	return schema
}

func (t *CancelEventTool) today() string {
	now := t.clock().In(t.loc)
	return fmt.Sprintf("Today's date is %s (%s).", now.Format(dateLayout), now.Weekday())
}

// Call looks up the event and cancels it. Every failure is returned as an
// ErrorResult.
func (t *CancelEventTool) Call(ctx context.Context, args map[string]any) any {
	date, _ := args["date"].(string)
	date = strings.TrimSpace(date)
	if date == "" {
		return ErrorResult{Error: "date is required"}
	}
	rawTime, _ := args["time"].(string)
	clock := normalizeTime(rawTime)
	if clock == "" {
		return ErrorResult{Error: "time is required"}
	}

	events, err := t.events.ListScheduledEvents(ctx)
	if err != nil {
		t.logger.Warn("list scheduled events failed", "error", err)
		return errorResult(err)
	}

	event, ok := t.match(events.Collection, date, clock)
	if !ok {
		t.logger.Info("no event to cancel", "date", date, "time", clock)
		t.record(ctx, audit.Entry{Date: date, Time: clock, Outcome: audit.OutcomeNotFound, Detail: NotFoundMessage})
		return ErrorResult{Error: NotFoundMessage}
	}

	uuid := event.UUID()
	result, err := t.events.CancelEvent(ctx, uuid)
	if err != nil {
		t.logger.Warn("cancel event failed", "uuid", uuid, "error", err)
		er := errorResult(err)
		t.record(ctx, audit.Entry{
			Date: date, Time: clock, EventUUID: uuid, EventName: event.Name,
			Outcome: audit.OutcomeFailed, Detail: er.Error,
		})
		return er
	}

	t.logger.Info("event cancelled", "uuid", uuid, "name", event.Name, "start_time", event.StartTime)
	t.record(ctx, audit.Entry{
		Date: date, Time: clock, EventUUID: uuid, EventName: event.Name,
		Outcome: audit.OutcomeCancelled,
	})
	t.announce(ctx, notify.Cancellation{
		EventUUID:   uuid,
		EventName:   event.Name,
		StartTime:   event.StartTime,
		RequestID:   RequestIDFromContext(ctx),
		CancelledAt: t.clock(),
	})
	return result
}

// match returns the first active event starting at date and clock, in
// provider order. The start time is formatted in its own offset.
func (t *CancelEventTool) match(events []calendly.ScheduledEvent, date, clock string) (calendly.ScheduledEvent, bool) {
	for _, e := range events {
		if !e.Active() {
			continue
		}
		start, err := parseStartTime(e.StartTime)
		if err != nil {
			t.logger.Warn("skipping event with unparseable start time",
				"uuid", e.UUID(), "start_time", e.StartTime, "error", err)
			continue
		}
		if start.Format(dateLayout) == date && start.Format(timeLayout) == clock {
			return e, true
		}
	}
	return calendly.ScheduledEvent{}, false
}

func (t *CancelEventTool) record(ctx context.Context, e audit.Entry) {
	if t.auditor == nil {
		return
	}
	e.RequestID = RequestIDFromContext(ctx)
	e.Timestamp = t.clock()
	if err := t.auditor.Record(ctx, e); err != nil {
		t.logger.Warn("audit record failed", "outcome", e.Outcome, "error", err)
	}
}

func (t *CancelEventTool) announce(ctx context.Context, c notify.Cancellation) {
	if t.announcer == nil {
		return
	}
	if err := t.announcer.AnnounceCancellation(ctx, c); err != nil {
		t.logger.Warn("cancellation announcement failed", "uuid", c.EventUUID, "error", err)
	}
}

func parseStartTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range startTimeLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// normalizeTime returns s as HH:MM when it parses under a known layout,
// and the trimmed input otherwise, so that an odd value still fails to
// match rather than matching the wrong event.
func normalizeTime(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	upper := strings.ToUpper(s)
	for _, layout := range timeArgLayouts {
		if ts, err := time.Parse(layout, upper); err == nil {
			return ts.Format(timeLayout)
		}
	}
	return s
}
