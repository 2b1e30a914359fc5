package tools

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/audit"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/calendly"
	"github.com/UtkarshaGupte/Chatbot-With-Calendly/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEvents is an in-memory EventService that records cancellations.
type fakeEvents struct {
	mu        sync.Mutex
	events    []calendly.ScheduledEvent
	listErr   error
	cancelErr error
	listCalls int
	cancelled []string
}

func (f *fakeEvents) ListScheduledEvents(context.Context) (*calendly.EventCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &calendly.EventCollection{
		Collection: append([]calendly.ScheduledEvent(nil), f.events...),
		Pagination: calendly.Pagination{Count: len(f.events)},
	}, nil
}

func (f *fakeEvents) CancelEvent(_ context.Context, uuid string) (*calendly.Cancellation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, uuid)
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &calendly.Cancellation{Resource: calendly.CancellationDetail{CancelerType: "host", CanceledBy: "Host"}}, nil
}

type fakeAuditor struct {
	entries []audit.Entry
	err     error
}

func (f *fakeAuditor) Record(_ context.Context, e audit.Entry) error {
	f.entries = append(f.entries, e)
	return f.err
}

type fakeAnnouncer struct {
	sent []notify.Cancellation
	err  error
}

func (f *fakeAnnouncer) AnnounceCancellation(_ context.Context, c notify.Cancellation) error {
	f.sent = append(f.sent, c)
	return f.err
}

func event(uuid, status, start string) calendly.ScheduledEvent {
	return calendly.ScheduledEvent{
		URI:       "https://api.calendly.com/scheduled_events/" + uuid,
		Name:      "Meeting " + uuid,
		Status:    status,
		StartTime: start,
	}
}
