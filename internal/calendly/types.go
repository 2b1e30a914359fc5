package calendly

import (
	"fmt"
	"strings"
	"time"
)

// Event statuses reported by Calendly.
const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
)

// ScheduledEvent is one booking on the user's calendar. StartTime and
// EndTime are kept as the provider sent them so that callers can decide
// how to interpret the offset.
type ScheduledEvent struct {
	URI       string    `json:"uri"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	EventType string    `json:"event_type"`
	Location  *Location `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location describes where an event takes place.
type Location struct {
	Type     string `json:"type"`
	Location string `json:"location,omitempty"`
	JoinURL  string `json:"join_url,omitempty"`
}

// UUID returns the cancellation identifier: the last path segment of URI.
func (e ScheduledEvent) UUID() string {
	uri := strings.TrimRight(e.URI, "/")
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// Active reports whether the event can still be cancelled.
func (e ScheduledEvent) Active() bool {
	return e.Status == StatusActive
}

// EventCollection is the body of GET /scheduled_events.
type EventCollection struct {
	Collection []ScheduledEvent `json:"collection"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination carries Calendly's cursor links. ListScheduledEvents follows
// NextPage until it is null.
type Pagination struct {
	Count             int     `json:"count"`
	NextPage          *string `json:"next_page"`
	PreviousPage      *string `json:"previous_page"`
	NextPageToken     *string `json:"next_page_token"`
	PreviousPageToken *string `json:"previous_page_token"`
}

// Cancellation is the body of POST /scheduled_events/{uuid}/cancellation.
type Cancellation struct {
	Resource CancellationDetail `json:"resource"`
}

// CancellationDetail describes who cancelled an event and why.
type CancellationDetail struct {
	CanceledBy   string    `json:"canceled_by"`
	Reason       *string   `json:"reason"`
	CancelerType string    `json:"canceler_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is the resource returned by GET /users/me.
type User struct {
	URI                 string `json:"uri"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	Timezone            string `json:"timezone"`
	SchedulingURL       string `json:"scheduling_url"`
	CurrentOrganization string `json:"current_organization"`
}

// APIError is a non-2xx response from Calendly. Message is the provider's
// own "message" field, which callers surface verbatim.
type APIError struct {
	StatusCode int
	Title      string
	Message    string
}

func (e *APIError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("calendly %d %s: %s", e.StatusCode, e.Title, e.Message)
	}
	return fmt.Sprintf("calendly %d: %s", e.StatusCode, e.Message)
}
