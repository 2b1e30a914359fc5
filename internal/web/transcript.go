package web

import (
	"slices"
	"sync"
)

// Exchange is one user message and the reply shown for it.
type Exchange struct {
	User string
	Bot  string
	// Failed marks a reply that is an error description rather than
	// model output.
	Failed bool
}

// Transcripts holds the per-browser conversation display. It lives only
// in process memory and is lost on restart.
type Transcripts struct {
	mu       sync.Mutex
	sessions map[string][]Exchange
	max      int
}

// NewTranscripts creates a store that keeps at most max exchanges per
// session (0 means unlimited).
func NewTranscripts(max int) *Transcripts {
	return &Transcripts{
		sessions: make(map[string][]Exchange),
		max:      max,
	}
}

// Get returns a copy of the session's exchanges, oldest first.
func (t *Transcripts) Get(session string) []Exchange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.sessions[session])
}

// Append adds an exchange, dropping the oldest past the limit.
func (t *Transcripts) Append(session string, ex Exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := append(t.sessions[session], ex)
	if t.max > 0 && len(list) > t.max {
		list = slices.Clone(list[len(list)-t.max:])
	}
	t.sessions[session] = list
}

// Clear forgets the session's exchanges.
func (t *Transcripts) Clear(session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, session)
}

