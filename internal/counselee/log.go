package counselee

import (
	"sync"
	"time"

	"github.com/lumaproject/luma/internal/api"
)

// Entry is one message in the local view of a session log.
type Entry struct {
	Sender    string
	Text      string
	Timestamp time.Time
}

// MessageLog is the client's ordered projection of the server's session log.
// It is append-only between polls; a poll result replaces the view wholesale,
// which is what keeps the rendered sequence free of duplicates and stale
// reorders.
type MessageLog struct {
	mu      sync.Mutex
	entries []Entry
}

// Append adds one locally-originated entry (an optimistic send or a local
// system notice).
func (l *MessageLog) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Replace swaps the whole view for the server's authoritative sequence.
// Optimistic local entries are discarded; the next poll re-delivers anything
// the server accepted.
func (l *MessageLog) Replace(msgs []api.Message) {
	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, Entry{
			Sender:    m.Sender,
			Text:      m.Text,
			Timestamp: time.Unix(m.Timestamp, 0),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
}

// Entries returns a copy of the current view.
func (l *MessageLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries in the current view.
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
