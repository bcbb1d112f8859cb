// Package store holds the server-side state of the platform: sessions, their
// message logs, assignments and registered counsellors. The server owns the
// canonical log; clients only hold projections of it.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned for operations on an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTaken is returned when accepting a session that another
	// counsellor has already claimed.
	ErrSessionTaken = errors.New("session already assigned")

	// ErrSessionEnded is returned when appending to an ended session.
	ErrSessionEnded = errors.New("session has ended")

	// ErrCounsellorNotFound is returned when no counsellor matches a token.
	ErrCounsellorNotFound = errors.New("counsellor not found")
)

// Session is one anonymous counselling session. No user identity is attached.
type Session struct {
	ID           string
	CreatedAt    time.Time
	Category     string
	CounsellorID string
	EndedAt      *time.Time
}

// Status derives the server-side view of the session lifecycle.
func (s *Session) Status() string {
	switch {
	case s.EndedAt != nil:
		return "ended"
	case s.CounsellorID != "":
		return "active"
	default:
		return "waiting"
	}
}

// Message is one entry in a session's ordered, append-only log.
type Message struct {
	Sender    string
	Text      string
	Timestamp time.Time
}

// Counsellor is a registered volunteer. Token is the opaque bearer credential
// issued at registration.
type Counsellor struct {
	ID          string
	DisplayName string
	Categories  []string
	Languages   []string
	Bio         string
	Status      string
	Token       string
	CreatedAt   time.Time
}

// Store is the persistence boundary of the server.
type Store interface {
	// CreateSession creates a new waiting session with an opaque id.
	CreateSession(ctx context.Context, category string) (*Session, error)

	// GetSession returns a session by id, or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// EndSession marks a session ended. Ending an already-ended session is a
	// no-op.
	EndSession(ctx context.Context, id string) error

	// AppendMessage appends one message to the session's log. Timestamps are
	// assigned server-side and are non-decreasing within a session.
	AppendMessage(ctx context.Context, sessionID, sender, text string) (*Message, error)

	// ListMessages returns the full ordered log for a session.
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)

	// ListAvailableSessions returns unassigned, unended sessions, oldest first.
	ListAvailableSessions(ctx context.Context) ([]Session, error)

	// AssignSession atomically claims a session for a counsellor. A second
	// claim returns ErrSessionTaken.
	AssignSession(ctx context.Context, sessionID, counsellorID string) error

	// RegisterCounsellor stores a new counsellor and returns it with its
	// generated id and bearer token.
	RegisterCounsellor(ctx context.Context, c Counsellor) (*Counsellor, error)

	// CounsellorByToken resolves a bearer token, or ErrCounsellorNotFound.
	CounsellorByToken(ctx context.Context, token string) (*Counsellor, error)

	// ListCounsellors returns counsellors with the given status; empty status
	// lists all. Tokens are never included.
	ListCounsellors(ctx context.Context, status string) ([]Counsellor, error)

	// Close releases the store's resources.
	Close()
}
