package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lumaproject/luma/pkg/prefixed_uuid"
)

// Memory is a mutex-guarded in-memory Store. It is the default backend and
// the one handler tests run against.
type Memory struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	messages    map[string][]Message
	counsellors map[string]*Counsellor
	byToken     map[string]string
	now         func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]*Session),
		messages:    make(map[string][]Message),
		counsellors: make(map[string]*Counsellor),
		byToken:     make(map[string]string),
		now:         time.Now,
	}
}

// CreateSession creates a new waiting session.
func (m *Memory) CreateSession(_ context.Context, category string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Session{
		ID:        prefixed_uuid.New("session").String(),
		CreatedAt: m.now(),
		Category:  category,
	}
	m.sessions[s.ID] = s
	m.messages[s.ID] = []Message{}

	copied := *s
	return &copied, nil
}

// GetSession returns a session by id.
func (m *Memory) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

// EndSession marks a session ended.
func (m *Memory) EndSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.EndedAt == nil {
		endedAt := m.now()
		s.EndedAt = &endedAt
	}
	return nil
}

// AppendMessage appends to the session log with a non-decreasing timestamp.
func (m *Memory) AppendMessage(_ context.Context, sessionID, sender, text string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.EndedAt != nil {
		return nil, ErrSessionEnded
	}

	ts := m.now()
	log := m.messages[sessionID]
	if n := len(log); n > 0 && ts.Before(log[n-1].Timestamp) {
		ts = log[n-1].Timestamp
	}

	msg := Message{Sender: sender, Text: text, Timestamp: ts}
	m.messages[sessionID] = append(log, msg)
	return &msg, nil
}

// ListMessages returns the full ordered log.
func (m *Memory) ListMessages(_ context.Context, sessionID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	log := m.messages[sessionID]
	out := make([]Message, len(log))
	copy(out, log)
	return out, nil
}

// ListAvailableSessions returns unassigned, unended sessions, oldest first.
func (m *Memory) ListAvailableSessions(_ context.Context) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Session
	for _, s := range m.sessions {
		if s.CounsellorID == "" && s.EndedAt == nil {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AssignSession claims a session for a counsellor; a second claim conflicts.
func (m *Memory) AssignSession(_ context.Context, sessionID, counsellorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.EndedAt != nil {
		return ErrSessionEnded
	}
	if s.CounsellorID != "" {
		return ErrSessionTaken
	}
	s.CounsellorID = counsellorID
	return nil
}

// RegisterCounsellor stores a counsellor with generated id and token.
func (m *Memory) RegisterCounsellor(_ context.Context, c Counsellor) (*Counsellor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.ID = prefixed_uuid.New("counsellor").String()
	c.Token = prefixed_uuid.New("lct").String()
	c.CreatedAt = m.now()
	if c.Status == "" {
		c.Status = "pending"
	}

	stored := c
	m.counsellors[c.ID] = &stored
	m.byToken[c.Token] = c.ID

	copied := c
	return &copied, nil
}

// CounsellorByToken resolves a bearer token.
func (m *Memory) CounsellorByToken(_ context.Context, token string) (*Counsellor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrCounsellorNotFound
	}
	copied := *m.counsellors[id]
	return &copied, nil
}

// ListCounsellors returns counsellors filtered by status, tokens redacted.
func (m *Memory) ListCounsellors(_ context.Context, status string) ([]Counsellor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Counsellor
	for _, c := range m.counsellors {
		if status != "" && c.Status != status {
			continue
		}
		copied := *c
		copied.Token = ""
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() {}
