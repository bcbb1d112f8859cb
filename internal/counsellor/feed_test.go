package counsellor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/internal/client"
	"github.com/lumaproject/luma/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeedAPI struct {
	mu sync.Mutex

	pool      []api.AvailableSession
	listErr   error
	acceptErr error

	listCalls int
}

func (f *fakeFeedAPI) AvailableSessions(context.Context) (*api.AvailableSessionsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]api.AvailableSession, len(f.pool))
	copy(out, f.pool)
	return &api.AvailableSessionsResponse{Sessions: out}, nil
}

func (f *fakeFeedAPI) AcceptSession(_ context.Context, sessionID string) (*api.AcceptSessionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return &api.AcceptSessionResponse{Status: "accepted", SessionID: sessionID}, nil
}

func newTestFeed(fake *fakeFeedAPI) *Feed {
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	return NewFeed(fake, time.Hour, log)
}

func pool(ids ...string) []api.AvailableSession {
	out := make([]api.AvailableSession, 0, len(ids))
	for _, id := range ids {
		out = append(out, api.AvailableSession{SessionID: id, Category: "General"})
	}
	return out
}

func TestRegistration_Validate(t *testing.T) {
	valid := Registration{
		DisplayName: "Sam",
		Categories:  []string{"academic"},
		Languages:   []string{"en"},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Registration)
	}{
		{"blank display name", func(r *Registration) { r.DisplayName = "  " }},
		{"no categories", func(r *Registration) { r.Categories = nil }},
		{"no languages", func(r *Registration) { r.Languages = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := valid
			tc.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}

	t.Run("aggregates all violations", func(t *testing.T) {
		empty := Registration{}
		err := empty.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "display name")
		assert.Contains(t, err.Error(), "category")
		assert.Contains(t, err.Error(), "language")
	})
}

func TestFeed_RefreshReplacesSnapshot(t *testing.T) {
	fake := &fakeFeedAPI{pool: pool("session-a", "session-b")}
	f := newTestFeed(fake)

	f.refreshOnce(context.Background())
	require.Len(t, f.Pool(), 2)

	// The next snapshot fully replaces the old one, no merge.
	fake.mu.Lock()
	fake.pool = pool("session-c")
	fake.mu.Unlock()
	f.refreshOnce(context.Background())

	got := f.Pool()
	require.Len(t, got, 1)
	assert.Equal(t, "session-c", got[0].SessionID)
}

func TestFeed_PollFailureKeepsLastKnownGood(t *testing.T) {
	fake := &fakeFeedAPI{pool: pool("session-a")}
	f := newTestFeed(fake)

	f.refreshOnce(context.Background())
	require.Len(t, f.Pool(), 1)

	fake.mu.Lock()
	fake.listErr = errors.New("timeout")
	fake.mu.Unlock()
	f.refreshOnce(context.Background())

	assert.Len(t, f.Pool(), 1)
}

func TestFeed_Accept(t *testing.T) {
	t.Run("success removes entry and records active", func(t *testing.T) {
		fake := &fakeFeedAPI{pool: pool("session-a", "session-b")}
		f := newTestFeed(fake)
		f.refreshOnce(context.Background())

		require.NoError(t, f.Accept(context.Background(), "session-a"))

		got := f.Pool()
		require.Len(t, got, 1)
		assert.Equal(t, "session-b", got[0].SessionID)
		assert.Equal(t, []string{"session-a"}, f.Active())
	})

	t.Run("conflict leaves pool untouched", func(t *testing.T) {
		fake := &fakeFeedAPI{
			pool:      pool("session-a"),
			acceptErr: &client.APIError{StatusCode: http.StatusConflict, Message: "session already assigned"},
		}
		f := newTestFeed(fake)
		f.refreshOnce(context.Background())

		err := f.Accept(context.Background(), "session-a")
		require.Error(t, err)
		assert.True(t, client.IsStatus(err, http.StatusConflict))

		assert.Len(t, f.Pool(), 1)
		assert.Empty(t, f.Active())
	})
}

func TestFeed_StopCancelsLoop(t *testing.T) {
	fake := &fakeFeedAPI{pool: pool("session-a")}
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	f := NewFeed(fake, 10*time.Millisecond, log)

	f.Start(context.Background())
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.listCalls > 1
	}, time.Second, 5*time.Millisecond)

	f.Stop()
	time.Sleep(30 * time.Millisecond)
	fake.mu.Lock()
	before := fake.listCalls
	fake.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	fake.mu.Lock()
	after := fake.listCalls
	fake.mu.Unlock()
	assert.Equal(t, before, after)
}
