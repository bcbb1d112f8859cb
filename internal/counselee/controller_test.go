package counselee

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionAPI struct {
	mu sync.Mutex

	startErr   error
	startDelay time.Duration
	sendErr    error
	fetchErr   error
	serverLog  []api.Message

	startCalls int
	fetchCalls int
	endCalls   int
}

func (f *fakeSessionAPI) StartSession(_ context.Context, _ string) (*api.StartSessionResponse, error) {
	f.mu.Lock()
	f.startCalls++
	delay, err := f.startDelay, f.startErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &api.StartSessionResponse{SessionID: "session-test"}, nil
}

func (f *fakeSessionAPI) SendMessage(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendErr
}

func (f *fakeSessionAPI) GetMessages(_ context.Context, _ string) (*api.MessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]api.Message, len(f.serverLog))
	copy(out, f.serverLog)
	return &api.MessagesResponse{Messages: out}, nil
}

func (f *fakeSessionAPI) EndSession(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls++
	return nil
}

func (f *fakeSessionAPI) setServerLog(msgs []api.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serverLog = msgs
}

func (f *fakeSessionAPI) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeSessionAPI) counts() (start, fetch, end int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.fetchCalls, f.endCalls
}

func newTestController(fake *fakeSessionAPI, interval time.Duration) *Controller {
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	return NewController(fake, interval, log)
}

func TestController_StartTransitions(t *testing.T) {
	t.Run("idle to waiting on success", func(t *testing.T) {
		fake := &fakeSessionAPI{}
		c := newTestController(fake, time.Hour)
		defer c.End(context.Background())

		require.NoError(t, c.Start(context.Background(), "academic"))
		assert.Equal(t, StatusWaiting, c.Status())
		assert.Equal(t, "session-test", c.SessionID())

		entries := c.Messages()
		require.Len(t, entries, 1)
		assert.Equal(t, api.SenderSystem, entries[0].Sender)
	})

	t.Run("reverts to idle on failure", func(t *testing.T) {
		fake := &fakeSessionAPI{startErr: errors.New("boom")}
		c := newTestController(fake, time.Hour)

		require.Error(t, c.Start(context.Background(), ""))
		assert.Equal(t, StatusIdle, c.Status())
		assert.Empty(t, c.SessionID())

		// The guard released; a retry is allowed.
		fake.mu.Lock()
		fake.startErr = nil
		fake.mu.Unlock()
		require.NoError(t, c.Start(context.Background(), ""))
		defer c.End(context.Background())
		assert.Equal(t, StatusWaiting, c.Status())
	})

	t.Run("double start creates one session", func(t *testing.T) {
		fake := &fakeSessionAPI{startDelay: 50 * time.Millisecond}
		c := newTestController(fake, time.Hour)
		defer c.End(context.Background())

		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() { errs <- c.Start(context.Background(), "") }()
		}

		var ok, rejected int
		for i := 0; i < 2; i++ {
			switch err := <-errs; {
			case err == nil:
				ok++
			case errors.Is(err, ErrSessionInProgress):
				rejected++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, rejected)

		starts, _, _ := fake.counts()
		assert.Equal(t, 1, starts)
	})
}

func TestController_Send(t *testing.T) {
	t.Run("without session is a caller bug", func(t *testing.T) {
		c := newTestController(&fakeSessionAPI{}, time.Hour)
		assert.ErrorIs(t, c.Send(context.Background(), "hi"), ErrNoSession)
	})

	t.Run("optimistic append is immediate", func(t *testing.T) {
		fake := &fakeSessionAPI{}
		c := newTestController(fake, time.Hour)
		defer c.End(context.Background())
		require.NoError(t, c.Start(context.Background(), ""))

		require.NoError(t, c.Send(context.Background(), "hello"))
		entries := c.Messages()
		last := entries[len(entries)-1]
		assert.Equal(t, api.SenderCounselee, last.Sender)
		assert.Equal(t, "hello", last.Text)
	})

	t.Run("failed send leaves local error entry", func(t *testing.T) {
		fake := &fakeSessionAPI{sendErr: errors.New("network down")}
		c := newTestController(fake, time.Hour)
		defer c.End(context.Background())
		require.NoError(t, c.Start(context.Background(), ""))

		require.Error(t, c.Send(context.Background(), "hello"))
		entries := c.Messages()
		last := entries[len(entries)-1]
		assert.Equal(t, api.SenderSystem, last.Sender)
		assert.Contains(t, last.Text, "Failed to send")
	})
}

func TestController_PollReplacesWholesale(t *testing.T) {
	fake := &fakeSessionAPI{}
	c := newTestController(fake, time.Hour)
	defer c.End(context.Background())
	require.NoError(t, c.Start(context.Background(), ""))

	// Optimistic entry plus queue notice are local-only.
	require.NoError(t, c.Send(context.Background(), "first"))
	require.Equal(t, 2, c.msgs.Len())

	fake.setServerLog([]api.Message{
		{Sender: api.SenderCounselee, Text: "first", Timestamp: 100},
	})
	c.pollOnce(context.Background())

	entries := c.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Text)

	// A second poll of the same log never duplicates entries.
	c.pollOnce(context.Background())
	assert.Len(t, c.Messages(), 1)
}

func TestController_PollFailureKeepsLastKnownGood(t *testing.T) {
	fake := &fakeSessionAPI{}
	c := newTestController(fake, time.Hour)
	defer c.End(context.Background())
	require.NoError(t, c.Start(context.Background(), ""))

	fake.setServerLog([]api.Message{{Sender: api.SenderCounselee, Text: "kept", Timestamp: 100}})
	c.pollOnce(context.Background())
	require.Len(t, c.Messages(), 1)

	fake.setFetchErr(errors.New("timeout"))
	c.pollOnce(context.Background())

	assert.Equal(t, StatusWaiting, c.Status())
	entries := c.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Text)
}

func TestController_JoinMarkerActivates(t *testing.T) {
	t.Run("system marker", func(t *testing.T) {
		fake := &fakeSessionAPI{}
		c := newTestController(fake, time.Hour)
		defer c.End(context.Background())
		require.NoError(t, c.Start(context.Background(), ""))

		fake.setServerLog([]api.Message{
			{Sender: api.SenderSystem, Text: api.CounsellorJoinedText, Timestamp: 100},
		})
		c.pollOnce(context.Background())
		assert.Equal(t, StatusActive, c.Status())
	})

	t.Run("counsellor message", func(t *testing.T) {
		fake := &fakeSessionAPI{}
		c := newTestController(fake, time.Hour)
		defer c.End(context.Background())
		require.NoError(t, c.Start(context.Background(), ""))

		fake.setServerLog([]api.Message{
			{Sender: api.SenderCounsellor, Text: "Hi, I'm here to listen.", Timestamp: 100},
		})
		c.pollOnce(context.Background())
		assert.Equal(t, StatusActive, c.Status())
	})

	t.Run("unrelated system text does not activate", func(t *testing.T) {
		fake := &fakeSessionAPI{}
		c := newTestController(fake, time.Hour)
		defer c.End(context.Background())
		require.NoError(t, c.Start(context.Background(), ""))

		fake.setServerLog([]api.Message{
			{Sender: api.SenderSystem, Text: "queue position updated", Timestamp: 100},
		})
		c.pollOnce(context.Background())
		assert.Equal(t, StatusWaiting, c.Status())
	})
}

func TestController_EndCancelsPoller(t *testing.T) {
	fake := &fakeSessionAPI{}
	c := newTestController(fake, 10*time.Millisecond)
	require.NoError(t, c.Start(context.Background(), ""))

	require.Eventually(t, func() bool {
		_, fetches, _ := fake.counts()
		return fetches > 0
	}, time.Second, 5*time.Millisecond)

	c.End(context.Background())
	assert.Equal(t, StatusEnded, c.Status())
	assert.Empty(t, c.SessionID())

	_, _, ends := fake.counts()
	assert.Equal(t, 1, ends)

	// Let any in-flight tick drain, then verify the schedule is gone.
	time.Sleep(30 * time.Millisecond)
	_, before, _ := fake.counts()
	time.Sleep(50 * time.Millisecond)
	_, after, _ := fake.counts()
	assert.Equal(t, before, after)

	// A stray tick after teardown performs no fetch and no mutation.
	c.pollOnce(context.Background())
	_, final, _ := fake.counts()
	assert.Equal(t, after, final)
	assert.Equal(t, StatusEnded, c.Status())
}

func TestController_EndDuringStartStaysEnded(t *testing.T) {
	fake := &fakeSessionAPI{startDelay: 50 * time.Millisecond}
	c := newTestController(fake, 5*time.Millisecond)

	errs := make(chan error, 1)
	go func() { errs <- c.Start(context.Background(), "") }()

	require.Eventually(t, func() bool {
		return c.Status() == StatusStarting
	}, time.Second, time.Millisecond)

	// End while the start response is still in flight.
	c.End(context.Background())
	require.Equal(t, StatusEnded, c.Status())

	require.ErrorIs(t, <-errs, ErrSessionEnded)
	assert.Equal(t, StatusEnded, c.Status())
	assert.Empty(t, c.SessionID())

	// The orphaned server-side session is closed exactly once.
	_, _, ends := fake.counts()
	assert.Equal(t, 1, ends)

	// No poller was launched for the dead session.
	time.Sleep(50 * time.Millisecond)
	_, fetches, _ := fake.counts()
	assert.Zero(t, fetches)
}

func TestController_EndIsTerminal(t *testing.T) {
	fake := &fakeSessionAPI{}
	c := newTestController(fake, time.Hour)
	require.NoError(t, c.Start(context.Background(), ""))
	c.End(context.Background())

	// Ended is terminal: no restart through this controller.
	assert.ErrorIs(t, c.Start(context.Background(), ""), ErrSessionInProgress)
	assert.ErrorIs(t, c.Send(context.Background(), "hi"), ErrNoSession)

	_, _, ends := fake.counts()
	c.End(context.Background())
	_, _, endsAfter := fake.counts()
	assert.Equal(t, ends, endsAfter)
}
