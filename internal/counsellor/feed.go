package counsellor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/pkg/logger"
)

// FeedAPI is the server boundary the feed drives. *client.Client satisfies it.
type FeedAPI interface {
	AvailableSessions(ctx context.Context) (*api.AvailableSessionsResponse, error)
	AcceptSession(ctx context.Context, sessionID string) (*api.AcceptSessionResponse, error)
}

// Feed maintains the counsellor's view of the waiting-session pool. Each poll
// replaces the snapshot wholesale; a failed poll keeps the last-known-good
// pool and never surfaces to the foreground.
type Feed struct {
	api          FeedAPI
	log          logger.Logger
	pollInterval time.Duration

	mu     sync.Mutex
	pool   []api.AvailableSession
	active []string
	cancel context.CancelFunc
}

// NewFeed creates a feed polling at the given interval.
func NewFeed(feedAPI FeedAPI, pollInterval time.Duration, log logger.Logger) *Feed {
	return &Feed{
		api:          feedAPI,
		log:          log,
		pollInterval: pollInterval,
	}
}

// Pool returns a copy of the current pool snapshot.
func (f *Feed) Pool() []api.AvailableSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.AvailableSession, len(f.pool))
	copy(out, f.pool)
	return out
}

// Active returns the ids of sessions this counsellor has accepted.
func (f *Feed) Active() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.active))
	copy(out, f.active)
	return out
}

// Start fetches the pool once and launches the refresh loop. Stop tears the
// loop down deterministically.
func (f *Feed) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		cancel()
		return
	}
	f.cancel = cancel
	f.mu.Unlock()

	f.refreshOnce(loopCtx)

	go func() {
		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				f.refreshOnce(loopCtx)
			}
		}
	}()
}

// Stop cancels the refresh loop. A tick after Stop does nothing.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	f.cancel = nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// refreshOnce replaces the pool with the server's current snapshot.
func (f *Feed) refreshOnce(ctx context.Context) {
	resp, err := f.api.AvailableSessions(ctx)
	if err != nil {
		f.log.Debug("Availability poll failed", logger.ErrorField(err))
		return
	}

	f.mu.Lock()
	f.pool = resp.Sessions
	f.mu.Unlock()
}

// Accept claims one waiting session. Success removes the entry from the local
// pool and records the id as active; any failure, conflict included, leaves
// the pool untouched.
func (f *Feed) Accept(ctx context.Context, sessionID string) error {
	if _, err := f.api.AcceptSession(ctx, sessionID); err != nil {
		return fmt.Errorf("accepting session %s: %w", sessionID, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.pool[:0]
	for _, s := range f.pool {
		if s.SessionID != sessionID {
			kept = append(kept, s)
		}
	}
	f.pool = kept
	f.active = append(f.active, sessionID)

	f.log.Info("Session accepted", logger.SessionIDField(sessionID))
	return nil
}
