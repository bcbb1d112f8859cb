// Package counselee implements the counselee side of a support session: the
// lifecycle state machine, the local message log and the sync poller that
// reconciles it against the server.
package counselee

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/pkg/logger"
)

var (
	// ErrSessionInProgress is returned by Start while a session is already
	// starting or running. The guard is what prevents double-session creation.
	ErrSessionInProgress = errors.New("session already in progress")

	// ErrNoSession is returned by Send before a session id has been captured.
	// It signals a caller bug, not a condition to tolerate silently.
	ErrNoSession = errors.New("no session in progress")

	// ErrSessionEnded is returned by Start when End was called while the start
	// request was still in flight. The controller stays ended.
	ErrSessionEnded = errors.New("session has ended")
)

const queueNoticeText = "Session started! You're now in the queue to be connected with a counsellor."

// SessionAPI is the server boundary the controller drives. *client.Client
// satisfies it; tests substitute a fake.
type SessionAPI interface {
	StartSession(ctx context.Context, category string) (*api.StartSessionResponse, error)
	SendMessage(ctx context.Context, sessionID, message string) error
	GetMessages(ctx context.Context, sessionID string) (*api.MessagesResponse, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Controller owns a counselee session: its status, its session id, the local
// message log and the poller goroutine that keeps the log consistent with the
// server.
type Controller struct {
	api          SessionAPI
	log          logger.Logger
	pollInterval time.Duration
	now          func() time.Time

	mu        sync.Mutex
	status    Status
	sessionID string
	cancel    context.CancelFunc

	msgs MessageLog
}

// NewController creates an idle controller polling at the given interval.
func NewController(sessionAPI SessionAPI, pollInterval time.Duration, log logger.Logger) *Controller {
	return &Controller{
		api:          sessionAPI,
		log:          log,
		pollInterval: pollInterval,
		now:          time.Now,
		status:       StatusIdle,
	}
}

// Status returns the current lifecycle status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the captured session id, empty before Start succeeds.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages returns a copy of the current local log view.
func (c *Controller) Messages() []Entry {
	return c.msgs.Entries()
}

// Start requests a new session. Only an idle controller may start; a failed
// request reverts to idle so the user can retry. On success the session id is
// captured, a queue notice is appended and the poller launches.
func (c *Controller) Start(ctx context.Context, category string) error {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return ErrSessionInProgress
	}
	c.status = StatusStarting
	c.mu.Unlock()

	resp, err := c.api.StartSession(ctx, category)
	if err != nil {
		c.mu.Lock()
		c.status = StatusIdle
		c.mu.Unlock()
		return fmt.Errorf("starting session: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.status != StatusStarting {
		// End won the race while the request was in flight. Ended is
		// terminal: discard the id, never launch the poller, and close the
		// orphaned session server-side so it does not sit in the queue.
		c.mu.Unlock()
		cancel()
		if err := c.api.EndSession(ctx, resp.SessionID); err != nil {
			c.log.Error("Failed to end orphaned session", logger.ErrorField(err), logger.SessionIDField(resp.SessionID))
		}
		return ErrSessionEnded
	}
	c.sessionID = resp.SessionID
	c.status = StatusWaiting
	c.cancel = cancel
	c.mu.Unlock()

	c.msgs.Append(Entry{Sender: api.SenderSystem, Text: queueNoticeText, Timestamp: c.now()})
	c.log.Info("Session started", logger.SessionIDField(resp.SessionID))

	go c.pollLoop(pollCtx)
	return nil
}

// Send optimistically appends the message locally, then issues the append
// request. A failed send leaves a local system error entry; there is no
// automatic retry.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return ErrNoSession
	}

	c.msgs.Append(Entry{Sender: api.SenderCounselee, Text: text, Timestamp: c.now()})

	if err := c.api.SendMessage(ctx, sessionID, text); err != nil {
		c.log.Error("Failed to send message", logger.ErrorField(err), logger.SessionIDField(sessionID))
		c.msgs.Append(Entry{
			Sender:    api.SenderSystem,
			Text:      "Failed to send message. Please try again.",
			Timestamp: c.now(),
		})
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// End tears the session down: the poller is cancelled before the status
// flips, the id is discarded and the server is told best-effort. Ended is
// terminal.
func (c *Controller) End(ctx context.Context) {
	c.mu.Lock()
	if c.status == StatusEnded || c.status == StatusIdle {
		c.mu.Unlock()
		return
	}
	sessionID := c.sessionID
	cancel := c.cancel
	c.status = StatusEnded
	c.sessionID = ""
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if sessionID != "" {
		if err := c.api.EndSession(ctx, sessionID); err != nil {
			c.log.Error("Failed to end session on server", logger.ErrorField(err), logger.SessionIDField(sessionID))
		}
	}
	c.log.Info("Session ended", logger.SessionIDField(sessionID))
}

// pollLoop reconciles the local log at a fixed cadence until cancelled.
func (c *Controller) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce performs one reconciliation tick. The status check comes before
// any network call so a tick racing teardown touches nothing.
func (c *Controller) pollOnce(ctx context.Context) {
	c.mu.Lock()
	if !c.status.Syncing() {
		c.mu.Unlock()
		return
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	resp, err := c.api.GetMessages(ctx, sessionID)
	if err != nil {
		// Keep the last-known-good view; the next tick retries.
		c.log.Debug("Message poll failed", logger.ErrorField(err), logger.SessionIDField(sessionID))
		return
	}

	c.msgs.Replace(resp.Messages)

	if counsellorPresent(resp.Messages) {
		c.mu.Lock()
		if c.status == StatusWaiting {
			c.status = StatusActive
			c.log.Info("Counsellor joined", logger.SessionIDField(sessionID))
		}
		c.mu.Unlock()
	}
}

// counsellorPresent reports whether the authoritative log shows a counsellor:
// either the server's join marker or any counsellor-sent message.
func counsellorPresent(msgs []api.Message) bool {
	for _, m := range msgs {
		if m.Sender == api.SenderCounsellor {
			return true
		}
		if m.Sender == api.SenderSystem && m.Text == api.CounsellorJoinedText {
			return true
		}
	}
	return false
}
