// Package triage implements the escalation engine that sits between the
// chatbot and a live session: it classifies each exchange through the server
// boundary and decides whether to offer a session-start prompt.
package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumaproject/luma/internal/api"
	"github.com/lumaproject/luma/pkg/logger"
)

const (
	urgentPromptText = "This seems urgent. Would you like me to start an emergency session immediately?"
	normalPromptText = "Would you like me to start an anonymous session for you? This will connect you with a trained counsellor."
	apologyText      = "I'm having a brief connection issue, but I'm still here! Please try again."
)

// QueryAPI is the classification boundary. *client.Client satisfies it.
type QueryAPI interface {
	Query(ctx context.Context, message string) (*api.BotReply, error)
}

// SessionStarter begins a live session when the user accepts a prompt.
type SessionStarter func(ctx context.Context, category string) error

// Scheduler sequences prompt delivery after the bot's reply. The delay is a
// presentation artifact, not rate limiting, so tests inject an immediate
// implementation.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler schedules on real timers.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// Entry is one transcript line in the triage chat. Bot entries carry the
// classification result; prompt entries carry the call-to-action flags.
type Entry struct {
	Sender        string
	Text          string
	Timestamp     time.Time
	Reply         *api.BotReply
	SessionPrompt bool
	Urgent        bool
}

// Config holds the prompt scheduling delays.
type Config struct {
	UrgentPromptDelay time.Duration
	NormalPromptDelay time.Duration
}

// Engine owns the triage transcript and the escalation policy. At most one
// prompt is appended per exchange; urgent and normal prompts are mutually
// exclusive, and a prompt is never retracted once shown.
type Engine struct {
	api     QueryAPI
	sched   Scheduler
	starter SessionStarter
	cfg     Config
	log     logger.Logger
	now     func() time.Time

	mu         sync.Mutex
	transcript []Entry
	typing     bool
	category   string
}

// NewEngine creates a triage engine.
func NewEngine(queryAPI QueryAPI, sched Scheduler, starter SessionStarter, cfg Config, log logger.Logger) *Engine {
	return &Engine{
		api:     queryAPI,
		sched:   sched,
		starter: starter,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Transcript returns a copy of the current transcript.
func (e *Engine) Transcript() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// Typing reports whether a classification request is in flight.
func (e *Engine) Typing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typing
}

// Category returns the last non-general category the classifier produced,
// used to tag a session started from a prompt.
func (e *Engine) Category() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.category
}

// Process handles one user exchange: append the user's line, classify it,
// append the bot reply and schedule at most one escalation prompt. A failed
// classification leaves a local apology with no metadata and no prompt, and
// the typing indicator never stays stuck on.
func (e *Engine) Process(ctx context.Context, message string) error {
	e.mu.Lock()
	e.transcript = append(e.transcript, Entry{Sender: api.SenderUser, Text: message, Timestamp: e.now()})
	e.typing = true
	e.mu.Unlock()

	reply, err := e.api.Query(ctx, message)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.typing = false

	if err != nil {
		e.log.Error("Classification failed", logger.ErrorField(err))
		e.transcript = append(e.transcript, Entry{Sender: api.SenderBot, Text: apologyText, Timestamp: e.now()})
		return fmt.Errorf("classifying exchange: %w", err)
	}

	e.transcript = append(e.transcript, Entry{
		Sender:    api.SenderBot,
		Text:      reply.Reply,
		Timestamp: e.now(),
		Reply:     reply,
	})
	if reply.Category != "" && reply.Category != "general" {
		e.category = reply.Category
	}

	e.schedulePrompt(reply)
	return nil
}

// schedulePrompt applies the escalation policy, first match wins. Caller
// holds the lock.
func (e *Engine) schedulePrompt(reply *api.BotReply) {
	switch {
	case reply.CrisisLevel == api.CrisisHigh:
		e.log.Warn("Crisis exchange, scheduling urgent prompt")
		e.sched.After(e.cfg.UrgentPromptDelay, func() {
			e.appendPrompt(urgentPromptText, true)
		})

	case suggestsSession(reply.SuggestedActions):
		e.sched.After(e.cfg.NormalPromptDelay, func() {
			e.appendPrompt(normalPromptText, false)
		})
	}
}

func (e *Engine) appendPrompt(text string, urgent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transcript = append(e.transcript, Entry{
		Sender:        api.SenderBot,
		Text:          text,
		Timestamp:     e.now(),
		SessionPrompt: true,
		Urgent:        urgent,
	})
}

// AcceptPrompt hands control to the session starter immediately. The engine
// only appends to its own transcript; session state belongs to the starter.
func (e *Engine) AcceptPrompt(ctx context.Context) error {
	e.mu.Lock()
	category := e.category
	e.mu.Unlock()

	if err := e.starter(ctx, category); err != nil {
		return fmt.Errorf("starting session from prompt: %w", err)
	}
	return nil
}

func suggestsSession(actions []string) bool {
	for _, a := range actions {
		if a == api.ActionSessionPrompt || a == api.ActionRecommendedSession {
			return true
		}
	}
	return false
}
