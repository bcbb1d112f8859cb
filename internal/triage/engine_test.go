package triage

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

type fakeQueryAPI struct {
	reply *api.BotReply
	err   error
}

func (f *fakeQueryAPI) Query(context.Context, string) (*api.BotReply, error) {
	return f.reply, f.err
}

// manualScheduler captures scheduled work so tests fire it explicitly,
// without real time passing.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (s *manualScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, fn)
	s.delays = append(s.delays, d)
}

func (s *manualScheduler) fire() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

func newTestEngine(fake *fakeQueryAPI, starter SessionStarter) (*Engine, *manualScheduler) {
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	sched := &manualScheduler{}
	if starter == nil {
		starter = func(context.Context, string) error { return nil }
	}
	cfg := Config{UrgentPromptDelay: 500 * time.Millisecond, NormalPromptDelay: 800 * time.Millisecond}
	return NewEngine(fake, sched, starter, cfg, log), sched
}

func promptEntries(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.SessionPrompt {
			out = append(out, e)
		}
	}
	return out
}

func TestEngine_EscalationPolicy(t *testing.T) {
	cases := []struct {
		name       string
		reply      *api.BotReply
		wantPrompt bool
		wantUrgent bool
	}{
		{
			name:       "crisis high yields urgent prompt",
			reply:      &api.BotReply{Reply: "r", CrisisLevel: api.CrisisHigh},
			wantPrompt: true,
			wantUrgent: true,
		},
		{
			name:       "crisis high beats session suggestion",
			reply:      &api.BotReply{Reply: "r", CrisisLevel: api.CrisisHigh, SuggestedActions: []string{api.ActionSessionPrompt}},
			wantPrompt: true,
			wantUrgent: true,
		},
		{
			name:       "session_prompt yields normal prompt",
			reply:      &api.BotReply{Reply: "r", CrisisLevel: api.CrisisNone, SuggestedActions: []string{api.ActionSessionPrompt}},
			wantPrompt: true,
		},
		{
			name:       "recommended_session yields normal prompt",
			reply:      &api.BotReply{Reply: "r", CrisisLevel: api.CrisisNone, SuggestedActions: []string{api.ActionRecommendedSession}},
			wantPrompt: true,
		},
		{
			name:  "no signal yields no prompt",
			reply: &api.BotReply{Reply: "r", CrisisLevel: api.CrisisNone},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, sched := newTestEngine(&fakeQueryAPI{reply: tc.reply}, nil)
			require.NoError(t, engine.Process(context.Background(), "hello"))
			sched.fire()

			prompts := promptEntries(engine.Transcript())
			if !tc.wantPrompt {
				assert.Empty(t, prompts)
				return
			}
			require.Len(t, prompts, 1)
			assert.Equal(t, tc.wantUrgent, prompts[0].Urgent)
			assert.True(t, prompts[0].SessionPrompt)
		})
	}
}

func TestEngine_PromptDelays(t *testing.T) {
	engine, sched := newTestEngine(&fakeQueryAPI{reply: &api.BotReply{Reply: "r", CrisisLevel: api.CrisisHigh}}, nil)
	require.NoError(t, engine.Process(context.Background(), "help"))
	require.Len(t, sched.delays, 1)
	assert.Equal(t, 500*time.Millisecond, sched.delays[0])

	engine, sched = newTestEngine(&fakeQueryAPI{reply: &api.BotReply{SuggestedActions: []string{api.ActionRecommendedSession}}}, nil)
	require.NoError(t, engine.Process(context.Background(), "stressed"))
	require.Len(t, sched.delays, 1)
	assert.Equal(t, 800*time.Millisecond, sched.delays[0])
}

func TestEngine_PromptNotRetracted(t *testing.T) {
	fake := &fakeQueryAPI{reply: &api.BotReply{Reply: "r", CrisisLevel: api.CrisisHigh}}
	engine, sched := newTestEngine(fake, nil)

	require.NoError(t, engine.Process(context.Background(), "help"))
	sched.fire()
	require.Len(t, promptEntries(engine.Transcript()), 1)

	// A later calm exchange leaves the earlier prompt in place.
	fake.reply = &api.BotReply{Reply: "ok", CrisisLevel: api.CrisisNone}
	require.NoError(t, engine.Process(context.Background(), "thanks"))
	assert.Equal(t, 0, sched.fire())
	assert.Len(t, promptEntries(engine.Transcript()), 1)
}

func TestEngine_ClassificationFailure(t *testing.T) {
	engine, sched := newTestEngine(&fakeQueryAPI{err: errors.New("backend down")}, nil)

	err := engine.Process(context.Background(), "hello")
	require.Error(t, err)

	assert.False(t, engine.Typing())
	assert.Equal(t, 0, sched.fire())

	entries := engine.Transcript()
	require.Len(t, entries, 2)
	last := entries[1]
	assert.Equal(t, api.SenderBot, last.Sender)
	assert.Nil(t, last.Reply)
	assert.False(t, last.SessionPrompt)
	assert.Contains(t, last.Text, "still here")
}

func TestEngine_TranscriptOrder(t *testing.T) {
	engine, sched := newTestEngine(&fakeQueryAPI{reply: &api.BotReply{
		Reply:       "I hear you.",
		Category:    "academic",
		CrisisLevel: api.CrisisMedium,
		SuggestedActions: []string{
			api.ActionRecommendedSession,
		},
	}}, nil)

	require.NoError(t, engine.Process(context.Background(), "exams are crushing me"))
	sched.fire()

	entries := engine.Transcript()
	require.Len(t, entries, 3)
	assert.Equal(t, api.SenderUser, entries[0].Sender)
	assert.Equal(t, api.SenderBot, entries[1].Sender)
	require.NotNil(t, entries[1].Reply)
	assert.Equal(t, api.CrisisMedium, entries[1].Reply.CrisisLevel)
	assert.True(t, entries[2].SessionPrompt)

	assert.Equal(t, "academic", engine.Category())
}

func TestEngine_AcceptPromptStartsImmediately(t *testing.T) {
	var started []string
	starter := func(_ context.Context, category string) error {
		started = append(started, category)
		return nil
	}

	fake := &fakeQueryAPI{reply: &api.BotReply{Reply: "r", Category: "academic", CrisisLevel: api.CrisisHigh}}
	engine, sched := newTestEngine(fake, starter)

	require.NoError(t, engine.Process(context.Background(), "help"))
	sched.fire()

	// The starter runs before any further exchange is processed.
	require.NoError(t, engine.AcceptPrompt(context.Background()))
	require.Equal(t, []string{"academic"}, started)

	require.NoError(t, engine.Process(context.Background(), "thanks"))
	assert.Len(t, started, 1)
}

func TestEngine_AcceptPromptStarterFailure(t *testing.T) {
	starter := func(context.Context, string) error { return errors.New("start failed") }
	engine, _ := newTestEngine(&fakeQueryAPI{reply: &api.BotReply{Reply: "r"}}, starter)

	assert.Error(t, engine.AcceptPrompt(context.Background()))
}
