package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func echoReply(_ context.Context, _ []Turn, userText string) (string, error) {
	return "echo: " + userText, nil
}

func TestSendMintsSessionAndRecordsTurns(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	reply, sessionID := s.Send(context.Background(), "", "where can I park?", echoReply)
	require.Equal(t, "echo: where can I park?", reply)
	require.NotEmpty(t, sessionID)

	turns, ok := s.Turns(sessionID)
	require.True(t, ok)
	require.Len(t, turns, 2)
	require.Equal(t, RoleUser, turns[0].Role)
	require.Equal(t, "where can I park?", turns[0].Content)
	require.Equal(t, RoleAssistant, turns[1].Role)
	require.Equal(t, "echo: where can I park?", turns[1].Content)
}

func TestSendContinuesExistingSession(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	_, sessionID := s.Send(context.Background(), "", "first", echoReply)
	_, again := s.Send(context.Background(), sessionID, "second", echoReply)
	require.Equal(t, sessionID, again)

	turns, ok := s.Turns(sessionID)
	require.True(t, ok)
	require.Len(t, turns, 4)
}

func TestUnknownSessionIDMintsFreshSession(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	_, sessionID := s.Send(context.Background(), "no-such-session", "hello", echoReply)
	require.NotEqual(t, "no-such-session", sessionID)
	_, ok := s.Turns("no-such-session")
	require.False(t, ok)
}

func TestReplyContextBounded(t *testing.T) {
	s := NewSessionStore(Options{ContextTurns: 6, Now: newFakeClock().Now})

	var gotHistory []Turn
	capture := func(_ context.Context, history []Turn, userText string) (string, error) {
		gotHistory = history
		return "ok", nil
	}

	sessionID := ""
	for i := 0; i < 8; i++ {
		_, sessionID = s.Send(context.Background(), sessionID, fmt.Sprintf("msg %d", i), capture)
	}

	// 14 prior turns exist by the last send; only the 6 most recent
	// may reach the reply function, and never the current message.
	require.Len(t, gotHistory, 6)
	for _, turn := range gotHistory {
		require.NotEqual(t, "msg 7", turn.Content)
	}
	require.Equal(t, "msg 6", gotHistory[len(gotHistory)-2].Content)
}

func TestWindowTrimsOldestTurns(t *testing.T) {
	s := NewSessionStore(Options{MaxTurns: 20, Now: newFakeClock().Now})

	sessionID := ""
	for i := 0; i < 15; i++ {
		_, sessionID = s.Send(context.Background(), sessionID, fmt.Sprintf("msg %d", i), echoReply)
	}

	turns, ok := s.Turns(sessionID)
	require.True(t, ok)
	require.Len(t, turns, 20)
	// 30 turns were produced; the first 10 fell out of the window.
	require.Equal(t, "msg 5", turns[0].Content)
	require.Equal(t, "echo: msg 14", turns[len(turns)-1].Content)
}

func TestFallbackOnReplyFailure(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	failing := func(_ context.Context, _ []Turn, _ string) (string, error) {
		return "", errors.New("upstream exploded")
	}

	reply, sessionID := s.Send(context.Background(), "", "hello?", failing)
	require.Equal(t, FallbackReply, reply)
	require.NotEmpty(t, sessionID)

	// The exchange still advanced the session.
	turns, ok := s.Turns(sessionID)
	require.True(t, ok)
	require.Len(t, turns, 2)
	require.Equal(t, "hello?", turns[0].Content)
	require.Equal(t, FallbackReply, turns[1].Content)
}

func TestFallbackOnEmptyReply(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	empty := func(_ context.Context, _ []Turn, _ string) (string, error) {
		return "", nil
	}

	reply, _ := s.Send(context.Background(), "", "hello?", empty)
	require.Equal(t, FallbackReply, reply)
}

func TestFallbackOnNilReplyFunc(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	reply, sessionID := s.Send(context.Background(), "", "hello?", nil)
	require.Equal(t, FallbackReply, reply)
	require.NotEmpty(t, sessionID)
}

func TestReplyTimeoutFallsBack(t *testing.T) {
	s := NewSessionStore(Options{ReplyTimeout: 20 * time.Millisecond, Now: newFakeClock().Now})

	slow := func(ctx context.Context, _ []Turn, _ string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	}

	start := time.Now()
	reply, _ := s.Send(context.Background(), "", "hello?", slow)
	require.Equal(t, FallbackReply, reply)
	require.Less(t, time.Since(start), time.Second)
}

func TestClearIsIdempotent(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	_, sessionID := s.Send(context.Background(), "", "hello", echoReply)
	require.Equal(t, 1, s.Len())

	s.Clear(sessionID)
	require.Equal(t, 0, s.Len())
	s.Clear(sessionID) // second clear is a no-op
	require.Equal(t, 0, s.Len())
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	clock := newFakeClock()
	ttl := 24 * time.Hour
	s := NewSessionStore(Options{TTL: ttl, Now: clock.Now})

	_, stale := s.Send(context.Background(), "", "old conversation", echoReply)

	clock.Advance(ttl + time.Minute)
	_, fresh := s.Send(context.Background(), "", "new conversation", echoReply)

	removed := s.SweepExpired(clock.Now())
	require.Equal(t, 1, removed)

	_, ok := s.Turns(stale)
	require.False(t, ok)
	_, ok = s.Turns(fresh)
	require.True(t, ok)
}

func TestSweepKeepsSessionsWithinTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewSessionStore(Options{TTL: 24 * time.Hour, Now: clock.Now})

	_, sessionID := s.Send(context.Background(), "", "hello", echoReply)

	clock.Advance(23 * time.Hour)
	require.Equal(t, 0, s.SweepExpired(clock.Now()))
	_, ok := s.Turns(sessionID)
	require.True(t, ok)
}

func TestIndependentSessionsProceedConcurrently(t *testing.T) {
	s := NewSessionStore(Options{Now: newFakeClock().Now})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := ""
			for j := 0; j < 5; j++ {
				_, sessionID = s.Send(context.Background(), sessionID, fmt.Sprintf("w%d m%d", i, j), echoReply)
			}
			turns, ok := s.Turns(sessionID)
			require.True(t, ok)
			require.Len(t, turns, 10)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 10, s.Len())
}
