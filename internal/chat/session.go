package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	defaultTTL          = 24 * time.Hour
	defaultMaxTurns     = 20
	defaultContextTurns = 6
	defaultReplyTimeout = 30 * time.Second

	// FallbackReply is returned whenever the reply function fails or
	// times out. The session still advances.
	FallbackReply = "I'm sorry, I encountered an error while processing your request. Please try again."
)

// Turn is one message in a conversation session.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplyFunc produces the assistant's reply given the prior turns and
// the user's current message. It may block on the network; the store
// bounds it with a timeout.
type ReplyFunc func(ctx context.Context, history []Turn, userText string) (string, error)

// Options configures a SessionStore. Zero fields fall back to the
// defaults above.
type Options struct {
	TTL          time.Duration
	MaxTurns     int
	ContextTurns int
	ReplyTimeout time.Duration
	Now          func() time.Time
}

// SessionStore keeps conversation sessions in process memory. Sessions
// are independent: each carries its own lock, so concurrent exchanges
// on different sessions never block each other.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session

	ttl          time.Duration
	maxTurns     int
	contextTurns int
	replyTimeout time.Duration
	now          func() time.Time
}

type session struct {
	mu           sync.Mutex
	turns        []Turn
	lastActivity time.Time
}

func NewSessionStore(opts Options) *SessionStore {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = defaultMaxTurns
	}
	if opts.ContextTurns <= 0 {
		opts.ContextTurns = defaultContextTurns
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = defaultReplyTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionStore{
		sessions:     make(map[string]*session),
		ttl:          opts.TTL,
		maxTurns:     opts.MaxTurns,
		contextTurns: opts.ContextTurns,
		replyTimeout: opts.ReplyTimeout,
		now:          opts.Now,
	}
}

// Send appends the user's message to the session (minting a new session
// when sessionID is empty or unknown), obtains the assistant's reply via
// replyFn and appends it too. A failing or slow replyFn never fails the
// exchange: the fallback reply is recorded instead. Returns the reply
// text and the session ID the caller should continue with.
func (s *SessionStore) Send(ctx context.Context, sessionID, userText string, replyFn ReplyFunc) (string, string) {
	sessionID, sess := s.getOrCreate(sessionID)

	// The per-session lock covers the whole exchange so concurrent
	// sends on one session cannot interleave their turn pairs.
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := s.now()
	history := lastN(sess.turns, s.contextTurns)
	sess.turns = append(sess.turns, Turn{Role: RoleUser, Content: userText, Timestamp: now})
	sess.lastActivity = now

	replyText := s.generateReply(ctx, history, userText, replyFn)

	now = s.now()
	sess.turns = append(sess.turns, Turn{Role: RoleAssistant, Content: replyText, Timestamp: now})
	sess.lastActivity = now

	// Keep only the most recent turns; older ones fall out of the
	// live window.
	if len(sess.turns) > s.maxTurns {
		sess.turns = append([]Turn(nil), sess.turns[len(sess.turns)-s.maxTurns:]...)
	}

	return replyText, sessionID
}

func (s *SessionStore) generateReply(ctx context.Context, history []Turn, userText string, replyFn ReplyFunc) string {
	if replyFn == nil {
		return FallbackReply
	}

	ctx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	replyText, err := replyFn(ctx, history, userText)
	if err != nil {
		log.Printf("Reply generation failed, using fallback: %v", err)
		return FallbackReply
	}
	if replyText == "" {
		log.Println("Reply generation returned empty text, using fallback")
		return FallbackReply
	}
	return replyText
}

// Turns returns a copy of the session's live window, oldest first.
// The second result is false for an unknown session.
func (s *SessionStore) Turns(sessionID string) ([]Turn, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]Turn(nil), sess.turns...), true
}

// Clear removes the session immediately. It is a no-op for an unknown
// session.
func (s *SessionStore) Clear(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// SweepExpired evicts every session idle longer than the store's TTL at
// the given time and reports how many were removed. The global lock is
// held only to snapshot candidates and to delete confirmed entries, so
// exchanges on live sessions keep flowing during a sweep.
func (s *SessionStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	candidates := make(map[string]*session, len(s.sessions))
	for id, sess := range s.sessions {
		candidates[id] = sess
	}
	s.mu.Unlock()

	removed := 0
	for id, sess := range candidates {
		sess.mu.Lock()
		expired := now.Sub(sess.lastActivity) > s.ttl
		sess.mu.Unlock()
		if !expired {
			continue
		}

		s.mu.Lock()
		// A Send may have touched the session since the check above;
		// only evict if it is still the same entry and still stale.
		// TryLock keeps a busy session (mid-exchange, holding its own
		// lock) from stalling the sweep: busy means not expired.
		if current, ok := s.sessions[id]; ok && current == sess {
			if current.mu.TryLock() {
				if now.Sub(current.lastActivity) > s.ttl {
					delete(s.sessions, id)
					removed++
				}
				current.mu.Unlock()
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) getOrCreate(sessionID string) (string, *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != "" {
		if sess, ok := s.sessions[sessionID]; ok {
			return sessionID, sess
		}
	}

	// Unknown IDs mint a fresh session rather than resurrecting the
	// caller's value, so evicted sessions cannot be re-created with
	// stale identifiers.
	sessionID = uuid.NewString()
	sess := &session{lastActivity: s.now()}
	s.sessions[sessionID] = sess
	return sessionID, sess
}

func lastN(turns []Turn, n int) []Turn {
	if len(turns) <= n {
		return append([]Turn(nil), turns...)
	}
	return append([]Turn(nil), turns[len(turns)-n:]...)
}
