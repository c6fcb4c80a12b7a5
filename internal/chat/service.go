package chat

import (
	"context"
	"fmt"
	"strings"
)

// Replier produces assistant text from conversation history. The Gemini
// adapter in internal/core implements it; tests substitute their own.
type Replier interface {
	GenerateReply(ctx context.Context, history []Turn, userText string) (string, error)
}

type Service struct {
	sessions *SessionStore
	replier  Replier
}

func NewService(sessions *SessionStore, replier Replier) *Service {
	return &Service{sessions: sessions, replier: replier}
}

// HandleMessage runs one conversational exchange: the user's message in,
// the assistant's reply (or the fallback) out, plus the session ID to
// continue under.
func (s *Service) HandleMessage(ctx context.Context, sessionID, message string) (string, string, error) {
	if strings.TrimSpace(message) == "" {
		return "", "", fmt.Errorf("message cannot be empty")
	}

	var replyFn ReplyFunc
	if s.replier != nil {
		replyFn = s.replier.GenerateReply
	}

	replyText, sessionID := s.sessions.Send(ctx, sessionID, message, replyFn)
	return replyText, sessionID, nil
}

// EndSession drops the session; safe to call for unknown IDs.
func (s *Service) EndSession(sessionID string) {
	s.sessions.Clear(sessionID)
}
