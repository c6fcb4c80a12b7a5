package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"parkwell.io/rewards-service/internal/chat"
)

const (
	defaultChatModelName = "gemini-1.5-flash-latest"

	chatSystemInstruction = "You are ParkWell's assistant. Help users with parking bookings, " +
		"the coin rewards program, and general questions about the service. " +
		"Keep your answers concise and directly related to the user's question. " +
		"If you don't know something, say so instead of making up information."
)

// LLMService generates assistant replies through Gemini. It satisfies
// chat.Replier.
type LLMService struct {
	client *genai.Client
}

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// GenerateReply sends the bounded conversation history plus the user's
// current message to Gemini and returns the reply text.
func (s *LLMService) GenerateReply(ctx context.Context, history []chat.Turn, userText string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	chatSession := model.StartChat()
	chatSession.History = toGenaiHistory(history)

	resp, err := chatSession.SendMessage(ctx, genai.Text(userText))
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}

	if responseText.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text parts")
	}

	return responseText.String(), nil
}

// toGenaiHistory maps session turns onto Gemini content. Gemini calls
// the assistant role "model".
func toGenaiHistory(history []chat.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == chat.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}
	return contents
}
