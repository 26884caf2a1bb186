package llm

import (
	"context"
	"errors"
	"strings"
)

// FallbackMessage is shown to users when the chat flow fails terminally.
const FallbackMessage = "Sorry, I can't answer right now. Please try again in a moment."

// Turn is one prior exchange in a chat transcript.
type Turn struct {
	// Role is "user" or "assistant".
	Role string
	Text string
}

const maxChatContextTurns = 20

// Chat sends message with the recent transcript as context and returns the
// assistant's reply. The transcript is expected oldest-first; only the most
// recent turns are forwarded.
func (c *Client) Chat(ctx context.Context, transcript []Turn, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("llm chat: message required")
	}

	if len(transcript) > maxChatContextTurns {
		transcript = transcript[len(transcript)-maxChatContextTurns:]
	}

	contents := make([]content, 0, len(transcript)+1)
	for _, turn := range transcript {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: message}}})

	payload := generateRequest{
		Contents:          contents,
		SystemInstruction: systemInstruction(chatSystemPrompt),
		GenerationConfig:  generationConfig{Temperature: 0.6},
	}
	return c.generate(ctx, c.cfg.ChatModel, payload, "llm chat")
}
