package server

import (
	"context"

	"github.com/room4-2/voicechat/messages"
)

// Responder produces the agent's reply to a user message
type Responder interface {
	Reply(ctx context.Context, history []messages.Turn, text string) (string, error)
}

// VoiceGenerator turns reply text into a playable clip
type VoiceGenerator interface {
	Generate(ctx context.Context, text string) (messages.Clip, error)
}

// EchoResponder replies with the user's own text
type EchoResponder struct{}

func (EchoResponder) Reply(ctx context.Context, history []messages.Turn, text string) (string, error) {
	return "Echo: " + text, nil
}
