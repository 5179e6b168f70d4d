package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/room4-2/voicechat/messages"
)

// Sender identifies who wrote a chat message
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// ChatMessage is one rendered chat entry. It is never changed once rendered.
type ChatMessage struct {
	ID      string
	Text    string
	Sender  Sender
	IsError bool
	At      time.Time
}

// NewChatMessage creates a chat entry with a fresh ID
func NewChatMessage(text string, sender Sender, isError bool) ChatMessage {
	return ChatMessage{
		ID:      uuid.New().String(),
		Text:    text,
		Sender:  sender,
		IsError: isError,
		At:      time.Now(),
	}
}

// Clip is a self-contained piece of playable audio
type Clip = messages.Clip

// View is the UI surface the controller renders into. All methods are
// called from the controller's Run goroutine.
type View interface {
	AppendMessage(msg ChatMessage)
	SetStatus(status Status)
	SetInput(text string)
	SetSendEnabled(enabled bool)
	SetRecording(recording bool)
	SetVoiceAvailable(available bool)
}

// Player plays audio. Both calls block until playback finishes and must
// stop early when ctx is cancelled.
type Player interface {
	Play(ctx context.Context, clip Clip) error
	PlayURL(ctx context.Context, url string) error
}

// Synthesizer speaks text aloud, blocking until the utterance ends or ctx
// is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Recognizer is continuous speech-to-text. Recognize listens until the
// speaker stops or ctx is cancelled and returns the final transcript.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// Recorder captures raw microphone audio until ctx is cancelled and
// returns what was captured.
type Recorder interface {
	Record(ctx context.Context) (Clip, error)
}

// Transcriber turns a recorded clip into text
type Transcriber interface {
	Transcribe(ctx context.Context, clip Clip) (string, error)
}
