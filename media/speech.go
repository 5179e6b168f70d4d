package media

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/room4-2/voicechat/messages"
	"github.com/room4-2/voicechat/session"
)

// CommandSynthesizer speaks text with the platform's text-to-speech command
type CommandSynthesizer struct {
	path string
	args []string
}

// NewCommandSynthesizer returns the speech command for this OS, or nil when
// none is installed
func NewCommandSynthesizer() *CommandSynthesizer {
	for _, candidate := range speechCommands(runtime.GOOS) {
		if _, err := exec.LookPath(candidate.path); err == nil {
			c := candidate
			return &c
		}
	}
	return nil
}

// Speak blocks until the utterance finishes, cancelling ctx stops it
func (s *CommandSynthesizer) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), s.args...), text)
	if err := exec.CommandContext(ctx, s.path, args...).Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", s.path, err)
	}
	return nil
}

func speechCommands(goos string) []CommandSynthesizer {
	switch goos {
	case "darwin":
		return []CommandSynthesizer{{path: "say"}}
	case "windows":
		return nil
	default:
		return []CommandSynthesizer{
			{path: "espeak-ng"},
			{path: "espeak"},
			{path: "spd-say", args: []string{"--wait"}},
		}
	}
}

// VoiceGenerator turns text into a playable clip
type VoiceGenerator interface {
	Generate(ctx context.Context, text string) (messages.Clip, error)
}

// VoiceSynthesizer speaks by generating a clip and playing it
type VoiceSynthesizer struct {
	Voice  VoiceGenerator
	Player session.Player
}

// Speak generates the utterance and plays it through the player
func (s *VoiceSynthesizer) Speak(ctx context.Context, text string) error {
	clip, err := s.Voice.Generate(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}
	return s.Player.Play(ctx, clip)
}
