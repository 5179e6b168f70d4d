package main

import (
	"context"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/room4-2/voicechat/config"
	"github.com/room4-2/voicechat/gemini"
	"github.com/room4-2/voicechat/media"
	"github.com/room4-2/voicechat/session"
)

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// the terminal belongs to the UI, logs go to a file or nowhere
	logger := log.New(io.Discard, "", log.LstdFlags)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logger.SetOutput(f)
		log.SetOutput(f)
	} else {
		log.SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := &programView{}
	opts := session.Options{
		URL:          cfg.WebSocketURL(),
		View:         view,
		SpeechOutput: cfg.SpeechOutput,
		AutoSend:     cfg.AutoSend,
		Reconnect: session.ReconnectPolicy{
			Delay:      cfg.ReconnectDelay,
			MaxDelay:   cfg.ReconnectMax,
			Multiplier: cfg.ReconnectMultiplier,
		},
		Logger: logger,
	}

	if err := wireMedia(ctx, cfg, &opts, logger); err != nil {
		log.Fatalf("Failed to set up audio: %v", err)
	}

	ctrl, err := session.New(opts)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	program := tea.NewProgram(newModel(ctrl, cfg.SpeechOutput), tea.WithAltScreen())
	view.program = program

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctrl.Run(ctx); err != nil {
			logger.Printf("❌ Session error: %v", err)
		}
	}()

	if _, err := program.Run(); err != nil {
		logger.Printf("❌ UI error: %v", err)
	}

	cancel()
	<-done
}

// wireMedia attaches whatever audio capabilities this machine has
func wireMedia(ctx context.Context, cfg *config.ClientConfig, opts *session.Options, logger *log.Logger) error {
	var client *gemini.Client
	if cfg.GeminiAPIKey != "" {
		c, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			TTSModel: cfg.GeminiTTSModel,
			Voice:    cfg.GeminiVoice,
		})
		if err != nil {
			return err
		}
		client = c
	}

	if player := media.NewFFPlayPlayer(""); player.Available() {
		opts.Player = player
		if client != nil {
			opts.Synthesizer = &media.VoiceSynthesizer{Voice: client, Player: player}
		}
	} else {
		logger.Println("⚠️ ffplay not found, audio replies will not be played")
	}

	if opts.Synthesizer == nil {
		if synth := media.NewCommandSynthesizer(); synth != nil {
			opts.Synthesizer = synth
		}
	}

	if cfg.VoiceMode == "off" {
		return nil
	}

	recorder := media.NewFFmpegRecorder("")
	if !recorder.Available() {
		logger.Println("⚠️ ffmpeg not found, voice input disabled")
		return nil
	}
	opts.Recorder = recorder

	if cfg.VoiceMode == "gemini" && client != nil {
		opts.Transcriber = client
	}
	return nil
}
