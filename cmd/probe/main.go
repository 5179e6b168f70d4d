package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/room4-2/voicechat/config"
	"github.com/room4-2/voicechat/media"
	"github.com/room4-2/voicechat/session"
)

// printView writes the conversation to stdout and reports the first reply
type printView struct {
	replies chan session.ChatMessage
}

func (v *printView) AppendMessage(msg session.ChatMessage) {
	if msg.Sender == session.SenderUser {
		fmt.Printf("you:   %s\n", msg.Text)
		return
	}
	if msg.IsError {
		fmt.Printf("error: %s\n", msg.Text)
	} else {
		fmt.Printf("agent: %s\n", msg.Text)
	}
	select {
	case v.replies <- msg:
	default:
	}
}

func (v *printView) SetStatus(status session.Status) {
	log.Printf("📊 Status: %s", status.Label)
}

func (v *printView) SetInput(string)        {}
func (v *printView) SetSendEnabled(bool)    {}
func (v *printView) SetRecording(bool)      {}
func (v *printView) SetVoiceAvailable(bool) {}

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	serverURL := flag.String("url", cfg.WebSocketURL(), "chat websocket endpoint")
	text := flag.String("text", "Hello! Say hi back in one sentence.", "message to send")
	speak := flag.Bool("speak", cfg.SpeechOutput, "ask for audio and play it with ffplay")
	timeout := flag.Duration("timeout", 30*time.Second, "how long to wait for the reply")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	view := &printView{replies: make(chan session.ChatMessage, 1)}
	opts := session.Options{
		URL:          *serverURL,
		View:         view,
		SpeechOutput: *speak,
		Reconnect: session.ReconnectPolicy{
			Delay:      cfg.ReconnectDelay,
			MaxDelay:   cfg.ReconnectMax,
			Multiplier: cfg.ReconnectMultiplier,
		},
	}
	if *speak {
		if player := media.NewFFPlayPlayer(""); player.Available() {
			opts.Player = player
		} else {
			log.Println("⚠️ ffplay not found, audio will not be played")
		}
	}

	ctrl, err := session.New(opts)
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()

	log.Printf("🔌 Connecting to %s...", *serverURL)
	if !waitFor(ctx, *timeout, func() bool { return ctrl.Snapshot().Conn == session.StateConnected }) {
		log.Printf("⏰ Could not connect within %s", *timeout)
		cancel()
		<-done
		os.Exit(1)
	}

	ctrl.Submit(*text)

	exitCode := 0
	select {
	case msg := <-view.replies:
		if msg.IsError {
			exitCode = 1
		}
		// let a spoken reply finish before closing
		waitFor(ctx, *timeout, func() bool { return ctrl.Snapshot().Activity == session.ActivityIdle })
	case <-time.After(*timeout):
		log.Println("⏰ Timeout waiting for response")
		exitCode = 1
	case <-ctx.Done():
		log.Println("👋 Interrupted, closing...")
	}

	cancel()
	<-done
	os.Exit(exitCode)
}

func waitFor(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-ticker.C:
		}
	}
}
