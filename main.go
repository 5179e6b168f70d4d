package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/voicechat/config"
	"github.com/room4-2/voicechat/gemini"
	"github.com/room4-2/voicechat/server"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := server.ConnectRedis(ctx, cfg)

	var store server.AudioStore
	switch cfg.AudioStore {
	case "redis":
		if redisClient == nil {
			log.Fatalf("AUDIO_STORE=redis but Redis is unavailable at %s", cfg.RedisURL)
		}
		store = server.NewRedisStore(redisClient, cfg.AudioTTL)
	default:
		dirStore, err := server.NewDirStore(cfg.AudioDir)
		if err != nil {
			log.Fatalf("Failed to create audio store: %v", err)
		}
		store = dirStore
	}

	deps := server.Deps{
		Manager:   server.NewManager(cfg, redisClient),
		Responder: server.EchoResponder{},
		Store:     store,
	}

	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:       cfg.GeminiAPIKey,
			Model:        cfg.GeminiModel,
			TTSModel:     cfg.GeminiTTSModel,
			Voice:        cfg.GeminiVoice,
			SystemPrompt: cfg.SystemPrompt,
		})
		if err != nil {
			log.Fatalf("Failed to create Gemini client: %v", err)
		}
		deps.Voice = client
		if cfg.Responder == "gemini" {
			deps.Responder = client
		}
	} else {
		log.Println("⚠️ GEMINI_API_KEY not set, replies will carry no audio")
	}

	srv := server.NewServer(cfg, deps)

	// Start cleanup routine
	go srv.StartCleanupRoutine(ctx)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\nReceived shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
