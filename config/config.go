package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port            int
	AllowedOrigins  []string
	MaxSessions     int
	SessionTimeout  time.Duration
	KeepAlivePeriod time.Duration

	AudioStore    string // "dir" or "redis"
	AudioDelivery string // "path" or "inline"
	AudioDir      string
	AudioTTL      time.Duration
	RedisURL      string
	RedisPassword string

	Responder      string // "echo" or "gemini"
	GeminiAPIKey   string
	GeminiModel    string
	GeminiTTSModel string
	GeminiVoice    string
	SystemPrompt   string
}

// ClientConfig holds configuration for the chat clients in cmd/
type ClientConfig struct {
	Host   string // host[:port] of the chat server
	Secure bool   // use wss/https instead of ws/http
	URL    string // full websocket URL, overrides Host/Secure

	SpeechOutput bool
	AutoSend     bool
	VoiceMode    string // "record", "gemini" or "off"

	ReconnectDelay      time.Duration
	ReconnectMax        time.Duration
	ReconnectMultiplier float64

	LogFile string

	GeminiAPIKey   string
	GeminiModel    string
	GeminiTTSModel string
	GeminiVoice    string
}

// Audio delivery modes: a stored clip referenced by audio_path, or the
// clip itself as a binary frame after the text reply
const (
	AudioDeliveryPath   = "path"
	AudioDeliveryInline = "inline"
)

const (
	defaultGeminiModel    = "gemini-2.5-flash"
	defaultGeminiTTSModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice    = "Zephyr"
	defaultSystemPrompt   = "You are a friendly conversational assistant. Keep answers short enough to be read aloud."
)

// LoadConfig loads server configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:            8080,
		AllowedOrigins:  []string{"*"},
		MaxSessions:     100,
		SessionTimeout:  30 * time.Minute,
		KeepAlivePeriod: 30 * time.Second,
		AudioStore:      "dir",
		AudioDelivery:   AudioDeliveryPath,
		AudioDir:        os.TempDir(),
		AudioTTL:        60 * time.Minute,
		RedisURL:        "localhost:6379",
		Responder:       "echo",
		GeminiModel:     defaultGeminiModel,
		GeminiTTSModel:  defaultGeminiTTSModel,
		GeminiVoice:     defaultGeminiVoice,
		SystemPrompt:    defaultSystemPrompt,
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: MAX_SESSIONS
	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		config.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	// Optional: AUDIO_STORE ("dir" or "redis")
	if store := os.Getenv("AUDIO_STORE"); store != "" {
		switch store {
		case "dir", "redis":
			config.AudioStore = store
		default:
			return nil, fmt.Errorf("invalid AUDIO_STORE: must be 'dir' or 'redis'")
		}
	}

	// Optional: AUDIO_DELIVERY ("path" or "inline")
	if delivery := os.Getenv("AUDIO_DELIVERY"); delivery != "" {
		switch delivery {
		case AudioDeliveryPath, AudioDeliveryInline:
			config.AudioDelivery = delivery
		default:
			return nil, fmt.Errorf("invalid AUDIO_DELIVERY: must be 'path' or 'inline'")
		}
	}

	// Optional: AUDIO_DIR
	if dir := os.Getenv("AUDIO_DIR"); dir != "" {
		config.AudioDir = dir
	}

	// Optional: AUDIO_TTL (in minutes)
	if ttl := os.Getenv("AUDIO_TTL"); ttl != "" {
		t, err := strconv.Atoi(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid AUDIO_TTL: %w", err)
		}
		config.AudioTTL = time.Duration(t) * time.Minute
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: RESPONDER ("echo" or "gemini")
	if responder := os.Getenv("RESPONDER"); responder != "" {
		switch responder {
		case "echo", "gemini":
			config.Responder = responder
		default:
			return nil, fmt.Errorf("invalid RESPONDER: must be 'echo' or 'gemini'")
		}
	}

	// Optional: SYSTEM_PROMPT
	if prompt := os.Getenv("SYSTEM_PROMPT"); prompt != "" {
		config.SystemPrompt = prompt
	}

	loadGemini(&config.GeminiAPIKey, &config.GeminiModel, &config.GeminiTTSModel, &config.GeminiVoice)

	// GEMINI_API_KEY is only required once a Gemini backed feature is selected
	if config.Responder == "gemini" && config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required when RESPONDER=gemini")
	}

	return config, nil
}

// LoadClientConfig loads client configuration from environment variables with defaults
func LoadClientConfig() (*ClientConfig, error) {
	_ = godotenv.Load()

	config := &ClientConfig{
		Host:                "localhost:8080",
		SpeechOutput:        true,
		AutoSend:            true,
		VoiceMode:           "record",
		ReconnectDelay:      1000 * time.Millisecond,
		ReconnectMax:        30 * time.Second,
		ReconnectMultiplier: 1.5,
		GeminiModel:         defaultGeminiModel,
		GeminiTTSModel:      defaultGeminiTTSModel,
		GeminiVoice:         defaultGeminiVoice,
	}

	// Optional: CHAT_HOST
	if host := os.Getenv("CHAT_HOST"); host != "" {
		config.Host = host
	}

	// Optional: CHAT_SECURE
	if secure := os.Getenv("CHAT_SECURE"); secure != "" {
		b, err := strconv.ParseBool(secure)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAT_SECURE: %w", err)
		}
		config.Secure = b
	}

	// Optional: CHAT_URL
	if url := os.Getenv("CHAT_URL"); url != "" {
		config.URL = url
	}

	// Optional: SPEECH_OUTPUT
	if speech := os.Getenv("SPEECH_OUTPUT"); speech != "" {
		b, err := strconv.ParseBool(speech)
		if err != nil {
			return nil, fmt.Errorf("invalid SPEECH_OUTPUT: %w", err)
		}
		config.SpeechOutput = b
	}

	// Optional: AUTO_SEND
	if autoSend := os.Getenv("AUTO_SEND"); autoSend != "" {
		b, err := strconv.ParseBool(autoSend)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTO_SEND: %w", err)
		}
		config.AutoSend = b
	}

	// Optional: VOICE_MODE ("record", "gemini" or "off")
	if mode := os.Getenv("VOICE_MODE"); mode != "" {
		switch mode {
		case "record", "gemini", "off":
			config.VoiceMode = mode
		default:
			return nil, fmt.Errorf("invalid VOICE_MODE: must be 'record', 'gemini' or 'off'")
		}
	}

	// Optional: RECONNECT_DELAY_MS
	if delay := os.Getenv("RECONNECT_DELAY_MS"); delay != "" {
		d, err := strconv.Atoi(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid RECONNECT_DELAY_MS: %w", err)
		}
		config.ReconnectDelay = time.Duration(d) * time.Millisecond
	}

	// Optional: RECONNECT_MAX_MS
	if maxDelay := os.Getenv("RECONNECT_MAX_MS"); maxDelay != "" {
		d, err := strconv.Atoi(maxDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid RECONNECT_MAX_MS: %w", err)
		}
		config.ReconnectMax = time.Duration(d) * time.Millisecond
	}

	// Optional: RECONNECT_MULTIPLIER (1 keeps a fixed delay)
	if multiplier := os.Getenv("RECONNECT_MULTIPLIER"); multiplier != "" {
		m, err := strconv.ParseFloat(multiplier, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RECONNECT_MULTIPLIER: %w", err)
		}
		if m < 1 {
			return nil, fmt.Errorf("invalid RECONNECT_MULTIPLIER: must be >= 1")
		}
		config.ReconnectMultiplier = m
	}

	// Optional: LOG_FILE
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		config.LogFile = logFile
	}

	loadGemini(&config.GeminiAPIKey, &config.GeminiModel, &config.GeminiTTSModel, &config.GeminiVoice)

	if config.VoiceMode == "gemini" && config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required when VOICE_MODE=gemini")
	}

	return config, nil
}

// WebSocketURL returns the chat endpoint, choosing the scheme from Secure
func (c *ClientConfig) WebSocketURL() string {
	if c.URL != "" {
		return c.URL
	}
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return scheme + "://" + c.Host + "/ws"
}

func loadGemini(apiKey, model, ttsModel, voice *string) {
	*apiKey = os.Getenv("GEMINI_API_KEY")

	// Optional: GEMINI_MODEL
	if m := os.Getenv("GEMINI_MODEL"); m != "" {
		*model = m
	}

	// Optional: GEMINI_TTS_MODEL
	if m := os.Getenv("GEMINI_TTS_MODEL"); m != "" {
		*ttsModel = m
	}

	// Optional: GEMINI_VOICE
	if v := os.Getenv("GEMINI_VOICE"); v != "" {
		*voice = v
	}
}
