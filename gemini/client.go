package gemini

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/room4-2/voicechat/media"
	"github.com/room4-2/voicechat/messages"
)

const (
	defaultPCMRate = 24000

	transcribePrompt = "Transcribe this voice message exactly as spoken. Reply with the transcript only, or an empty reply if nothing intelligible was said."
)

// Options configures the Gemini adapters
type Options struct {
	APIKey       string
	Model        string // text model for replies and transcription
	TTSModel     string
	Voice        string // prebuilt voice: Puck, Charon, Kore, Fenrir, Aoede, Leda, Orus, Zephyr
	SystemPrompt string

	// BaseURL overrides the API endpoint, used by tests
	BaseURL string
}

// Client wraps a GenAI client and exposes the chat capabilities built on it
type Client struct {
	genai *genai.Client
	opts  Options
}

// NewClient creates the GenAI client for the Gemini API backend
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{
		genai: client,
		opts:  opts,
	}, nil
}

// Reply answers text given the conversation so far
func (c *Client) Reply(ctx context.Context, history []messages.Turn, text string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.RoleUser
		if turn.Role == messages.TurnAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	var config *genai.GenerateContentConfig
	if c.opts.SystemPrompt != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(c.opts.SystemPrompt, genai.RoleUser),
		}
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.opts.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}

	reply := strings.TrimSpace(resp.Text())
	log.Printf("📥 Received from Gemini: %d chars of text", len(reply))
	return reply, nil
}

// Generate synthesizes text with the TTS model and returns it as a WAV clip
func (c *Client) Generate(ctx context.Context, text string) (messages.Clip, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: c.opts.Voice,
				},
			},
		},
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.opts.TTSModel, genai.Text(text), config)
	if err != nil {
		return messages.Clip{}, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	var pcm []byte
	rate := defaultPCMRate
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			pcm = append(pcm, part.InlineData.Data...)
			if r, ok := pcmRate(part.InlineData.MIMEType); ok {
				rate = r
			}
		}
	}
	if len(pcm) == 0 {
		return messages.Clip{}, fmt.Errorf("failed to synthesize speech: no audio in response")
	}

	log.Printf("📥 Received from Gemini: %d bytes audio", len(pcm))
	return messages.Clip{
		Data:     media.EncodeWAV(pcm, rate, 1),
		MIMEType: "audio/wav",
	}, nil
}

// Transcribe turns a recorded clip into text
func (c *Client) Transcribe(ctx context.Context, clip messages.Clip) (string, error) {
	mimeType := clip.MIMEType
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(clip.Data, mimeType),
		}, genai.RoleUser),
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.opts.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// pcmRate reads the sample rate from a mime type like "audio/L16;codec=pcm;rate=24000"
func pcmRate(mimeType string) (int, bool) {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || key != "rate" {
			continue
		}
		rate, err := strconv.Atoi(value)
		if err != nil || rate <= 0 {
			return 0, false
		}
		return rate, true
	}
	return 0, false
}
