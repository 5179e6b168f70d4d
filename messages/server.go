package messages

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
)

// Error messages sent back in the "error" field
const (
	ErrInvalidMessage   = "Invalid message format"
	ErrEmptyMessage     = "Message text is empty"
	ErrResponderFailed  = "Failed to process message"
	ErrSessionsExceeded = "Maximum sessions reached"
)

// AudioRoute is the path prefix audio clips are served under
const AudioRoute = "/audio/"

// ErrNoAudioName is returned when an audio path has no usable last segment
var ErrNoAudioName = errors.New("audio path has no file name")

// InboundResponse is the text frame a server sends on /ws
type InboundResponse struct {
	Text      string `json:"text,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Clip is a self-contained piece of playable audio, e.g. a binary frame
type Clip struct {
	Data     []byte
	MIMEType string
}

// ChatResponse is the body returned by POST /chat
type ChatResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HealthResponse is the body returned by GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// NewTextResponse creates a reply frame, audioPath may be empty
func NewTextResponse(text, audioPath string) *InboundResponse {
	return &InboundResponse{
		Text:      text,
		AudioPath: audioPath,
	}
}

// NewErrorResponse creates an error frame
func NewErrorResponse(message string) *InboundResponse {
	return &InboundResponse{
		Error: message,
	}
}

// HasAudio reports whether the frame references an audio clip
func (r *InboundResponse) HasAudio() bool {
	return strings.TrimSpace(r.AudioPath) != ""
}

// Encode serializes any wire value with the shared codec
func Encode(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// DecodeResponse parses a text frame received by the client
func DecodeResponse(data []byte) (*InboundResponse, error) {
	var resp InboundResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// AudioBaseName returns the last path segment of an audio reference.
// Both slash styles are accepted since the server may run on any OS.
func AudioBaseName(audioPath string) string {
	p := strings.TrimSpace(audioPath)
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	if p == "." || p == ".." {
		return ""
	}
	return p
}

// ResolveAudioPath maps an audio reference to its route, e.g.
// "/tmp/foo/bar123.wav" -> "/audio/bar123.wav"
func ResolveAudioPath(audioPath string) (string, error) {
	name := AudioBaseName(audioPath)
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrNoAudioName, audioPath)
	}
	return AudioRoute + url.PathEscape(name), nil
}

// AudioURL resolves an audio reference against the websocket endpoint,
// switching ws/wss to http/https on the same host.
func AudioURL(wsURL, audioPath string) (string, error) {
	route, err := ResolveAudioPath(audioPath)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", wsURL, err)
	}

	switch u.Scheme {
	case "wss", "https":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	return u.String() + route, nil
}
