package messages

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// OutboundRequest is the text frame a client sends on /ws
type OutboundRequest struct {
	Text         string `json:"text"`
	RequireAudio bool   `json:"require_audio,omitempty"` // omitted for the minimal {text} variant
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message string `json:"message"`
}

// NewOutboundRequest creates a request frame for the given text
func NewOutboundRequest(text string, requireAudio bool) *OutboundRequest {
	return &OutboundRequest{
		Text:         text,
		RequireAudio: requireAudio,
	}
}

// EncodeRequest serializes a request frame
func EncodeRequest(req *OutboundRequest) ([]byte, error) {
	data, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// DecodeRequest parses a request frame received by the server
func DecodeRequest(data []byte) (*OutboundRequest, error) {
	var req OutboundRequest
	if err := sonic.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

// Turn roles in a conversation history
const (
	TurnUser  = "user"
	TurnAgent = "agent"
)

// Turn is one exchange kept in a server side conversation history
type Turn struct {
	Role string
	Text string
}
