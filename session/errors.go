package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoView is returned by New when no UI surface is given
	ErrNoView = errors.New("session: a view is required")
	// ErrConflictingCapture is returned by New when both voice capture mechanisms are given
	ErrConflictingCapture = errors.New("session: recognizer and recorder are mutually exclusive")
	// ErrAlreadyRunning is returned by Run when the controller is already running
	ErrAlreadyRunning = errors.New("session: already running")
)

// TransportError is a connection level failure. It is reflected in the
// status and recovered by the reconnect loop.
type TransportError struct {
	Op  string // dial, read, write
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a malformed inbound frame. The frame is dropped.
type ProtocolError struct {
	Payload []byte
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed frame (%d bytes): %v", len(e.Payload), e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// MediaPermissionError means voice capture was denied or is unavailable
type MediaPermissionError struct {
	Device string // microphone, recognizer, transcriber
	Err    error
}

func (e *MediaPermissionError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Device, e.Err)
}

func (e *MediaPermissionError) Unwrap() error { return e.Err }

// PlaybackError is a failed audio playback or speech synthesis
type PlaybackError struct {
	Source string
	Err    error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of %s failed: %v", e.Source, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
