package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/room4-2/voicechat/messages"
)

const (
	captureSampleRate = 16000
	captureChannels   = 1

	// five minutes of 16kHz mono s16le
	defaultMaxCaptureBytes = 5 * 60 * captureSampleRate * 2
)

// FFmpegRecorder captures microphone audio through an external ffmpeg process
type FFmpegRecorder struct {
	path        string
	inputFormat string
	device      string
	maxBytes    int
}

// NewFFmpegRecorder creates a recorder for the default input device of this OS
func NewFFmpegRecorder(path string) *FFmpegRecorder {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	format, device := micInput(runtime.GOOS)
	return &FFmpegRecorder{
		path:        path,
		inputFormat: format,
		device:      device,
		maxBytes:    defaultMaxCaptureBytes,
	}
}

// WithDevice overrides the ffmpeg input format and device, e.g. ("alsa", "hw:1")
func (r *FFmpegRecorder) WithDevice(format, device string) *FFmpegRecorder {
	r.inputFormat = format
	r.device = device
	return r
}

// Available reports whether the ffmpeg binary can be found
func (r *FFmpegRecorder) Available() bool {
	_, err := exec.LookPath(r.path)
	return err == nil
}

// Record captures until ctx is cancelled or the capture limit is reached and
// returns what was heard as a WAV clip
func (r *FFmpegRecorder) Record(ctx context.Context) (messages.Clip, error) {
	procCtx, stop := context.WithCancel(ctx)
	defer stop()

	cmd := exec.CommandContext(procCtx, r.path, r.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return messages.Clip{}, fmt.Errorf("failed to open ffmpeg output: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return messages.Clip{}, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	buf := NewClipBuffer(r.maxBytes)
	_, readErr := buf.ReadFrom(stdout)
	if errors.Is(readErr, ErrBufferFull) {
		stop()
	}
	waitErr := cmd.Wait()

	// a cancelled capture is the normal way to finish
	if waitErr != nil && procCtx.Err() == nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return messages.Clip{}, fmt.Errorf("ffmpeg: %w: %s", waitErr, msg)
		}
		return messages.Clip{}, fmt.Errorf("ffmpeg: %w", waitErr)
	}
	if buf.IsEmpty() {
		return messages.Clip{}, fmt.Errorf("no audio captured from %s", r.device)
	}

	return messages.Clip{
		Data:     EncodeWAV(buf.Flush(), captureSampleRate, captureChannels),
		MIMEType: "audio/wav",
	}, nil
}

func (r *FFmpegRecorder) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", r.inputFormat,
		"-i", r.device,
		"-ac", fmt.Sprint(captureChannels),
		"-ar", fmt.Sprint(captureSampleRate),
		"-f", "s16le",
		"-",
	}
}

// micInput picks the ffmpeg capture backend for goos
func micInput(goos string) (format, device string) {
	switch goos {
	case "darwin":
		// none:<index> avoids opening a camera
		return "avfoundation", "none:0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}
