package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/room4-2/voicechat/messages"
)

const (
	fetchTimeout  = 30 * time.Second
	maxFetchBytes = 32 * 1024 * 1024
)

// FFPlayPlayer plays clips through an external ffplay process
type FFPlayPlayer struct {
	path   string
	volume int
	client *http.Client
}

// NewFFPlayPlayer creates a player, path defaults to "ffplay" on $PATH
func NewFFPlayPlayer(path string) *FFPlayPlayer {
	if strings.TrimSpace(path) == "" {
		path = "ffplay"
	}
	return &FFPlayPlayer{
		path:   path,
		volume: 80,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Available reports whether the ffplay binary can be found
func (p *FFPlayPlayer) Available() bool {
	_, err := exec.LookPath(p.path)
	return err == nil
}

// Play pipes the clip to ffplay and blocks until playback ends or ctx is cancelled
func (p *FFPlayPlayer) Play(ctx context.Context, clip messages.Clip) error {
	if len(clip.Data) == 0 {
		return fmt.Errorf("empty clip")
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nodisp",
		"-autoexit",
		"-volume", fmt.Sprint(p.volume),
		"-i", "pipe:0",
	}
	cmd := exec.CommandContext(ctx, p.path, args...)
	cmd.Stdin = bytes.NewReader(clip.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffplay: %w: %s", err, msg)
		}
		return fmt.Errorf("ffplay: %w", err)
	}
	return nil
}

// PlayURL downloads the clip at url and plays it
func (p *FFPlayPlayer) PlayURL(ctx context.Context, url string) error {
	clip, err := p.fetch(ctx, url)
	if err != nil {
		return err
	}
	return p.Play(ctx, clip)
}

func (p *FFPlayPlayer) fetch(ctx context.Context, url string) (messages.Clip, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return messages.Clip{}, fmt.Errorf("failed to build audio request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return messages.Clip{}, fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return messages.Clip{}, fmt.Errorf("failed to fetch audio: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return messages.Clip{}, fmt.Errorf("failed to read audio: %w", err)
	}
	return messages.Clip{Data: data, MIMEType: resp.Header.Get("Content-Type")}, nil
}
