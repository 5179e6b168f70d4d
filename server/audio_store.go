package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/room4-2/voicechat/messages"
)

// ErrAudioNotFound is returned when a clip name is unknown or expired
var ErrAudioNotFound = errors.New("audio clip not found")

// AudioStore keeps synthesized replies until the client fetches them
type AudioStore interface {
	// Save stores the clip and returns the audio_path to send to the client
	Save(ctx context.Context, clip messages.Clip) (string, error)
	// Load returns the clip stored under the base name
	Load(ctx context.Context, name string) (messages.Clip, error)
}

func newClipName() string {
	return uuid.New().String() + ".wav"
}

func validClipName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// DirStore writes clips as files in a directory. The audio_path it hands out
// is the file path, clients only keep its base name.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory if needed
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Save(ctx context.Context, clip messages.Clip) (string, error) {
	path := filepath.Join(s.dir, newClipName())
	if err := os.WriteFile(path, clip.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	return path, nil
}

func (s *DirStore) Load(ctx context.Context, name string) (messages.Clip, error) {
	if !validClipName(name) {
		return messages.Clip{}, ErrAudioNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return messages.Clip{}, ErrAudioNotFound
	}
	if err != nil {
		return messages.Clip{}, fmt.Errorf("failed to read audio: %w", err)
	}
	return messages.Clip{Data: data, MIMEType: "audio/wav"}, nil
}

// Cleanup removes clips older than ttl
func (s *DirStore) Cleanup(ttl time.Duration) (int, error) {
	entries, err := filepath.Glob(filepath.Join(s.dir, "*.wav"))
	if err != nil {
		return 0, err
	}
	removed := 0
	cutoff := time.Now().Add(-ttl)
	for _, path := range entries {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if uuid.Validate(strings.TrimSuffix(filepath.Base(path), ".wav")) != nil {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	return removed, nil
}

// RedisStore keeps clips in Redis with an expiry
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

const audioKeyPrefix = "audio:"

// NewRedisStore stores clips for ttl
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, clip messages.Clip) (string, error) {
	name := newClipName()
	if err := s.redis.Set(ctx, audioKeyPrefix+name, clip.Data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store audio: %w", err)
	}
	return messages.AudioRoute + name, nil
}

func (s *RedisStore) Load(ctx context.Context, name string) (messages.Clip, error) {
	if !validClipName(name) {
		return messages.Clip{}, ErrAudioNotFound
	}
	data, err := s.redis.Get(ctx, audioKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return messages.Clip{}, ErrAudioNotFound
	}
	if err != nil {
		return messages.Clip{}, fmt.Errorf("failed to load audio: %w", err)
	}
	return messages.Clip{Data: data, MIMEType: "audio/wav"}, nil
}
