package media

import (
	"errors"
	"io"
	"sync"
)

// ErrBufferFull is returned when captured audio exceeds the buffer limit
var ErrBufferFull = errors.New("clip buffer full")

const readChunkSize = 4096

// ClipBuffer collects captured PCM up to a fixed number of bytes
type ClipBuffer struct {
	mu      sync.Mutex
	chunks  [][]byte
	size    int
	maxSize int
}

// NewClipBuffer creates a buffer holding at most maxSize bytes
func NewClipBuffer(maxSize int) *ClipBuffer {
	return &ClipBuffer{maxSize: maxSize}
}

// ReadFrom copies r into the buffer until EOF or until the buffer is full.
// The chunk that crosses the limit is truncated to the remaining room.
func (cb *ClipBuffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for {
		chunk := make([]byte, readChunkSize)
		n, err := r.Read(chunk)
		if n > 0 {
			kept := cb.add(chunk[:n])
			total += int64(kept)
			if kept < n {
				return total, ErrBufferFull
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// add keeps as much of chunk as still fits and reports how much that was
func (cb *ClipBuffer) add(chunk []byte) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	room := cb.maxSize - cb.size
	if room <= 0 {
		return 0
	}
	if room < len(chunk) {
		chunk = chunk[:room]
	}
	cb.chunks = append(cb.chunks, chunk)
	cb.size += len(chunk)
	return len(chunk)
}

// Flush returns everything captured so far and empties the buffer
func (cb *ClipBuffer) Flush() []byte {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		return nil
	}
	out := make([]byte, 0, cb.size)
	for _, chunk := range cb.chunks {
		out = append(out, chunk...)
	}
	cb.chunks = nil
	cb.size = 0
	return out
}

// IsEmpty reports whether nothing was captured
func (cb *ClipBuffer) IsEmpty() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == 0
}
