package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Common errors returned by streams.
var (
	ErrNoFrame = errors.New("camera: no frame available")
	ErrClosed  = errors.New("camera: stream closed")
)

// Stream is an open, live video stream.
type Stream interface {
	// CaptureJPEG returns the most recent frame as JPEG bytes.
	CaptureJPEG() ([]byte, error)

	// Close stops the stream and releases the device. Safe to call twice.
	Close() error
}

// Source opens streams. Open blocks until the first frame arrives.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// NewSource picks a source from a camera spec: ws:// and wss:// URLs are
// WebRTC signalling servers, anything else goes to gocv (a device index
// such as "0", a file path or a stream URL).
func NewSource(spec string, cfg Config, logger *slog.Logger) (Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %s", strings.Join(errs, "; "))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.HasPrefix(spec, "ws://") || strings.HasPrefix(spec, "wss://") {
		return &WebRTCSource{SignallingURL: spec, Config: cfg, Logger: logger}, nil
	}
	if spec == "" {
		spec = "0"
	}
	return &DeviceSource{Device: spec, Config: cfg, Logger: logger}, nil
}

// frameBuffer holds the latest encoded frame of a stream.
type frameBuffer struct {
	mu    sync.RWMutex
	frame []byte

	ready     chan struct{}
	readyOnce sync.Once
}

func newFrameBuffer() *frameBuffer {
	return &frameBuffer{ready: make(chan struct{})}
}

func (b *frameBuffer) store(jpeg []byte) {
	b.mu.Lock()
	b.frame = jpeg
	b.mu.Unlock()
	b.readyOnce.Do(func() { close(b.ready) })
}

// latest returns a copy of the last stored frame.
func (b *frameBuffer) latest() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.frame == nil {
		return nil, ErrNoFrame
	}
	frame := make([]byte, len(b.frame))
	copy(frame, b.frame)
	return frame, nil
}

// waitFirst blocks until a frame is stored, the timeout passes or ctx ends.
func (b *frameBuffer) waitFirst(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.ready:
		return nil
	case <-timer.C:
		return fmt.Errorf("camera: no frame within %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
