package faceauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-faceauth/pkg/authapi"
	"github.com/teslashibe/go-faceauth/pkg/camera"
	"github.com/teslashibe/go-faceauth/pkg/detection"
)

// DefaultPollInterval is how often the detector runs while streaming.
const DefaultPollInterval = 200 * time.Millisecond

// Surface is the render target a live stream is attached to while the
// coordinator runs (a preview window, a dashboard socket, ...).
type Surface interface {
	Attach(stream camera.Stream)
	Detach()
}

// Authenticator is the remote face auth service.
type Authenticator interface {
	LoginFace(ctx context.Context, imageBase64 string) (*authapi.Result, error)
	SignupFace(ctx context.Context, imageBase64 string, customFields map[string]any) (*authapi.Result, error)
}

// DetectorLoader loads a face detector from the model assets under modelPath.
type DetectorLoader func(ctx context.Context, modelPath string) (detection.Detector, error)

// Attempt describes one settled capture, for audit trails.
type Attempt struct {
	RequestID string
	Mode      Mode
	UserID    int
	IsNewUser bool
	Error     string
	ArmedAt   time.Time
	Latency   time.Duration
}

// Recorder persists attempts. Failures are logged and otherwise ignored.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// Config holds the caller-facing initialization options.
type Config struct {
	// APIKey is sent as X-API-KEY. Required.
	APIKey string

	// Target receives the live stream. Required.
	Target Surface

	// BaseURL overrides the production auth endpoint.
	BaseURL string

	// ModelPath overrides where detector model assets are fetched from.
	ModelPath string

	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if c.Target == nil {
		return ErrNoTarget
	}
	return nil
}

type options struct {
	source        camera.Source
	loader        DetectorLoader
	auth          Authenticator
	recorder      Recorder
	logger        *slog.Logger
	onStateChange func(State)
}

// Option customizes a Coordinator.
type Option func(*options)

// WithSource sets the media source. Defaults to camera device 0.
func WithSource(src camera.Source) Option {
	return func(o *options) { o.source = src }
}

// WithDetectorLoader replaces the YuNet loader.
func WithDetectorLoader(l DetectorLoader) Option {
	return func(o *options) { o.loader = l }
}

// WithDetector uses an already loaded detector.
func WithDetector(d detection.Detector) Option {
	return func(o *options) {
		o.loader = func(context.Context, string) (detection.Detector, error) { return d, nil }
	}
}

// WithAuthenticator replaces the HTTP auth client.
func WithAuthenticator(a Authenticator) Option {
	return func(o *options) { o.auth = a }
}

// WithRecorder sets an audit recorder for settled attempts.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStateHandler registers a callback for state changes. It runs on a
// dedicated goroutine; bursts of changes are coalesced and the last
// delivered State is always the current one.
func WithStateHandler(fn func(State)) Option {
	return func(o *options) { o.onStateChange = fn }
}
