// Package faceauth coordinates a camera stream, a face detector and the
// remote face auth API. A caller arms a login or signup request; the
// coordinator waits until a face is in frame, captures a still, sends it
// and settles the request with the service's answer.
package faceauth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-faceauth/pkg/authapi"
	"github.com/teslashibe/go-faceauth/pkg/camera"
	"github.com/teslashibe/go-faceauth/pkg/detection"
)

const recordTimeout = 5 * time.Second

// Coordinator is the capture coordinator. It is safe for concurrent use.
type Coordinator struct {
	cfg      Config
	source   camera.Source
	loader   DetectorLoader
	auth     Authenticator
	recorder Recorder
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	armed      *Pending
	stream     camera.Stream
	detector   detection.Detector
	session    uint64
	starting   bool
	abortStart bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}

	// Sends outlive Stop; only Close cancels them.
	sendCtx    context.Context
	sendCancel context.CancelFunc
	sends      sync.WaitGroup

	onState    func(State)
	kick       chan struct{}
	quit       chan struct{}
	notifyDone chan struct{}
}

// New creates a coordinator. Nothing is acquired until Start.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = authapi.DefaultBaseURL
	}
	if cfg.ModelPath == "" {
		cfg.ModelPath = detection.DefaultModelBase
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger.With("component", "faceauth")

	if o.source == nil {
		src, err := camera.NewSource("0", camera.DefaultConfig(), logger)
		if err != nil {
			return nil, err
		}
		o.source = src
	}
	if o.loader == nil {
		o.loader = func(ctx context.Context, modelPath string) (detection.Detector, error) {
			d, err := detection.Load(ctx, modelPath, detection.DefaultConfig(), detection.FetchOptions{Logger: logger})
			if err != nil {
				return nil, err
			}
			return d, nil
		}
	}
	if o.auth == nil {
		client, err := authapi.NewClient(
			authapi.WithBaseURL(cfg.BaseURL),
			authapi.WithAPIKey(cfg.APIKey),
			authapi.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		o.auth = client
	}

	sendCtx, sendCancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:        cfg,
		source:     o.source,
		loader:     o.loader,
		auth:       o.auth,
		recorder:   o.recorder,
		logger:     logger,
		sendCtx:    sendCtx,
		sendCancel: sendCancel,
		onState:    o.onStateChange,
		kick:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		notifyDone: make(chan struct{}),
	}
	if c.onState != nil {
		go c.runNotifier()
	} else {
		close(c.notifyDone)
	}
	return c, nil
}

// Start acquires the camera, attaches it to the target, loads the
// detector and starts polling. Failures are recorded in State().Error and
// returned; the coordinator is left stopped and can be started again.
// Start on a running coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.Running || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	c.abortStart = false
	c.state.IsInitializing = true
	c.state.Error = ""
	c.mu.Unlock()
	c.notify()

	c.logger.Info("starting capture session")

	stream, err := c.source.Open(ctx)
	if err != nil {
		return c.failStart(&SetupError{Stage: stageCamera, Err: err})
	}
	c.cfg.Target.Attach(stream)

	det, err := c.ensureDetector(ctx)
	if err != nil {
		c.cfg.Target.Detach()
		stream.Close()
		return c.failStart(&SetupError{Stage: stageModel, Err: err})
	}

	c.mu.Lock()
	c.starting = false
	c.state.IsInitializing = false
	if c.abortStart || c.closed {
		c.mu.Unlock()
		c.cfg.Target.Detach()
		stream.Close()
		c.notify()
		c.logger.Info("start aborted by stop")
		return nil
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c.session++
	c.stream = stream
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state.Running = true
	go c.poll(pollCtx, c.session, stream, det, c.done)
	c.mu.Unlock()
	c.notify()

	c.logger.Info("capture session started", "poll_interval", c.cfg.PollInterval)
	return nil
}

func (c *Coordinator) failStart(err error) error {
	c.mu.Lock()
	c.starting = false
	c.state.IsInitializing = false
	c.state.Error = err.Error()
	c.mu.Unlock()
	c.notify()
	c.logger.Error("start failed", "error", err)
	return err
}

// ensureDetector loads the detector once and keeps it across sessions.
func (c *Coordinator) ensureDetector(ctx context.Context) (detection.Detector, error) {
	c.mu.Lock()
	det := c.detector
	c.mu.Unlock()
	if det != nil {
		return det, nil
	}

	det, err := c.loader(ctx, c.cfg.ModelPath)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		det.Close()
		return nil, ErrClosed
	}
	c.detector = det
	return det, nil
}

// Stop halts polling, detaches the target and releases the stream. It is
// safe to call before Start and more than once. A send already in flight
// is not aborted.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.starting {
		c.abortStart = true
	}
	cancel, done, stream := c.cancel, c.done, c.stream
	c.cancel, c.done, c.stream = nil, nil, nil
	changed := c.state.Running || c.state.FaceDetected
	c.state.Running = false
	c.state.FaceDetected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if stream != nil {
		c.cfg.Target.Detach()
		if err := stream.Close(); err != nil {
			c.logger.Warn("close stream", "error", err)
		}
		c.logger.Info("capture session stopped")
	}
	if changed {
		c.notify()
	}
}

// Close stops the coordinator, rejects an armed request with ErrClosed,
// cancels in-flight sends and releases the detector.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	// Settle under mu so a concurrent Wait never sees it disarmed but open.
	if c.armed != nil {
		c.armed.settle(nil, ErrClosed)
		c.armed = nil
	}
	c.mu.Unlock()

	c.Stop()
	c.sendCancel()
	c.sends.Wait()

	c.mu.Lock()
	det := c.detector
	c.detector = nil
	c.mu.Unlock()

	close(c.quit)
	<-c.notifyDone

	if det != nil {
		return det.Close()
	}
	return nil
}

// State returns a snapshot of the coordinator's status.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestLogin arms a login capture and returns its handle.
func (c *Coordinator) RequestLogin() *Pending {
	return c.arm(ModeLogin, nil)
}

// RequestSignup arms a signup capture. fields are forwarded verbatim as
// custom_fields.
func (c *Coordinator) RequestSignup(fields map[string]any) *Pending {
	return c.arm(ModeSignup, fields)
}

// LoginWithFace arms a login capture and waits for its outcome. If ctx
// ends first the request is withdrawn.
func (c *Coordinator) LoginWithFace(ctx context.Context) (*authapi.Result, error) {
	return c.RequestLogin().Wait(ctx)
}

// SignupWithFace arms a signup capture and waits for its outcome.
func (c *Coordinator) SignupWithFace(ctx context.Context, fields map[string]any) (*authapi.Result, error) {
	return c.RequestSignup(fields).Wait(ctx)
}

// arm makes p the single armed request. A request it replaces is settled
// with ErrSuperseded.
func (c *Coordinator) arm(mode Mode, fields map[string]any) *Pending {
	p := newPending(mode, fields)
	p.withdraw = c.withdraw

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.settle(nil, ErrClosed)
		return p
	}
	prev := c.armed
	if prev != nil {
		prev.settle(nil, ErrSuperseded)
	}
	c.armed = p
	c.state.Error = ""
	c.mu.Unlock()
	c.notify()

	if prev != nil {
		c.logger.Info("capture request superseded", "request_id", prev.id, "by", p.id)
	}
	c.logger.Debug("capture request armed", "request_id", p.id, "mode", mode)
	return p
}

func (c *Coordinator) withdraw(p *Pending, err error) bool {
	c.mu.Lock()
	if c.armed != p {
		c.mu.Unlock()
		return false
	}
	c.armed = nil
	c.mu.Unlock()

	p.settle(nil, err)
	c.logger.Debug("capture request withdrawn", "request_id", p.id, "reason", err)
	return true
}

func (c *Coordinator) poll(ctx context.Context, session uint64, stream camera.Stream, det detection.Detector, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(session, stream, det)
		}
	}
}

// tick runs one detection pass. Frame or detector errors count as no face.
func (c *Coordinator) tick(session uint64, stream camera.Stream, det detection.Detector) {
	face := false
	frame, err := stream.CaptureJPEG()
	if err != nil {
		c.logger.Debug("frame unavailable", "error", err)
	} else if dets, err := det.Detect(frame); err != nil {
		c.logger.Debug("detection failed", "error", err)
	} else if best := detection.SelectBest(dets); best != nil {
		face = true
		x, y := best.Center()
		c.logger.Debug("face in frame", "faces", len(dets), "confidence", best.Confidence, "x", x, "y", y)
	}

	c.mu.Lock()
	if c.session != session || !c.state.Running {
		c.mu.Unlock()
		return
	}
	changed := c.state.FaceDetected != face
	c.state.FaceDetected = face

	// Disarm and mark busy before anything can block.
	var p *Pending
	if face && c.armed != nil && !c.state.IsLoading {
		p = c.armed
		c.armed = nil
		c.state.IsLoading = true
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
	if p != nil {
		c.captureAndSend(stream, p)
	}
}

func (c *Coordinator) captureAndSend(stream camera.Stream, p *Pending) {
	frame, err := stream.CaptureJPEG()
	if err != nil {
		c.finish(p, nil, &CaptureError{Err: err})
		return
	}
	img := base64.StdEncoding.EncodeToString(frame)

	c.logger.Info("face captured", "request_id", p.id, "mode", p.mode, "bytes", len(frame))

	c.sends.Add(1)
	go func() {
		defer c.sends.Done()

		var (
			res *authapi.Result
			err error
		)
		switch p.mode {
		case ModeSignup:
			res, err = c.auth.SignupFace(c.sendCtx, img, p.fields)
		default:
			res, err = c.auth.LoginFace(c.sendCtx, img)
		}
		c.finish(p, res, err)
	}()
}

// finish clears the busy flag before the request settles, so a caller
// woken by the result may arm again immediately.
func (c *Coordinator) finish(p *Pending, res *authapi.Result, err error) {
	c.mu.Lock()
	c.state.IsLoading = false
	if err != nil {
		c.state.Error = err.Error()
	}
	c.mu.Unlock()
	c.notify()

	latency := time.Since(p.armed)
	if err != nil {
		c.logger.Warn("face auth failed", "request_id", p.id, "mode", p.mode, "error", err)
	} else if res != nil {
		c.logger.Info("face auth succeeded", "request_id", p.id, "mode", p.mode,
			"user_id", res.UserID, "is_new_user", res.IsNewUser, "latency", latency)
	}

	p.settle(res, err)
	c.record(p, res, err, latency)
}

func (c *Coordinator) record(p *Pending, res *authapi.Result, err error, latency time.Duration) {
	if c.recorder == nil {
		return
	}
	a := Attempt{
		RequestID: p.id,
		Mode:      p.mode,
		ArmedAt:   p.armed,
		Latency:   latency,
	}
	if res != nil {
		a.UserID = res.UserID
		a.IsNewUser = res.IsNewUser
	}
	if err != nil {
		a.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.recorder.RecordAttempt(ctx, a); err != nil {
		c.logger.Warn("record attempt", "request_id", p.id, "error", err)
	}
}

func (c *Coordinator) notify() {
	if c.onState == nil {
		return
	}
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// runNotifier delivers state snapshots one at a time. A kick that arrives
// while the handler runs triggers one more delivery with fresh state.
func (c *Coordinator) runNotifier() {
	defer close(c.notifyDone)
	for {
		select {
		case <-c.kick:
			c.onState(c.State())
		case <-c.quit:
			select {
			case <-c.kick:
				c.onState(c.State())
			default:
			}
			return
		}
	}
}
