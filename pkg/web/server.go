// Package web serves the face auth dashboard: a JSON API to drive the
// coordinator and websocket feeds for its state and camera preview. The
// Server is also the coordinator's render target.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-faceauth/pkg/authapi"
	"github.com/teslashibe/go-faceauth/pkg/camera"
	"github.com/teslashibe/go-faceauth/pkg/faceauth"
	"github.com/teslashibe/go-faceauth/pkg/hub"
)

// Controller is the coordinator surface the dashboard drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	State() faceauth.State
	LoginWithFace(ctx context.Context) (*authapi.Result, error)
	SignupWithFace(ctx context.Context, fields map[string]any) (*authapi.Result, error)
}

// Config holds server settings.
type Config struct {
	// Listen is the address passed to fiber, e.g. ":8080".
	Listen string

	// PreviewInterval is how often frames are pushed to /ws/camera.
	PreviewInterval time.Duration

	// AuthTimeout bounds how long /api/login and /api/signup wait for a face.
	AuthTimeout time.Duration

	// AccessLog enables the fiber request logger.
	AccessLog bool

	Logger *slog.Logger
}

// DefaultConfig returns dashboard defaults.
func DefaultConfig() Config {
	return Config{
		Listen:          ":8080",
		PreviewInterval: 100 * time.Millisecond,
		AuthTimeout:     60 * time.Second,
	}
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	ctrlMu sync.RWMutex
	ctrl   Controller

	// Attached stream and its preview pump
	streamMu sync.Mutex
	stream   camera.Stream
	stopPump chan struct{}
	pumpDone chan struct{}

	statusHub *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates a dashboard server. Call SetController before serving
// API requests.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.PreviewInterval <= 0 {
		cfg.PreviewInterval = def.PreviewInterval
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := cfg.Logger.With("component", "web")

	s := &Server{
		cfg:       cfg,
		logger:    l,
		statusHub: hub.New("status", l),
		cameraHub: hub.New("camera", l),
	}

	app := fiber.New(fiber.Config{
		AppName:               "faceauth dashboard",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/status", s.handleStatus)
	api.Get("/snapshot", s.handleSnapshot)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)
	api.Post("/login", s.handleLogin)
	api.Post("/signup", s.handleSignup)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// SetController wires the coordinator the API drives.
func (s *Server) SetController(ctrl Controller) {
	s.ctrlMu.Lock()
	s.ctrl = ctrl
	s.ctrlMu.Unlock()
}

func (s *Server) controller() Controller {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	return s.ctrl
}

// Start runs the hubs and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("web dashboard listening", "addr", s.cfg.Listen)

	go s.statusHub.Run()
	go s.cameraHub.Run()

	return s.app.Listen(s.cfg.Listen)
}

// Shutdown stops the server, the hubs and any preview pump.
func (s *Server) Shutdown() error {
	s.Detach()
	s.statusHub.Stop()
	s.cameraHub.Stop()
	return s.app.Shutdown()
}

// PublishState broadcasts a coordinator state snapshot to /ws/status.
// It matches the coordinator's state handler signature.
func (s *Server) PublishState(st faceauth.State) {
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		s.logger.Warn("broadcast state", "error", err)
	}
}

// Attach starts pushing frames from stream to /ws/camera.
func (s *Server) Attach(stream camera.Stream) {
	s.Detach()

	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	s.stream = stream
	s.stopPump = make(chan struct{})
	s.pumpDone = make(chan struct{})
	go s.pumpPreview(stream, s.stopPump, s.pumpDone)
}

// Detach stops the preview pump. Safe to call when nothing is attached.
func (s *Server) Detach() {
	s.streamMu.Lock()
	stop, done := s.stopPump, s.pumpDone
	s.stream, s.stopPump, s.pumpDone = nil, nil, nil
	s.streamMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (s *Server) attached() camera.Stream {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.stream
}

func (s *Server) pumpPreview(stream camera.Stream, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PreviewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.cameraHub.ClientCount() == 0 {
				continue
			}
			frame, err := stream.CaptureJPEG()
			if err != nil {
				continue
			}
			s.cameraHub.BroadcastBinary(frame)
		}
	}
}
