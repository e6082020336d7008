package cli

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-faceauth/pkg/camera"
)

// headlessSurface is the render target for terminal commands. It only
// tracks whether a stream is attached.
type headlessSurface struct {
	logger *slog.Logger

	mu     sync.Mutex
	stream camera.Stream
}

func newHeadlessSurface(logger *slog.Logger) *headlessSurface {
	return &headlessSurface{logger: logger.With("component", "surface")}
}

func (s *headlessSurface) Attach(stream camera.Stream) {
	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	s.logger.Debug("camera attached")
}

func (s *headlessSurface) Detach() {
	s.mu.Lock()
	attached := s.stream != nil
	s.stream = nil
	s.mu.Unlock()
	if attached {
		s.logger.Debug("camera detached")
	}
}

func (s *headlessSurface) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}
