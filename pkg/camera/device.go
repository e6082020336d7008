package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DeviceSource reads a local camera (or file/URL) through OpenCV.
type DeviceSource struct {
	Device string
	Config Config
	Logger *slog.Logger
}

// Open opens the device, applies the requested geometry and starts the
// reader goroutine.
func (s *DeviceSource) Open(ctx context.Context) (Stream, error) {
	vc, err := gocv.OpenVideoCapture(s.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", s.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %q: device not available", s.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(s.Config.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(s.Config.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(s.Config.Framerate))

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := &deviceStream{
		vc:     vc,
		config: s.Config,
		buf:    newFrameBuffer(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.With("component", "camera.device", "device", s.Device),
	}
	// readLoop owns vc from here on.
	width, height := vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight)
	go st.readLoop()

	if err := st.buf.waitFirst(ctx, s.Config.FirstFrameTimeout); err != nil {
		st.Close()
		return nil, fmt.Errorf("open camera %q: %w", s.Device, err)
	}

	st.logger.Info("camera streaming", "width", width, "height", height)
	return st, nil
}

type deviceStream struct {
	vc     *gocv.VideoCapture
	config Config
	buf    *frameBuffer
	logger *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// readLoop owns the VideoCapture. vc.Read paces the loop at the device
// rate; frames are JPEG-encoded at most once per FrameInterval.
func (s *deviceStream) readLoop() {
	defer close(s.done)

	mat := gocv.NewMat()
	defer mat.Close()

	params := []int{int(gocv.IMWriteJpegQuality), s.config.Quality}
	interval := s.config.FrameInterval()
	var lastEncode time.Time
	misses := 0

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if ok := s.vc.Read(&mat); !ok || mat.Empty() {
			misses++
			if misses == 30 {
				s.logger.Warn("camera returned no frames", "misses", misses)
			}
			time.Sleep(interval)
			continue
		}
		misses = 0

		if time.Since(lastEncode) < interval {
			continue
		}

		nb, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, params)
		if err != nil {
			s.logger.Debug("jpeg encode failed", "error", err)
			continue
		}
		raw := nb.GetBytes()
		frame := make([]byte, len(raw))
		copy(frame, raw)
		nb.Close()

		s.buf.store(frame)
		lastEncode = time.Now()
	}
}

// CaptureJPEG returns the most recent frame.
func (s *deviceStream) CaptureJPEG() ([]byte, error) {
	select {
	case <-s.stop:
		return nil, ErrClosed
	default:
	}
	return s.buf.latest()
}

// Close stops the reader and releases the device.
func (s *deviceStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		err = s.vc.Close()
	})
	return err
}
