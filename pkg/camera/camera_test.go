package camera

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-faceauth/internal/log"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("DefaultConfig should be valid, got %v", errs)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errors int
	}{
		{"valid", func(c *Config) {}, 0},
		{"width too small", func(c *Config) { c.Width = 10 }, 1},
		{"height too large", func(c *Config) { c.Height = 5000 }, 1},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }, 1},
		{"quality out of range", func(c *Config) { c.Quality = 101 }, 1},
		{"no first frame timeout", func(c *Config) { c.FirstFrameTimeout = 0 }, 1},
		{"several", func(c *Config) { c.Width = 0; c.Quality = 0 }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if errs := cfg.Validate(); len(errs) != tt.errors {
				t.Errorf("Validate() = %v, want %d errors", errs, tt.errors)
			}
		})
	}
}

func TestPresetsValid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Errorf("preset %q missing", name)
			continue
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("unknown preset should return nil")
	}
}

func TestFrameInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Framerate = 10
	if got := cfg.FrameInterval(); got != 100*time.Millisecond {
		t.Errorf("FrameInterval() = %v, want 100ms", got)
	}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		spec       string
		wantWebRTC bool
		wantDevice string
	}{
		{"0", false, "0"},
		{"", false, "0"},
		{"/tmp/face.mp4", false, "/tmp/face.mp4"},
		{"ws://10.0.0.2:8443", true, ""},
		{"wss://cam.local", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			src, err := NewSource(tt.spec, DefaultConfig(), nil)
			if err != nil {
				t.Fatalf("NewSource failed: %v", err)
			}
			switch s := src.(type) {
			case *WebRTCSource:
				if !tt.wantWebRTC {
					t.Errorf("got WebRTC source for %q", tt.spec)
				}
				if s.SignallingURL != tt.spec {
					t.Errorf("SignallingURL = %q", s.SignallingURL)
				}
			case *DeviceSource:
				if tt.wantWebRTC {
					t.Errorf("got device source for %q", tt.spec)
				}
				if s.Device != tt.wantDevice {
					t.Errorf("Device = %q, want %q", s.Device, tt.wantDevice)
				}
			default:
				t.Fatalf("unexpected source type %T", src)
			}
		})
	}
}

func TestNewSourceRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width = 0
	if _, err := NewSource("0", cfg, nil); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestFrameBuffer(t *testing.T) {
	buf := newFrameBuffer()

	if _, err := buf.latest(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame before first store, got %v", err)
	}

	if err := buf.waitFirst(context.Background(), 10*time.Millisecond); err == nil {
		t.Error("waitFirst should time out on an empty buffer")
	}

	go buf.store([]byte{1, 2, 3})
	if err := buf.waitFirst(context.Background(), time.Second); err != nil {
		t.Fatalf("waitFirst failed: %v", err)
	}

	frame, err := buf.latest()
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	frame[0] = 9
	again, _ := buf.latest()
	if again[0] != 1 {
		t.Error("latest must return a copy")
	}
}

func TestFrameBufferWaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newFrameBuffer().waitFirst(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNALTypes(t *testing.T) {
	annexB := []byte{
		0, 0, 0, 1, 0x67, 0xAA, // SPS
		0, 0, 0, 1, 0x68, 0xBB, // PPS
		0, 0, 1, 0x65, 0xCC, 0xDD, // IDR
	}
	types := nalTypes(annexB)
	for _, want := range []int{nalSPS, nalPPS, nalIDR} {
		if !types[want] {
			t.Errorf("missing NAL type %d in %v", want, types)
		}
	}
	if types[1] {
		t.Error("non-IDR slice should not be reported")
	}
}

func TestLastJPEG(t *testing.T) {
	first := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0xFF, 0xE0, 2, 0xFF, 0xD9}

	got, err := lastJPEG(append(append([]byte{}, first...), second...))
	if err != nil {
		t.Fatalf("lastJPEG failed: %v", err)
	}
	if got[4] != 2 {
		t.Errorf("expected the second image, got %v", got)
	}

	if _, err := lastJPEG([]byte("not a jpeg")); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
}

func TestWebRTCStreamStopsServingAfterSignallingEnds(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		session  string
	}{
		{
			name:     "producer ends session",
			messages: []string{`{"type":"sessionStarted","sessionId":"s1"}`, `{"type":"endSession"}`},
			session:  "s1",
		},
		{
			name: "signalling connection lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upgrader := websocket.Upgrader{}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				defer conn.Close()
				for _, msg := range tt.messages {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
						return
					}
				}
				if len(tt.messages) > 0 {
					// Hold the socket open until the client goes away.
					conn.ReadMessage()
				}
			}))
			defer srv.Close()

			ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
			if err != nil {
				t.Fatalf("dial failed: %v", err)
			}

			st := &webrtcStream{
				source: &WebRTCSource{Config: DefaultConfig()},
				logger: log.Discard(),
				buf:    newFrameBuffer(),
				ws:     ws,
			}
			defer st.Close()

			st.buf.store([]byte{0xFF, 0xD8, 0xFF, 0xD9})
			if _, err := st.CaptureJPEG(); err != nil {
				t.Fatalf("CaptureJPEG before end failed: %v", err)
			}

			done := make(chan struct{})
			go func() {
				st.handleSignalling()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("handleSignalling did not return")
			}

			if _, err := st.CaptureJPEG(); !errors.Is(err, ErrClosed) {
				t.Errorf("CaptureJPEG after end = %v, want ErrClosed", err)
			}
			if got := st.session(); got != tt.session {
				t.Errorf("session() = %q, want %q", got, tt.session)
			}
		})
	}
}

// Run with -race against a real device or video file to check that Open
// and the reader goroutine never share the VideoCapture.
func TestDeviceSourceOpenCaptureClose(t *testing.T) {
	device := os.Getenv("FACEAUTH_TEST_CAMERA")
	if device == "" {
		t.Skip("FACEAUTH_TEST_CAMERA not set")
	}

	src := &DeviceSource{Device: device, Config: DefaultConfig(), Logger: log.Discard()}
	st, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	frame, err := st.CaptureJPEG()
	if err != nil {
		t.Fatalf("CaptureJPEG failed: %v", err)
	}
	if len(frame) < 2 || frame[0] != 0xFF || frame[1] != 0xD8 {
		t.Errorf("frame is not a JPEG: % x", frame[:min(len(frame), 4)])
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := st.CaptureJPEG(); !errors.Is(err, ErrClosed) {
		t.Errorf("CaptureJPEG after Close = %v, want ErrClosed", err)
	}
}
