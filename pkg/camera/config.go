// Package camera opens live video streams for the capture coordinator.
// A Source is either a local device read through gocv or a remote
// WebRTC producer.
package camera

import (
	"fmt"
	"time"
)

// Config holds capture parameters shared by all sources.
type Config struct {
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Frames read per second
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// FirstFrameTimeout bounds how long Open waits for the first frame.
	FirstFrameTimeout time.Duration `json:"first_frame_timeout"`
}

// Limits enforced by Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 60
)

// DefaultConfig returns 640x480 at 15 FPS, plenty for face login.
func DefaultConfig() Config {
	return Config{
		Width:             640,
		Height:            480,
		Framerate:         15,
		Quality:           90,
		FirstFrameTimeout: 5 * time.Second,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.FirstFrameTimeout <= 0 {
		errors = append(errors, "first_frame_timeout must be positive")
	}

	return errors
}

// FrameInterval is the reader period implied by Framerate.
func (c *Config) FrameInterval() time.Duration {
	if c.Framerate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.Framerate)
}
