package faceauth

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrSuperseded settles a request that was replaced by a newer one
	// before a frame was captured for it.
	ErrSuperseded = errors.New("faceauth: capture request superseded by a newer request")

	// ErrNoAPIKey is returned by New when Config.APIKey is empty.
	ErrNoAPIKey = errors.New("faceauth: API key required")

	// ErrNoTarget is returned by New when Config.Target is nil.
	ErrNoTarget = errors.New("faceauth: render target required")

	// ErrResultPending is returned by Pending.Wait when its context ends
	// after the frame was sent but before the auth service answered.
	ErrResultPending = errors.New("faceauth: face captured, auth result still pending")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("faceauth: coordinator closed")
)

// SetupError is a failure to start: camera access or model loading.
type SetupError struct {
	Stage string // "camera" or "model"
	Err   error
}

// Error implements the error interface.
func (e *SetupError) Error() string {
	switch e.Stage {
	case stageCamera:
		return fmt.Sprintf("Unable to access camera: %v", e.Err)
	case stageModel:
		return fmt.Sprintf("Failed to load face detection model: %v", e.Err)
	}
	return fmt.Sprintf("Setup failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SetupError) Unwrap() error {
	return e.Err
}

// CaptureError is a failure to grab or encode the still frame.
type CaptureError struct {
	Err error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("Failed to capture image: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

const (
	stageCamera = "camera"
	stageModel  = "model"
)
