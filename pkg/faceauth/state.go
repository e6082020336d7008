package faceauth

// Mode selects the auth endpoint a capture is sent to.
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeSignup Mode = "signup"
)

// State is the caller-visible status of a coordinator.
type State struct {
	// IsLoading is true while a captured frame is being sent.
	IsLoading bool `json:"is_loading"`

	// IsInitializing is true while Start acquires the camera and model.
	IsInitializing bool `json:"is_initializing"`

	// FaceDetected reflects the most recent poll.
	FaceDetected bool `json:"face_detected"`

	// Error is the last human-readable error, or "".
	Error string `json:"error,omitempty"`

	// Running is true between a successful Start and Stop.
	Running bool `json:"running"`
}
