// Package detection finds faces in camera frames. The model itself comes
// from OpenCV (YuNet); this package only loads it and normalizes output.
package detection

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// clamped trims the box to the frame. YuNet can report boxes that hang
// off the edge for partially visible faces.
func (d Detection) clamped() Detection {
	x0, y0 := clamp01(d.X), clamp01(d.Y)
	x1, y1 := clamp01(d.X+d.W), clamp01(d.Y+d.H)
	d.X, d.Y, d.W, d.H = x0, y0, x1-x0, y1-y0
	return d
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector is the interface for face detection backends
type Detector interface {
	// Detect finds faces in a JPEG frame.
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Local path to the ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	NMSThresh        float64 // Non-maximum suppression threshold
	InputWidth       int     // Initial model input width
	InputHeight      int     // Initial model input height

	// MinFaceSize drops faces narrower than this fraction of the frame.
	MinFaceSize float64
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/" + ModelFile,
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
		MinFaceSize:      0.08,
	}
}

// SelectBest picks the best face from multiple detections.
// Score: confidence * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		rel := 0.0
		if maxArea > 0 {
			rel = dets[i].Area() / maxArea
		}
		score := dets[i].Confidence*0.7 + rel*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}

// Func adapts a plain function to the Detector interface.
type Func func(jpeg []byte) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(jpeg []byte) ([]Detection, error) {
	return f(jpeg)
}

// Close is a no-op.
func (f Func) Close() error {
	return nil
}
