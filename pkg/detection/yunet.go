package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// ErrDetectorClosed is returned by Detect after Close.
var ErrDetectorClosed = errors.New("detection: detector closed")

// yunetTopK bounds candidates kept before NMS.
const yunetTopK = 5000

// YuNetDetector runs OpenCV's FaceDetectorYN. One inference at a time.
type YuNetDetector struct {
	mu     sync.Mutex
	yn     gocv.FaceDetectorYN
	out    gocv.Mat
	cfg    Config
	size   image.Point
	closed bool
}

// NewYuNet creates a YuNet face detector from a local ONNX file.
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection: model file: %w", err)
	}
	if cfg.NMSThresh <= 0 {
		cfg.NMSThresh = DefaultConfig().NMSThresh
	}

	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	yn := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		size,
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		yunetTopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		yn:   yn,
		out:  gocv.NewMat(),
		cfg:  cfg,
		size: size,
	}, nil
}

// Detect decodes a JPEG frame and returns the faces in it with
// normalized, clamped boxes. Faces narrower than MinFaceSize are dropped.
func (d *YuNetDetector) Detect(jpeg []byte) ([]Detection, error) {
	if len(jpeg) == 0 {
		return nil, errors.New("detection: empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("detection: decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, errors.New("detection: frame did not decode")
	}

	// Only reconfigure the network when the camera geometry changes.
	if sz := image.Pt(img.Cols(), img.Rows()); sz != d.size {
		d.yn.SetInputSize(sz)
		d.size = sz
	}

	d.yn.Detect(img, &d.out)

	fw, fh := float64(img.Cols()), float64(img.Rows())
	var dets []Detection
	for r := 0; r < d.out.Rows(); r++ {
		// Columns: x, y, w, h, five landmark pairs, score.
		det := Detection{
			X:          float64(d.out.GetFloatAt(r, 0)) / fw,
			Y:          float64(d.out.GetFloatAt(r, 1)) / fh,
			W:          float64(d.out.GetFloatAt(r, 2)) / fw,
			H:          float64(d.out.GetFloatAt(r, 3)) / fh,
			Confidence: float64(d.out.GetFloatAt(r, 14)),
		}.clamped()
		if det.W < d.cfg.MinFaceSize {
			continue
		}
		dets = append(dets, det)
	}
	return dets, nil
}

// Close releases the network. Safe to call twice.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.yn.Close()
	return d.out.Close()
}
