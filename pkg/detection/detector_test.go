package detection

import (
	"errors"
	"math"
	"testing"
)

func TestDetection_Center(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		expectX float64
		expectY float64
	}{
		{
			name:    "center of image",
			det:     Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			expectX: 0.5,
			expectY: 0.5,
		},
		{
			name:    "top left corner",
			det:     Detection{X: 0, Y: 0, W: 0.2, H: 0.2},
			expectX: 0.1,
			expectY: 0.1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if x != tc.expectX || y != tc.expectY {
				t.Errorf("Center: got (%.2f, %.2f), want (%.2f, %.2f)", x, y, tc.expectX, tc.expectY)
			}
		})
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name       string
		detections []Detection
		expectNil  bool
		expectIdx  int
	}{
		{
			name:       "empty list",
			detections: []Detection{},
			expectNil:  true,
		},
		{
			name: "single detection",
			detections: []Detection{
				{X: 0.4, Y: 0.4, W: 0.2, H: 0.2, Confidence: 0.9},
			},
			expectIdx: 0,
		},
		{
			name: "high confidence beats larger area",
			detections: []Detection{
				{X: 0.0, Y: 0.0, W: 0.4, H: 0.4, Confidence: 0.5},
				{X: 0.3, Y: 0.3, W: 0.2, H: 0.2, Confidence: 0.95},
			},
			expectIdx: 1,
		},
		{
			name: "similar confidence picks larger",
			detections: []Detection{
				{X: 0.0, Y: 0.0, W: 0.5, H: 0.5, Confidence: 0.8},
				{X: 0.3, Y: 0.3, W: 0.1, H: 0.1, Confidence: 0.8},
			},
			expectIdx: 0,
		},
		{
			name: "degenerate boxes",
			detections: []Detection{
				{Confidence: 0.6},
				{Confidence: 0.7},
			},
			expectIdx: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			best := SelectBest(tc.detections)
			if tc.expectNil {
				if best != nil {
					t.Errorf("SelectBest: expected nil, got %+v", best)
				}
				return
			}
			if best == nil {
				t.Fatal("SelectBest: expected non-nil, got nil")
			}
			if best != &tc.detections[tc.expectIdx] {
				t.Errorf("SelectBest: got %+v, want %+v", best, tc.detections[tc.expectIdx])
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}
	if cfg.MinFaceSize <= 0 || cfg.MinFaceSize >= 1 {
		t.Errorf("DefaultConfig: MinFaceSize should be 0-1, got %f", cfg.MinFaceSize)
	}
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		t.Errorf("DefaultConfig: input size should be positive, got %dx%d", cfg.InputWidth, cfg.InputHeight)
	}
}

func TestDetectionClamped(t *testing.T) {
	tests := []struct {
		name string
		in   Detection
		want Detection
	}{
		{"inside", Detection{X: 0.2, Y: 0.2, W: 0.3, H: 0.4}, Detection{X: 0.2, Y: 0.2, W: 0.3, H: 0.4}},
		{"off left", Detection{X: -0.1, Y: 0.2, W: 0.3, H: 0.4}, Detection{X: 0, Y: 0.2, W: 0.2, H: 0.4}},
		{"off bottom right", Detection{X: 0.8, Y: 0.9, W: 0.4, H: 0.2}, Detection{X: 0.8, Y: 0.9, W: 0.2, H: 0.1}},
	}

	const eps = 1e-9
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.clamped()
			if math.Abs(got.X-tt.want.X) > eps || math.Abs(got.Y-tt.want.Y) > eps ||
				math.Abs(got.W-tt.want.W) > eps || math.Abs(got.H-tt.want.H) > eps {
				t.Errorf("clamped() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFuncDetector(t *testing.T) {
	want := errors.New("boom")
	var d Detector = Func(func(jpeg []byte) ([]Detection, error) {
		if len(jpeg) == 0 {
			return nil, want
		}
		return []Detection{{Confidence: 1}}, nil
	})

	if _, err := d.Detect(nil); !errors.Is(err, want) {
		t.Errorf("expected wrapped error, got %v", err)
	}
	dets, err := d.Detect([]byte{1})
	if err != nil || len(dets) != 1 {
		t.Errorf("unexpected result %v, %v", dets, err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
