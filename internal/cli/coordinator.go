package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/teslashibe/go-faceauth/internal/log"
	"github.com/teslashibe/go-faceauth/pkg/audit"
	"github.com/teslashibe/go-faceauth/pkg/camera"
	"github.com/teslashibe/go-faceauth/pkg/detection"
	"github.com/teslashibe/go-faceauth/pkg/faceauth"
)

// session is a coordinator plus the resources built for it.
type session struct {
	coord *faceauth.Coordinator
	store *audit.Store
}

func (s *session) Close() {
	if err := s.coord.Close(); err != nil {
		log.Warn("close coordinator", "error", err)
	}
	if s.store != nil {
		s.store.Close(context.Background())
	}
}

func (o *options) cameraConfig() (camera.Config, error) {
	cfg := camera.GetPreset(o.preset)
	if cfg == nil {
		return camera.Config{}, fmt.Errorf("unknown camera preset %q (available: %s)",
			o.preset, strings.Join(camera.PresetNames(), ", "))
	}
	return *cfg, nil
}

func (o *options) fetchOptions() detection.FetchOptions {
	return detection.FetchOptions{
		CacheDir: o.cfg.ModelCache,
		Progress: o.err,
		Logger:   log.L(),
	}
}

// newSession wires camera, detector, auth client and optional audit store
// into a coordinator rendering to target.
func (o *options) newSession(ctx context.Context, target faceauth.Surface, extra ...faceauth.Option) (*session, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	camCfg, err := o.cameraConfig()
	if err != nil {
		return nil, err
	}
	src, err := camera.NewSource(o.cfg.Camera, camCfg, log.L())
	if err != nil {
		return nil, err
	}

	opts := []faceauth.Option{
		faceauth.WithSource(src),
		faceauth.WithLogger(log.L()),
		faceauth.WithDetectorLoader(func(ctx context.Context, modelPath string) (detection.Detector, error) {
			d, err := detection.Load(ctx, modelPath, detection.DefaultConfig(), o.fetchOptions())
			if err != nil {
				return nil, err
			}
			return d, nil
		}),
	}

	s := &session{}
	if o.cfg.AuditDB != "" {
		store, err := audit.New(ctx, o.cfg.AuditDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to audit database: %w", err)
		}
		s.store = store
		opts = append(opts, faceauth.WithRecorder(store))
	}

	coord, err := faceauth.New(faceauth.Config{
		APIKey:       o.cfg.APIKey,
		Target:       target,
		BaseURL:      o.cfg.BaseURL,
		ModelPath:    o.cfg.ModelPath,
		PollInterval: o.cfg.PollInterval,
	}, append(opts, extra...)...)
	if err != nil {
		if s.store != nil {
			s.store.Close(context.Background())
		}
		return nil, err
	}
	s.coord = coord
	return s, nil
}
