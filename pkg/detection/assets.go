package detection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/teslashibe/go-faceauth/internal/httpc"
)

// Model asset names and the public default location.
const (
	ModelFile        = "face_detection_yunet_2023mar.onnx"
	DefaultModelBase = "https://github.com/opencv/opencv_zoo/raw/main/models/face_detection_yunet"
)

// FetchOptions control where and how model assets are retrieved.
type FetchOptions struct {
	// CacheDir receives downloaded models. Defaults to os.TempDir()/faceauth-models.
	CacheDir string

	// Progress, when set, receives a download progress bar.
	Progress io.Writer

	// Client overrides the shared HTTP client.
	Client *http.Client

	Logger *slog.Logger
}

// FetchModel resolves the YuNet model under base and returns a local path.
// base may be an http(s) URL, a directory, or the .onnx file itself.
// Remote models are downloaded once into the cache directory.
func FetchModel(ctx context.Context, base string, opts FetchOptions) (string, error) {
	if base == "" {
		base = DefaultModelBase
	}

	if !isRemote(base) {
		path := base
		if !strings.HasSuffix(path, ".onnx") {
			path = filepath.Join(base, ModelFile)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("detection: model not available: %w", err)
		}
		return path, nil
	}

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "faceauth-models")
	}
	dest := filepath.Join(cacheDir, cacheKey(base), ModelFile)
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		return dest, nil
	}

	if err := download(ctx, strings.TrimSuffix(base, "/")+"/"+ModelFile, dest, opts); err != nil {
		return "", fmt.Errorf("detection: fetch model: %w", err)
	}
	return dest, nil
}

// Load fetches the model under base and builds a YuNet detector from it.
func Load(ctx context.Context, base string, cfg Config, opts FetchOptions) (*YuNetDetector, error) {
	path, err := FetchModel(ctx, base, opts)
	if err != nil {
		return nil, err
	}
	cfg.ModelPath = path
	return NewYuNet(cfg)
}

func download(ctx context.Context, url, dest string, opts FetchOptions) error {
	client := opts.Client
	if client == nil {
		client = httpc.Client
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".model-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if opts.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription("Downloading face model"),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(tmp, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("GET %s: empty body", url)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	logger.Info("face model downloaded", "url", url, "path", dest, "bytes", n)
	return nil
}

func isRemote(base string) bool {
	return strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://")
}

// cacheKey separates models fetched from different bases.
func cacheKey(base string) string {
	sum := sha256.Sum256([]byte(strings.TrimSuffix(base, "/")))
	return hex.EncodeToString(sum[:6])
}
