package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-faceauth/internal/httpc"
)

// Client calls the face login and signup endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new face auth client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
		logger:  logger.With("component", "authapi.client"),
	}, nil
}

// BaseURL returns the endpoint root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoginFace authenticates an existing user from a base64-encoded still.
func (c *Client) LoginFace(ctx context.Context, imageBase64 string) (*Result, error) {
	if imageBase64 == "" {
		return nil, ErrNoImage
	}
	return c.call(ctx, PathLoginFace, loginRequest{ImageBase64: imageBase64}, "Face login failed")
}

// SignupFace registers a new user. customFields is sent only when non-empty.
func (c *Client) SignupFace(ctx context.Context, imageBase64 string, customFields map[string]any) (*Result, error) {
	if imageBase64 == "" {
		return nil, ErrNoImage
	}
	body := signupRequest{ImageBase64: imageBase64}
	if len(customFields) > 0 {
		body.CustomFields = customFields
	}
	return c.call(ctx, PathSignupFace, body, "Face signup failed")
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) call(ctx context.Context, path string, payload any, generic string) (*Result, error) {
	start := time.Now()

	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, &TransportError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseError(resp, path, generic)
		c.logger.Warn("face auth rejected",
			"endpoint", path,
			"status", resp.StatusCode,
			"detail", apiErr.Message,
		)
		return nil, apiErr
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransportError{Endpoint: path, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("face auth ok",
		"endpoint", path,
		"user_id", result.UserID,
		"is_new_user", result.IsNewUser,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	return c.http.Do(req)
}

// parseError reads a non-2xx body and extracts its detail message.
func parseError(resp *http.Response, path, generic string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := generic
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil {
		if detail := detailMessage(errResp.Detail); detail != "" {
			message = detail
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Endpoint:   path,
	}
}

// detailMessage flattens a detail value. Plain strings are used as-is;
// validation error lists contribute their first "msg".
func detailMessage(detail any) string {
	switch d := detail.(type) {
	case string:
		return d
	case []any:
		if len(d) == 0 {
			return ""
		}
		if item, ok := d[0].(map[string]any); ok {
			if msg, ok := item["msg"].(string); ok {
				return msg
			}
		}
	}
	return ""
}
