package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(
		WithBaseURL(server.URL+"/"),
		WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(WithBaseURL("http://localhost"))
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNewClientDefaultsBaseURL(t *testing.T) {
	client, err := NewClient(WithAPIKey("k"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), DefaultBaseURL)
	}
}

func TestLoginFace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathLoginFace {
			t.Errorf("Expected %s, got %s", PathLoginFace, r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("Expected X-API-KEY test-key, got %q", got)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON content type, got %q", ct)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["image_base64"] != "aGVsbG8=" {
			t.Errorf("unexpected image_base64: %v", body["image_base64"])
		}
		if _, ok := body["custom_fields"]; ok {
			t.Error("login must not send custom_fields")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id": 7, "is_new_user": false}`))
	})

	res, err := client.LoginFace(context.Background(), "aGVsbG8=")
	if err != nil {
		t.Fatalf("LoginFace failed: %v", err)
	}
	if res.UserID != 7 || res.IsNewUser {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestSignupFaceSendsCustomFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathSignupFace {
			t.Errorf("Expected %s, got %s", PathSignupFace, r.URL.Path)
		}
		var body signupRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.CustomFields["plan"] != "pro" {
			t.Errorf("custom_fields not forwarded: %+v", body.CustomFields)
		}
		w.Write([]byte(`{"user_id": 42, "is_new_user": true, "custom_fields": {"plan": "pro"}}`))
	})

	res, err := client.SignupFace(context.Background(), "aW1n", map[string]any{"plan": "pro"})
	if err != nil {
		t.Fatalf("SignupFace failed: %v", err)
	}
	if res.UserID != 42 || !res.IsNewUser {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.CustomFields["plan"] != "pro" {
		t.Errorf("custom_fields not returned verbatim: %+v", res.CustomFields)
	}
}

func TestSignupFaceOmitsEmptyCustomFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["custom_fields"]; ok {
			t.Error("empty custom_fields should be omitted")
		}
		w.Write([]byte(`{"user_id": 1, "is_new_user": true}`))
	})

	if _, err := client.SignupFace(context.Background(), "aW1n", map[string]any{}); err != nil {
		t.Fatalf("SignupFace failed: %v", err)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		call       func(c *Client) error
		wantMsg    string
		wantServer bool
	}{
		{
			name:   "detail string",
			status: http.StatusBadRequest,
			body:   `{"detail": "duplicate face"}`,
			call: func(c *Client) error {
				_, err := c.LoginFace(context.Background(), "eA==")
				return err
			},
			wantMsg: "duplicate face",
		},
		{
			name:   "validation list",
			status: http.StatusUnprocessableEntity,
			body:   `{"detail": [{"loc": ["body", "image_base64"], "msg": "field required"}]}`,
			call: func(c *Client) error {
				_, err := c.SignupFace(context.Background(), "eA==", nil)
				return err
			},
			wantMsg: "field required",
		},
		{
			name:   "no detail login",
			status: http.StatusInternalServerError,
			body:   `{}`,
			call: func(c *Client) error {
				_, err := c.LoginFace(context.Background(), "eA==")
				return err
			},
			wantMsg:    "Face login failed",
			wantServer: true,
		},
		{
			name:   "non json signup",
			status: http.StatusBadGateway,
			body:   `<html>bad gateway</html>`,
			call: func(c *Client) error {
				_, err := c.SignupFace(context.Background(), "eA==", nil)
				return err
			},
			wantMsg:    "Face signup failed",
			wantServer: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			err := tt.call(client)
			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("expected *APIError, got %T (%v)", err, err)
			}
			if apiErr.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", apiErr.Error(), tt.wantMsg)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.IsServerError() != tt.wantServer {
				t.Errorf("IsServerError() = %v, want %v", apiErr.IsServerError(), tt.wantServer)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(WithBaseURL(url), WithAPIKey("k"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.LoginFace(context.Background(), "eA==")
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TransportError, got %T (%v)", err, err)
	}
	if tErr.Endpoint != PathLoginFace {
		t.Errorf("Endpoint = %q", tErr.Endpoint)
	}
}

func TestContextCancelsCall(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.LoginFace(ctx, "eA==")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEmptyImageRejected(t *testing.T) {
	client, _ := NewClient(WithAPIKey("k"))
	if _, err := client.LoginFace(context.Background(), ""); !errors.Is(err, ErrNoImage) {
		t.Errorf("LoginFace: expected ErrNoImage, got %v", err)
	}
	if _, err := client.SignupFace(context.Background(), "", nil); !errors.Is(err, ErrNoImage) {
		t.Errorf("SignupFace: expected ErrNoImage, got %v", err)
	}
}

func TestMockRecordsCalls(t *testing.T) {
	m := NewMock()
	m.LoginFace(context.Background(), "a")
	m.SignupFace(context.Background(), "b", map[string]any{"x": 1})

	if m.CallCount("LoginFace") != 1 || m.CallCount("SignupFace") != 1 {
		t.Errorf("unexpected call counts: %+v", m.Calls())
	}
	if m.Calls()[1].CustomFields["x"] != 1 {
		t.Errorf("custom fields not recorded")
	}
}
