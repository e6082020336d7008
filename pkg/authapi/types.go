// Package authapi is a client for the remote face authentication service.
package authapi

// Endpoint paths, relative to the base URL.
const (
	PathLoginFace  = "/auth/login-face"
	PathSignupFace = "/auth/signup-face"
)

// Result is the identity record returned on a successful login or signup.
// It is passed through to callers as the service sent it.
type Result struct {
	UserID       int            `json:"user_id"`
	IsNewUser    bool           `json:"is_new_user"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// loginRequest is the JSON body of a login call.
type loginRequest struct {
	ImageBase64 string `json:"image_base64"`
}

// signupRequest is the JSON body of a signup call.
type signupRequest struct {
	ImageBase64  string         `json:"image_base64"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// errorResponse is the shape of a non-2xx body.
type errorResponse struct {
	Detail any `json:"detail"`
}
