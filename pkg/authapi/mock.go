package authapi

import (
	"context"
	"sync"
)

// Mock implements the login/signup surface for tests.
type Mock struct {
	// LoginFunc is called when LoginFace is invoked.
	LoginFunc func(ctx context.Context, imageBase64 string) (*Result, error)

	// SignupFunc is called when SignupFace is invoked.
	SignupFunc func(ctx context.Context, imageBase64 string, customFields map[string]any) (*Result, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method       string
	ImageBase64  string
	CustomFields map[string]any
}

// NewMock creates a mock that logs everyone in as user 1.
func NewMock() *Mock {
	return &Mock{
		LoginFunc: func(ctx context.Context, imageBase64 string) (*Result, error) {
			return &Result{UserID: 1}, nil
		},
		SignupFunc: func(ctx context.Context, imageBase64 string, customFields map[string]any) (*Result, error) {
			return &Result{UserID: 1, IsNewUser: true, CustomFields: customFields}, nil
		},
	}
}

// LoginFace calls LoginFunc and records the call.
func (m *Mock) LoginFace(ctx context.Context, imageBase64 string) (*Result, error) {
	m.record(MockCall{Method: "LoginFace", ImageBase64: imageBase64})
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, imageBase64)
	}
	return nil, &APIError{StatusCode: 501, Message: "Face login failed", Endpoint: PathLoginFace}
}

// SignupFace calls SignupFunc and records the call.
func (m *Mock) SignupFace(ctx context.Context, imageBase64 string, customFields map[string]any) (*Result, error) {
	m.record(MockCall{Method: "SignupFace", ImageBase64: imageBase64, CustomFields: customFields})
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, imageBase64, customFields)
	}
	return nil, &APIError{StatusCode: 501, Message: "Face signup failed", Endpoint: PathSignupFace}
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Mock) record(call MockCall) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}
