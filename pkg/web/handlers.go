package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-faceauth/pkg/authapi"
	"github.com/teslashibe/go-faceauth/pkg/faceauth"
	"github.com/teslashibe/go-faceauth/pkg/hub"
)

// SignupRequest is the request body for /api/signup
type SignupRequest struct {
	CustomFields map[string]any `json:"custom_fields"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// HubHealth describes one websocket feed.
type HubHealth struct {
	Running bool `json:"running"`
	Clients int  `json:"clients"`
}

// HealthResponse is the response body for /api/health
type HealthResponse struct {
	Status     string    `json:"status"`
	Controller bool      `json:"controller"`
	StatusFeed HubHealth `json:"status_feed"`
	CameraFeed HubHealth `json:"camera_feed"`
}

func hubHealth(h *hub.Hub) HubHealth {
	return HubHealth{Running: h.IsRunning(), Clients: h.ClientCount()}
}

// handleHealth reports whether the feeds are being served. It answers 503
// until Start has the hubs running.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:     "ok",
		Controller: s.controller() != nil,
		StatusFeed: hubHealth(s.statusHub),
		CameraFeed: hubHealth(s.cameraHub),
	}
	if !resp.StatusFeed.Running || !resp.CameraFeed.Running {
		resp.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

// handleStatus returns the coordinator state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Coordinator not configured")
	}
	return c.JSON(ctrl.State())
}

// handleSnapshot returns the current frame of the attached stream
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	stream := s.attached()
	if stream == nil {
		return errorJSON(c, fiber.StatusNotFound, "Camera not running")
	}
	frame, err := stream.CaptureJPEG()
	if err != nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error())
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(frame)
}

// handleStart starts the camera and detector
func (s *Server) handleStart(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Coordinator not configured")
	}
	if err := ctrl.Start(c.UserContext()); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(ctrl.State())
}

// handleStop stops the camera
func (s *Server) handleStop(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Coordinator not configured")
	}
	ctrl.Stop()
	return c.JSON(ctrl.State())
}

// handleLogin waits for a face and logs it in
func (s *Server) handleLogin(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Coordinator not configured")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.AuthTimeout)
	defer cancel()

	res, err := ctrl.LoginWithFace(ctx)
	if err != nil {
		return s.authError(c, err)
	}
	return c.JSON(res)
}

// handleSignup waits for a face and registers it
func (s *Server) handleSignup(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "Coordinator not configured")
	}

	var req SignupRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
		}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.AuthTimeout)
	defer cancel()

	res, err := ctrl.SignupWithFace(ctx, req.CustomFields)
	if err != nil {
		return s.authError(c, err)
	}
	return c.JSON(res)
}

// authError maps a settled request's error to an HTTP status.
func (s *Server) authError(c *fiber.Ctx, err error) error {
	if apiErr, ok := authapi.AsAPIError(err); ok {
		status := apiErr.StatusCode
		if apiErr.IsServerError() {
			status = fiber.StatusBadGateway
		}
		return errorJSON(c, status, apiErr.Message)
	}

	var capErr *faceauth.CaptureError
	switch {
	case errors.Is(err, faceauth.ErrSuperseded):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, faceauth.ErrClosed):
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, faceauth.ErrResultPending):
		return errorJSON(c, fiber.StatusGatewayTimeout, "Face captured; auth service did not answer before timeout")
	case errors.Is(err, context.DeadlineExceeded):
		return errorJSON(c, fiber.StatusRequestTimeout, "No face captured before timeout")
	case errors.As(err, &capErr):
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	s.logger.Warn("auth request failed", "error", err)
	return errorJSON(c, fiber.StatusBadGateway, err.Error())
}

// handleStatusWS streams state snapshots, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	// The write pump has not started yet, so this is the only writer.
	if ctrl := s.controller(); ctrl != nil {
		c.WriteJSON(ctrl.State())
	}
	hub.NewClient(s.statusHub, c).Run()
}

// handleCameraWS streams JPEG preview frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
