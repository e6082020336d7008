package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceauth/internal/log"
	"github.com/teslashibe/go-faceauth/pkg/authapi"
	"github.com/teslashibe/go-faceauth/pkg/faceauth"
)

const defaultAuthTimeout = 60 * time.Second

func newLoginCmd(o *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with the face in front of the camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runCapture(cmd.Context(), timeout, func(ctx context.Context, c *faceauth.Coordinator) (*authapi.Result, error) {
				return c.LoginWithFace(ctx)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultAuthTimeout, "How long to wait for a face")
	return cmd
}

func newSignupCmd(o *options) *cobra.Command {
	var (
		timeout time.Duration
		fields  []string
	)

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register the face in front of the camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			custom, err := parseFields(fields)
			if err != nil {
				return err
			}
			return o.runCapture(cmd.Context(), timeout, func(ctx context.Context, c *faceauth.Coordinator) (*authapi.Result, error) {
				return c.SignupWithFace(ctx, custom)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultAuthTimeout, "How long to wait for a face")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "Custom field as key=value (repeatable; JSON values are decoded)")
	return cmd
}

// runCapture starts a headless coordinator, runs one request and prints
// the result as JSON.
func (o *options) runCapture(ctx context.Context, timeout time.Duration,
	request func(context.Context, *faceauth.Coordinator) (*authapi.Result, error)) error {

	var lastFace bool
	sess, err := o.newSession(ctx, newHeadlessSurface(log.L()), faceauth.WithStateHandler(func(st faceauth.State) {
		if st.FaceDetected != lastFace {
			lastFace = st.FaceDetected
			if lastFace {
				fmt.Fprintln(o.err, "Face detected, capturing...")
			}
		}
	}))
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.coord.Start(ctx); err != nil {
		return err
	}
	defer sess.coord.Stop()

	fmt.Fprintln(o.err, "Look at the camera...")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := request(ctx, sess.coord)
	if err != nil {
		return timeoutError(err, timeout)
	}

	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// timeoutError tells apart a timeout with no face from one where the face
// was sent but the service never answered.
func timeoutError(err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, faceauth.ErrResultPending):
		return fmt.Errorf("face captured, but the auth service did not answer within %v", timeout)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("no face captured within %v", timeout)
	}
	return err
}

// parseFields turns key=value pairs into custom fields. Values that parse
// as JSON keep their type; anything else is a string.
func parseFields(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[key] = v
	}
	return fields, nil
}
