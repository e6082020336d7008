package cli

import (
	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceauth/internal/log"
	"github.com/teslashibe/go-faceauth/pkg/faceauth"
	"github.com/teslashibe/go-faceauth/pkg/web"
)

func newServeCmd(o *options) *cobra.Command {
	var (
		autostart bool
		accessLog bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := web.DefaultConfig()
			cfg.Listen = o.cfg.Listen
			cfg.AccessLog = accessLog
			cfg.Logger = log.L()
			srv := web.NewServer(cfg)

			sess, err := o.newSession(ctx, srv, faceauth.WithStateHandler(srv.PublishState))
			if err != nil {
				return err
			}
			defer sess.Close()
			srv.SetController(sess.coord)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			if autostart {
				// Failures are visible in /api/status; the server keeps running.
				if err := sess.coord.Start(ctx); err != nil {
					log.Warn("autostart failed", "error", err)
				}
			}

			select {
			case <-ctx.Done():
				log.Info("shutting down")
			case err := <-errCh:
				return err
			}

			sess.coord.Stop()
			return srv.Shutdown()
		},
	}
	cmd.Flags().StringVar(&o.cfg.Listen, "listen", o.cfg.Listen, "Dashboard listen address")
	cmd.Flags().BoolVar(&autostart, "autostart", true, "Start the camera immediately")
	cmd.Flags().BoolVar(&accessLog, "access-log", false, "Log every HTTP request")
	return cmd
}
