// Package cli implements the faceauth command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceauth/internal/config"
	"github.com/teslashibe/go-faceauth/internal/log"
)

// Version is the application version.
const Version = "0.1.0"

// options is shared by every subcommand. Flags default to the environment.
type options struct {
	cfg    config.Config
	preset string

	out io.Writer
	err io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	o := &options{cfg: config.Load(), out: os.Stdout, err: os.Stderr}

	root := &cobra.Command{
		Use:           "faceauth",
		Short:         "Face login and signup from a live camera",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.out = cmd.OutOrStdout()
			o.err = cmd.ErrOrStderr()
			log.Init(o.cfg.LogLevel)
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	f := root.PersistentFlags()
	f.StringVar(&o.cfg.APIKey, "api-key", o.cfg.APIKey, "Face auth API key (env FACEAUTH_API_KEY)")
	f.StringVar(&o.cfg.BaseURL, "base-url", o.cfg.BaseURL, "Face auth service base URL")
	f.StringVar(&o.cfg.ModelPath, "model-path", o.cfg.ModelPath, "URL or directory holding the YuNet model")
	f.StringVar(&o.cfg.ModelCache, "model-cache", o.cfg.ModelCache, "Directory for downloaded models")
	f.StringVar(&o.cfg.Camera, "camera", o.cfg.Camera, "Camera device index, file, or ws:// signalling URL")
	f.StringVar(&o.preset, "preset", "default", "Camera preset (default, 480p, 720p, low-cpu)")
	f.DurationVar(&o.cfg.PollInterval, "poll-interval", o.cfg.PollInterval, "Face detection interval")
	f.StringVar(&o.cfg.LogLevel, "log-level", o.cfg.LogLevel, "Log level (debug, info, warn, error)")
	f.StringVar(&o.cfg.AuditDB, "audit-db", o.cfg.AuditDB, "PostgreSQL connection string for the audit trail")

	root.AddCommand(
		newServeCmd(o),
		newLoginCmd(o),
		newSignupCmd(o),
		newModelsCmd(o),
		newHistoryCmd(o),
	)
	return root
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
