package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceauth/pkg/detection"
)

func newModelsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage face detection model assets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "fetch",
		Short: "Download the detection model into the cache and print its path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := detection.FetchModel(cmd.Context(), o.cfg.ModelPath, o.fetchOptions())
			if err != nil {
				return err
			}
			fmt.Fprintln(o.out, path)
			return nil
		},
	})
	return cmd
}
