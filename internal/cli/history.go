package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceauth/pkg/audit"
)

func newHistoryCmd(o *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent face auth attempts from the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.cfg.AuditDB == "" {
				return errors.New("no audit database configured (set FACEAUTH_AUDIT_DB or --audit-db)")
			}

			store, err := audit.New(cmd.Context(), o.cfg.AuditDB)
			if err != nil {
				return fmt.Errorf("failed to connect to audit database: %w", err)
			}
			// The command context may already be cancelled by Ctrl+C.
			defer store.Close(context.Background())

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(o.out, "No attempts recorded.")
				return nil
			}
			printEntries(o, entries)

			total, failed, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(o, total, failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of attempts to show")
	return cmd
}

func printEntries(o *options, entries []audit.Entry) {
	w := tabwriter.NewWriter(o.out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tMODE\tUSER\tNEW\tLATENCY\tRESULT")
	fmt.Fprintln(w, "----\t----\t----\t---\t-------\t------")
	for _, e := range entries {
		user := "-"
		if e.UserID != nil {
			user = strconv.Itoa(*e.UserID)
		}
		result := "ok"
		if !e.Succeeded() {
			result = e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Mode, user, e.IsNewUser, e.Latency, result)
	}
	w.Flush()
}

func printStats(o *options, total, failed int) {
	rate := 0.0
	if total > 0 {
		rate = float64(total-failed) / float64(total) * 100
	}
	fmt.Fprintf(o.out, "\n%d attempts recorded, %d failed (%.1f%% succeeded)\n", total, failed, rate)
}
