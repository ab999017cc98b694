package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Martyparty1988/Martyai/internal/app"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

func newQueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the offline sync queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending changes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Queue.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Queue is empty.")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%4d  %s  %-11s %-6s %s", e.Seq, e.Timestamp.Format("2006-01-02 15:04:05"), e.EntityType, e.Action, e.EntityID)
					if e.LastError != nil {
						fmt.Fprintf(out, "  (%d attempts, last error: %s)", e.Attempts, *e.LastError)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Submit every pending change to the remote endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				// The CLI forces the online state; the remote decides per entry.
				a.Monitor.Set(true)
				result, err := a.Coordinator.Drain(ctx)
				if err != nil {
					return err
				}
				printDrain(cmd, result)
				return nil
			})
		},
	})
	return cmd
}

func printDrain(cmd *cobra.Command, r models.DrainResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d of %d, failed %d, remaining %d\n", r.Submitted, r.Attempted, r.Failed, r.Remaining)
}
