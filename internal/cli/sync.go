package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Martyparty1988/Martyai/internal/app"
	"github.com/Martyparty1988/Martyai/internal/calendar"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch every calendar feed and derive tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Coordinator.RunCycle(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, f := range result.Feeds {
					switch {
					case f.Error != nil:
						fmt.Fprintf(out, "%-16s error: %s\n", f.Property, f.ErrorMessage)
					case f.FromCache:
						fmt.Fprintf(out, "%-16s %d reservations (cached)\n", f.Property, f.Upserted)
					default:
						fmt.Fprintf(out, "%-16s %d reservations\n", f.Property, f.Upserted)
					}
				}
				if result.DoubleBookings > 0 {
					fmt.Fprintf(out, "Warning: %d double bookings\n", result.DoubleBookings)
				}
				fmt.Fprintf(out, "Created %d tasks (%d recurring), skipped %d in %s\n",
					result.TasksCreated, result.RecurringCreated, result.TasksSkipped,
					result.SyncedAt.Sub(result.StartedAt).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var property, format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write tasks to stdout as iCalendar or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "ics" && format != "csv" {
				return fmt.Errorf("unknown format %q: use ics or csv", format)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var (
					tasks []models.Task
					err   error
				)
				name := "Housekeeping"
				if property != "" {
					tasks, err = a.Tasks.ListByProperty(ctx, property)
					name += " " + property
				} else {
					tasks, err = a.Tasks.List(ctx)
				}
				if err != nil {
					return err
				}

				if format == "csv" {
					names := make(map[string]string, len(a.Config.Properties))
					for _, p := range a.Config.Properties {
						names[p.Key] = p.Name
					}
					return calendar.ExportTasksCSV(cmd.OutOrStdout(), tasks, names)
				}

				body, err := calendar.ExportTasks(tasks, name, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), body)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&property, "property", "", "Only tasks of this property")
	cmd.Flags().StringVar(&format, "format", "ics", "Output format: ics, csv")
	return cmd
}
