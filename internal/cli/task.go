package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Martyparty1988/Martyai/internal/app"
	"github.com/Martyparty1988/Martyai/internal/storage/models"
)

func newTaskCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, complete and list tasks",
	}
	cmd.AddCommand(newTaskAddCmd(opts))
	cmd.AddCommand(newTaskDoneCmd(opts))
	cmd.AddCommand(newTaskListCmd(opts))
	cmd.AddCommand(newTaskShowCmd(opts))
	return cmd
}

func newTaskAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <property> <title>...",
		Short: "Add a manual task for today",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				task, err := a.Commands.CreateTask(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", task.ID)
				printTask(cmd.OutOrStdout(), *task)
				return nil
			})
		},
	}
}

func newTaskDoneCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id or title>...",
		Short: "Mark a task done by ID or by part of its title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				task, err := a.Commands.MarkDone(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Done: %s (%s)\n", task.Title, task.ID)
				return nil
			})
		},
	}
}

func newTaskListCmd(opts *rootOptions) *cobra.Command {
	var (
		property string
		date     string
		open     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var (
					tasks []models.Task
					err   error
				)
				switch {
				case property != "" && date != "":
					tasks, err = a.Tasks.ListByPropertyAndDate(ctx, property, date)
				case property != "":
					tasks, err = a.Tasks.ListByProperty(ctx, property)
				case date != "":
					tasks, err = a.Tasks.ListByDate(ctx, date)
				default:
					tasks, err = a.Tasks.List(ctx)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				n := 0
				for _, t := range tasks {
					if open && t.Completed {
						continue
					}
					printTask(out, t)
					n++
				}
				if n == 0 {
					fmt.Fprintln(out, "No tasks found.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&property, "property", "", "Only tasks of this property")
	cmd.Flags().StringVar(&date, "date", "", "Only tasks on this day (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&open, "open", false, "Hide completed tasks")
	return cmd
}

func newTaskShowCmd(opts *rootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "show <property>",
		Short: "Summarize a property's tasks and upcoming stays",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				summary, err := a.Commands.QueryTasks(ctx, args[0], date)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s on %s: %d open of %d tasks\n", summary.Property.Name, summary.Date, summary.Open, len(summary.Tasks))
				for _, t := range summary.Tasks {
					printTask(out, t)
				}
				if len(summary.Upcoming) > 0 {
					fmt.Fprintln(out, "Upcoming stays:")
					for _, r := range summary.Upcoming {
						fmt.Fprintf(out, "  %s  %s - %s  (%d nights)\n", r.GuestName,
							r.StartDate.Format(models.DateLayout), r.EndDate.Format(models.DateLayout), r.Nights())
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to summarize (YYYY-MM-DD, default today)")
	return cmd
}

func printTask(w io.Writer, t models.Task) {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	fmt.Fprintf(w, "[%s] %s  %-12s %-6s %s  (%s)\n", mark, t.Date, t.Property, t.Priority, t.Title, t.ID)
	for _, s := range t.Subtasks {
		sub := " "
		if s.Completed {
			sub = "x"
		}
		fmt.Fprintf(w, "      [%s] %s\n", sub, s.Text)
	}
}
