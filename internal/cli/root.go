// Package cli implements the taskctl operator commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Martyparty1988/Martyai/internal/app"
	"github.com/Martyparty1988/Martyai/internal/config"
	"github.com/Martyparty1988/Martyai/internal/logging"
)

type rootOptions struct {
	configPath string
	dataDir    string
	verbose    bool
}

// NewRootCmd returns the taskctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "taskctl",
		Short: "taskctl - manage villa housekeeping tasks from the command line",
		Long: `taskctl works directly on the housekeeping database. It creates and
completes tasks, runs calendar syncs and inspects the offline sync queue.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "/data/config.yaml", "Path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data", "", "Data directory (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	cmd.AddCommand(newTaskCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newQueueCmd(opts))
	cmd.AddCommand(newResetCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	return cmd
}

// withApp loads the configuration, assembles the services and runs fn.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	log := logging.New(cmd.ErrOrStderr(), "text", level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
