// Package cmd implements the thiscovery-surveys command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/THIS-Institute/thiscovery-surveys/internal/bootstrap"
	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "thiscovery-surveys",
		Short: "Personal survey link allocation service",
		Long: `Allocates single-use survey distribution links to participants and keeps
each (account, survey) pool topped up from the survey platform.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		config.GetConfigPath("config.yml"),
		"config file",
	)
	root.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug mode")

	root.AddCommand(
		newServeCommand(),
		newWorkerCommand(),
		newMigrateCommand(),
		newMintCommand(),
		newPurgeCommand(),
		newPoolsCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// withApp bootstraps the application for the duration of fn.
func withApp(cmd *cobra.Command, fn func(app *bootstrap.App) error) error {
	app, err := bootstrap.New(cmd.Context(), cfgFile, Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()
	return fn(app)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "thiscovery-surveys version %s\n", Version)
		},
	}
}
