package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// newRootCommand builds the command tree. Running the binary without a
// subcommand starts the server.
func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	serve := newServeCommand(flags)

	root := &cobra.Command{
		Use:   "eventhub",
		Short: "EventHub web frontend",
		Long: `EventHub serves the public event pages, the organizer interest form and
the sign-in flows for both account kinds:

- End users authenticate against the hosted identity provider (GoTrue API)
- Organizers authenticate against the legacy REST backend
- The /dashboard area is gated on the session cookie both flows share`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve.RunE(cmd, args)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (optional, environment variables take precedence)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (json, console) (default: json)")

	// The root command runs serve directly, so it accepts serve's flags too.
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve)
	root.AddCommand(newVersionCommand())
	root.AddCommand(newHealthcheckCommand())
	return root
}

// Execute runs the command tree. It is called once by main.main().
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
