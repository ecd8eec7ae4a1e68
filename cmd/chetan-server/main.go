// Command chetan-server is the composition root: it wires every package
// under internal/ together (store, registry, session manager, command
// router, state-snapshot ingestor, audio pipeline, heartbeat reaper, HTTP
// API) and runs the serve command until an interrupt or SIGTERM arrives.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	serve := newServeCommand()
	root := &cobra.Command{
		Use:   "chetan-server",
		Short: "Coordination server for voice-controlled robotics devices",
		// With no subcommand, the root runs serve (with serve's flags).
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve)
	root.AddCommand(newDBToolCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
			return nil
		},
	}
}
