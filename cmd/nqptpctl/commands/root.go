package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// outputFormat controls the output format for all commands (text, json, yaml).
var outputFormat string

// newRootCmd builds the top-level cobra command for nqptpctl.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nqptpctl",
		Short: "CLI for the nqptp network bootstrap",
		Long:  "nqptpctl derives the local PTP clock identity, formats frame dumps and captures PTP traffic.",
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&outputFormat, "format", formatText,
		"output format: text, json, yaml")

	root.AddCommand(identityCmd())
	root.AddCommand(eui64Cmd())
	root.AddCommand(dumpCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(shellCmd())
	addPlatformCommands(root)

	return root
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
