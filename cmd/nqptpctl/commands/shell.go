package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"identity [--interface <name>]", "Derive the local clock identity"},
	{"eui64 <mac>", "Convert a MAC address to a clock identity"},
	{"dump <hex ...>", "Format a frame the way the daemon logs it"},
	{"capture [--count <n>]", "Dump frames received on the PTP ports (Linux, root)"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive nqptpctl shell",
		Long:  "Launches a simple REPL that accepts nqptpctl subcommands. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

// runShell reads one command per line from in until EOF or exit. Each line
// runs on a fresh command tree so flag values do not leak between lines.
func runShell(in io.Reader, out, errOut io.Writer) error {
	printShellBanner(out)
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "nqptpctl> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "exit" || line == "quit":
			return nil
		case line == "help" || line == "?":
			printShellHelp(out)
		case line == "shell":
			fmt.Fprintln(errOut, "Error: already in the shell")
		case line != "":
			format := outputFormat
			root := newRootCmd()
			// Keep the format the shell was started with as the default.
			_ = root.PersistentFlags().Set("format", format)
			root.SetArgs(strings.Fields(line))
			root.SetOut(out)
			root.SetErr(errOut)

			if err := root.Execute(); err != nil {
				fmt.Fprintln(errOut, "Error:", err)
			}
			outputFormat = format
		}

		fmt.Fprint(out, "nqptpctl> ")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	return nil
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner(w io.Writer) {
	fmt.Fprintln(w, "nqptp interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Fprintln(w)
}

// printShellHelp prints a formatted list of available shell commands.
func printShellHelp(w io.Writer) {
	fmt.Fprintln(w, "Available commands:")
	fmt.Fprintln(w)

	for _, cmd := range shellCommands {
		fmt.Fprintf(w, "  %-32s %s\n", cmd.name, cmd.desc)
	}

	fmt.Fprintln(w)
}
