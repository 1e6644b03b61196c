//go:build !linux

package commands

import "github.com/spf13/cobra"

// addPlatformCommands registers nothing: capture needs Linux timestamping.
func addPlatformCommands(*cobra.Command) {}
