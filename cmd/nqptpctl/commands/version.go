package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/klemensn/nqptp/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print nqptpctl build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outputFormat == formatText {
				fmt.Fprintln(cmd.OutOrStdout(), appversion.Full("nqptpctl"))
				return nil
			}
			return render(cmd.OutOrStdout(), versionView{appversion.Get()}, outputFormat)
		},
	}
}
