package commands

import (
	"errors"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/klemensn/nqptp/internal/clockid"
)

// errMACRequired is returned when eui64 is called without an address.
var errMACRequired = errors.New("hardware address argument is required")

func identityCmd() *cobra.Command {
	var (
		iface  string
		source string
	)

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Derive the local PTP clock identity",
		Long: "Enumerates the network interfaces and derives the 8-byte clock identity from " +
			"the first eligible hardware address, exactly as the daemon does at startup.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lister, err := clockid.NewLister(source)
			if err != nil {
				return fmt.Errorf("identity source: %w", err)
			}

			id, link, err := clockid.Derive(cmd.Context(), lister, iface)
			if err != nil {
				return fmt.Errorf("derive clock identity: %w", err)
			}

			return render(cmd.OutOrStdout(), identityView{
				Interface:     link.Name,
				Index:         link.Index,
				HardwareAddr:  link.HardwareAddr.String(),
				ClockIdentity: id.String(),
				Hex:           id.Hex(),
			}, outputFormat)
		},
	}

	cmd.Flags().StringVar(&iface, "interface", "", "derive from this interface only")
	cmd.Flags().StringVar(&source, "source", clockid.ListerNetlink,
		"interface enumerator: netlink, stdlib")

	return cmd
}

func eui64Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eui64 <hardware-address>",
		Short: "Convert a MAC address to a clock identity",
		Long: "Converts a 6-byte EUI-48 address by inserting FF FE in the middle, or passes an " +
			"8-byte EUI-64 address through unchanged.",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errMACRequired
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			hw, err := net.ParseMAC(args[0])
			if err != nil {
				return fmt.Errorf("parse hardware address: %w", err)
			}

			id, err := clockid.FromHardwareAddr(hw)
			if err != nil {
				return fmt.Errorf("convert %s: %w", hw, err)
			}

			return render(cmd.OutOrStdout(), identityView{
				HardwareAddr:  hw.String(),
				ClockIdentity: id.String(),
				Hex:           id.Hex(),
			}, outputFormat)
		},
	}
}
