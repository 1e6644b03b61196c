//go:build linux

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/klemensn/nqptp/internal/framedump"
	"github.com/klemensn/nqptp/internal/netio"
)

func addPlatformCommands(root *cobra.Command) {
	root.AddCommand(captureCmd())
}

func captureCmd() *cobra.Command {
	var (
		ports     []uint
		bindHost  string
		multicast bool
		level     int
		count     int
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Open the PTP ports and dump received frames",
		Long: "Opens timestamping sockets on the PTP ports, as the daemon does, and logs every " +
			"received frame until interrupted (Ctrl+C). Requires root, and fails if another " +
			"PTP daemon holds the ports.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			opts := &slog.HandlerOptions{Level: framedump.DebugLevel(level)}
			var handler slog.Handler = slog.NewTextHandler(out, opts)
			if outputFormat == formatJSON {
				handler = slog.NewJSONHandler(out, opts)
			}
			logger := slog.New(handler)

			portNums := make([]uint16, 0, len(ports))
			for _, p := range ports {
				if p == 0 || p > 65535 {
					return fmt.Errorf("port %d: %w", p, errInvalidPort)
				}
				portNums = append(portNums, uint16(p)) //nolint:gosec // G115: range checked above.
			}

			bundle := netio.NewSocketBundle(2 * len(portNums))
			defer func() { _ = bundle.Close() }()

			opener := netio.NewOpener(logger,
				netio.WithResolver(netio.PassiveResolver{Host: bindHost}),
				netio.WithMulticast(multicast),
			)
			if err := opener.OpenPorts(ctx, portNums, bundle); err != nil {
				return fmt.Errorf("open sockets: %w", err)
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			recv := netio.NewReceiver(frameLogger(logger, level, count, cancel), logger)
			if err := recv.Run(ctx, bundle.Records()...); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("capture: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().UintSliceVar(&ports, "port", []uint{uint(netio.PortEvent), uint(netio.PortGeneral)}, "UDP ports to open")
	cmd.Flags().StringVar(&bindHost, "bind", "", "bind to this host or address instead of the wildcard")
	cmd.Flags().BoolVar(&multicast, "multicast", false, "join the PTP primary multicast group")
	cmd.Flags().IntVar(&level, "level", 1, "debug level frames are dumped at (1 = info)")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many frames (0 = no limit)")

	return cmd
}

// errInvalidPort is returned for a --port outside 1..65535.
var errInvalidPort = errors.New("port must be in 1..65535")

// frameLogger dumps each frame with its source and kernel timestamps and
// calls stop once limit frames have been seen. A limit of 0 never stops.
func frameLogger(logger *slog.Logger, level, limit int, stop context.CancelFunc) netio.Handler {
	var seen atomic.Int64
	return netio.HandlerFunc(func(ctx context.Context, f netio.Frame) {
		n := seen.Add(1)
		if limit > 0 && n > int64(limit) {
			return
		}

		l := logger.With(
			slog.String("src", f.Src.String()),
			slog.Uint64("port", uint64(f.Port)),
		)
		if !f.Software.IsZero() {
			l = l.With(slog.Time("sw_ts", f.Software))
		}
		if !f.Hardware.IsZero() {
			l = l.With(slog.Time("hw_ts", f.Hardware))
		}
		framedump.New(l).Dump(ctx, level, f.Data)

		if limit > 0 && n == int64(limit) {
			stop()
		}
	})
}
