package commands

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klemensn/nqptp/internal/framedump"
)

// Sentinel errors for dump input.
var (
	errNoFrame        = errors.New("no frame bytes given, pass hex arguments or --file")
	errFrameAndFile   = errors.New("hex arguments and --file are mutually exclusive")
	errInvalidHexByte = errors.New("invalid hex frame")
)

// hexNoise lists the characters accepted between hex digits, including the
// separators Format emits, so a logged dump can be pasted back in.
const hexNoise = " \t\r\n|:.-"

func dumpCmd() *cobra.Command {
	var (
		file  string
		level int
	)

	cmd := &cobra.Command{
		Use:   "dump [hex ...]",
		Short: "Format a PTP frame the way the daemon logs it",
		Long: "Reads a frame from hex arguments or a raw binary file and renders it as grouped " +
			"uppercase hex tagged with its message type.",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := readFrame(args, file)
			if err != nil {
				return err
			}

			view, ok := dumpFrame(cmd.Context(), level, buf)
			if !ok {
				return errNoFrame
			}
			return render(cmd.OutOrStdout(), view, outputFormat)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read the raw frame from this file")
	cmd.Flags().IntVar(&level, "level", 1, "debug level the frame is dumped at (1 = info)")

	return cmd
}

// readFrame returns the frame bytes from either the hex arguments or file.
func readFrame(args []string, file string) ([]byte, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, errFrameAndFile
	case file != "":
		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		return buf, nil
	case len(args) == 0:
		return nil, errNoFrame
	}

	return parseHexFrame(strings.Join(args, " "))
}

// parseHexFrame decodes s after dropping whitespace and separators.
func parseHexFrame(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(hexNoise, r) {
			return -1
		}
		return r
	}, s)

	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidHexByte, err)
	}
	return buf, nil
}

// captureSink records the single Log call made by the dumper.
type captureSink struct {
	view dumpView
	seen bool
}

func (s *captureSink) Log(_ context.Context, level slog.Level, _ string, args ...any) {
	s.seen = true
	s.view.Level = level.String()
	for _, a := range args {
		attr, ok := a.(slog.Attr)
		if !ok {
			continue
		}
		switch attr.Key {
		case "type":
			s.view.Type = attr.Value.String()
		case "bytes":
			s.view.Bytes = int(attr.Value.Int64())
		case "hex":
			s.view.Hex = attr.Value.String()
		}
	}
}

// dumpFrame runs buf through the frame dumper and returns what it logged.
// ok is false if the dumper logged nothing.
func dumpFrame(ctx context.Context, level int, buf []byte) (dumpView, bool) {
	sink := &captureSink{}
	framedump.New(sink).Dump(ctx, level, buf)
	return sink.view, sink.seen
}
