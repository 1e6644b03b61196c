//go:build linux

package netio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// ErrNoRecords indicates that Run was called without any sockets.
var ErrNoRecords = errors.New("receiver run: no sockets provided")

const (
	// DefaultReadBuffer fits any PTP message over UDP with room to spare.
	DefaultReadBuffer = 2048

	// oobSize holds one SCM_TIMESTAMPING message (three timespecs) plus
	// headroom for any other control message the kernel attaches.
	oobSize = 256

	// timespecSize is the size of struct timespec on this platform.
	timespecSize = int(unsafe.Sizeof(unix.Timespec{}))
)

// Frame is one received datagram with its kernel timestamps. Data is only
// valid for the duration of the Handler call.
type Frame struct {
	Data   []byte
	Src    netip.AddrPort
	Family Family
	Port   uint16

	// Software is the kernel software receive timestamp, zero if absent.
	Software time.Time

	// Hardware is the raw NIC receive timestamp, zero if absent.
	Hardware time.Time
}

// Handler consumes received frames.
type Handler interface {
	HandleFrame(ctx context.Context, f Frame)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, f Frame)

// HandleFrame calls fn.
func (fn HandlerFunc) HandleFrame(ctx context.Context, f Frame) {
	fn(ctx, f)
}

// ReceiverMetrics counts received frames. Implemented by metrics.Collector.
type ReceiverMetrics interface {
	FrameReceived(family string, port uint16)
}

// Receiver reads frames from every socket of a bundle and hands them to a
// Handler. It does not interpret the frames.
type Receiver struct {
	handler Handler
	logger  *slog.Logger
	metrics ReceiverMetrics
	bufSize int
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReadBuffer sets the per-socket datagram buffer size.
func WithReadBuffer(n int) ReceiverOption {
	return func(r *Receiver) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// WithReceiverMetrics reports each received frame to m.
func WithReceiverMetrics(m ReceiverMetrics) ReceiverOption {
	return func(r *Receiver) {
		r.metrics = m
	}
}

// NewReceiver creates a Receiver that passes frames to h.
func NewReceiver(h Handler, logger *slog.Logger, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		handler: h,
		logger:  logger.With(slog.String("component", "netio.receiver")),
		bufSize: DefaultReadBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads from all records concurrently until ctx is cancelled or a
// socket is closed. Read errors other than those are logged and the loop
// continues.
func (r *Receiver) Run(ctx context.Context, records ...SocketRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("receiver: %w", ErrNoRecords)
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, rec := range records {
		g.Go(func() error {
			r.recvLoop(gCtx, rec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	return nil
}

// recvLoop reads from one socket until ctx is cancelled or it is closed.
func (r *Receiver) recvLoop(ctx context.Context, rec SocketRecord) {
	buf := make([]byte, r.bufSize)
	oob := make([]byte, oobSize)

	for {
		if ctx.Err() != nil {
			return
		}

		n, oobn, _, from, err := rec.Socket.Recvmsg(ctx, buf, oob, 0)
		if err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return
			}
			r.logger.Warn("recv error",
				slog.String("family", rec.Family.String()),
				slog.Uint64("port", uint64(rec.Port)),
				slog.String("error", err.Error()),
			)
			continue
		}

		f := Frame{
			Data:   buf[:n],
			Src:    addrPortOf(from),
			Family: rec.Family,
			Port:   rec.Port,
		}
		if msgs, err := unix.ParseSocketControlMessage(oob[:oobn]); err == nil {
			f.Software, f.Hardware = parseTimestamps(msgs)
		}

		if r.metrics != nil {
			r.metrics.FrameReceived(rec.Family.String(), rec.Port)
		}
		r.handler.HandleFrame(ctx, f)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}

// addrPortOf converts a received source address.
func addrPortOf(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		//nolint:gosec // G115: ports fit uint16.
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		//nolint:gosec // G115: ports fit uint16.
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}

// parseTimestamps extracts the software and raw hardware receive times from
// an SCM_TIMESTAMPING control message (struct scm_timestamping: ts[0]
// software, ts[1] deprecated, ts[2] raw hardware).
func parseTimestamps(msgs []unix.SocketControlMessage) (software, hardware time.Time) {
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_TIMESTAMPING {
			continue
		}
		data := msgs[i].Data
		if len(data) < 3*timespecSize {
			continue
		}
		software = parseTimespec(data[0:timespecSize])
		hardware = parseTimespec(data[2*timespecSize : 3*timespecSize])
	}
	return software, hardware
}

// parseTimespec decodes a native-endian struct timespec. A zero timespec
// means the kernel did not fill that slot.
func parseTimespec(b []byte) time.Time {
	var sec, nsec int64
	if timespecSize == 16 {
		//nolint:gosec // G115: kernel timespec fields are signed 64-bit values.
		sec, nsec = int64(binary.NativeEndian.Uint64(b[0:8])), int64(binary.NativeEndian.Uint64(b[8:16]))
	} else {
		sec, nsec = int64(int32(binary.NativeEndian.Uint32(b[0:4]))), int64(int32(binary.NativeEndian.Uint32(b[4:8])))
	}
	if sec == 0 && nsec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, nsec)
}
