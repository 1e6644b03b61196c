//go:build linux

package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/mdlayher/socket"
	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// Opener -- timestamping UDP sockets for PTP
// -------------------------------------------------------------------------

// OpenerMetrics receives socket lifecycle events. Implemented by
// metrics.Collector.
type OpenerMetrics interface {
	SocketOpened(family string, port uint16)
	SocketSetupFailed(family string, port uint16)
}

// Opener creates one timestamping UDP socket per available address family.
//
// Socket configuration, in order:
//  1. socket(family, SOCK_DGRAM, IPPROTO_UDP); failure skips the family
//  2. IPV6_V6ONLY = 1 on IPv6, so the v4 and v6 stacks stay separate
//  3. bind to the passive address and port
//  4. SO_TIMESTAMPING = TimestampingFlags
//  5. O_NONBLOCK
//  6. IP_ADD_MEMBERSHIP / IPV6_JOIN_GROUP when multicast is enabled
//
// Any failure in steps 2-6 is fatal and reported as ErrSocketSetup.
type Opener struct {
	resolver  Resolver
	multicast bool
	metrics   OpenerMetrics
	logger    *slog.Logger
	newSocket func(Family) (Socket, error)
}

// OpenerOption configures an Opener.
type OpenerOption func(*Opener)

// WithResolver replaces the default wildcard PassiveResolver.
func WithResolver(r Resolver) OpenerOption {
	return func(o *Opener) {
		o.resolver = r
	}
}

// WithMulticast makes every socket join the PTP primary multicast group.
func WithMulticast(enabled bool) OpenerOption {
	return func(o *Opener) {
		o.multicast = enabled
	}
}

// WithOpenerMetrics reports opened and failed sockets to m.
func WithOpenerMetrics(m OpenerMetrics) OpenerOption {
	return func(o *Opener) {
		o.metrics = m
	}
}

// NewOpener returns an Opener using real sockets.
func NewOpener(logger *slog.Logger, opts ...OpenerOption) *Opener {
	o := &Opener{
		resolver:  PassiveResolver{},
		logger:    logger.With(slog.String("component", "netio.opener")),
		newSocket: newUDPSocket,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OpenSockets resolves the passive addresses for port and appends one
// configured socket per family to bundle.
//
// A family whose socket cannot be created is skipped. Resolver failure,
// a setup failure on a created socket, or a full bundle is returned as an
// error; the daemon treats all of them as fatal.
func (o *Opener) OpenSockets(ctx context.Context, port uint16, bundle *SocketBundle) error {
	addrs, err := o.resolver.ResolvePassive(ctx, port)
	if err != nil {
		return fmt.Errorf("port %d: %w: %w", port, ErrResolve, err)
	}

	for _, ap := range addrs {
		family := FamilyOf(ap.Addr())

		s, err := o.newSocket(family)
		if err != nil {
			// One of the families is often reported but unusable; stay quiet.
			o.logger.Debug("address family unavailable, skipping",
				slog.String("family", family.String()),
				slog.Uint64("port", uint64(port)),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := o.configure(s, family, ap); err != nil {
			o.setupFailed(family, port)
			return errors.Join(
				fmt.Errorf("unable to listen on %s port %d: %w: %w; %s",
					family, port, ErrSocketSetup, err, privilegeHint),
				s.Close(),
			)
		}

		if err := bundle.Append(SocketRecord{Socket: s, Family: family, Port: port}); err != nil {
			return errors.Join(err, s.Close())
		}

		if o.metrics != nil {
			o.metrics.SocketOpened(family.String(), port)
		}
		o.logger.Debug("listening",
			slog.String("family", family.String()),
			slog.String("addr", ap.String()),
		)
	}

	return nil
}

// OpenPorts calls OpenSockets for each port and fails with ErrNoSockets if
// a port ends up with no socket in any family.
func (o *Opener) OpenPorts(ctx context.Context, ports []uint16, bundle *SocketBundle) error {
	for _, port := range ports {
		before := bundle.Len()
		if err := o.OpenSockets(ctx, port, bundle); err != nil {
			return err
		}
		if bundle.Len() == before {
			return fmt.Errorf("port %d: %w", port, ErrNoSockets)
		}
	}
	return nil
}

func (o *Opener) setupFailed(family Family, port uint16) {
	if o.metrics != nil {
		o.metrics.SocketSetupFailed(family.String(), port)
	}
}

// configure applies steps 2-6 of the socket setup to s.
func (o *Opener) configure(s Socket, family Family, ap netip.AddrPort) error {
	if family == FamilyIPv6 {
		if err := s.SetsockoptInt(unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return fmt.Errorf("set IPV6_V6ONLY: %w", err)
		}
	}

	if err := s.Bind(sockaddr(ap)); err != nil {
		return fmt.Errorf("bind %s: %w", ap, err)
	}

	if err := s.SetsockoptInt(unix.SOL_SOCKET, unix.SO_TIMESTAMPING, TimestampingFlags); err != nil {
		return fmt.Errorf("set SO_TIMESTAMPING: %w", err)
	}

	if err := control(s, func(fd int) error {
		return unix.SetNonblock(fd, true)
	}); err != nil {
		return fmt.Errorf("set O_NONBLOCK: %w", err)
	}

	if o.multicast {
		if err := control(s, func(fd int) error {
			return joinGroup(fd, family)
		}); err != nil {
			return fmt.Errorf("join multicast group: %w", err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Socket creation helpers
// -------------------------------------------------------------------------

var _ Socket = (*socket.Conn)(nil)

// newUDPSocket creates a UDP socket for family. mdlayher/socket opens it
// with SOCK_CLOEXEC and registers it with the runtime poller.
func newUDPSocket(family Family) (Socket, error) {
	name := "ptp-" + strings.ToLower(family.String())

	c, err := socket.Socket(family.Domain(), unix.SOCK_DGRAM, unix.IPPROTO_UDP, name, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s socket: %w", family, err)
	}
	return c, nil
}

// sockaddr converts ap to the unix.Sockaddr for its family.
func sockaddr(ap netip.AddrPort) unix.Sockaddr {
	addr := ap.Addr().Unmap()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
}

// control runs fn against the raw descriptor of s.
func control(s Socket, fn func(fd int) error) error {
	rc, err := s.SyscallConn()
	if err != nil {
		return fmt.Errorf("syscall conn: %w", err)
	}

	var opErr error
	if err := rc.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		opErr = fn(int(fd))
	}); err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return opErr
}

// joinGroup joins the PTP primary multicast group on the default interface.
func joinGroup(fd int, family Family) error {
	if family == FamilyIPv6 {
		mreq := &unix.IPv6Mreq{Multiaddr: MulticastGroupIPv6.As16()}
		return unix.SetsockoptIPv6Mreq(fd, unix.IPPROTO_IPV6, unix.IPV6_JOIN_GROUP, mreq)
	}
	mreq := &unix.IPMreq{Multiaddr: MulticastGroupIPv4.As4()}
	return unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
}
