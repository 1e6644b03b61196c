//go:build linux

package netio

import (
	"context"
	"errors"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// PTP Port Constants -- IEEE 1588-2008 Annex D.2
// -------------------------------------------------------------------------

const (
	// PortEvent is the UDP port for PTP event messages (Sync, Delay_Req),
	// the ones that carry timestamps and need hardware timestamping.
	PortEvent uint16 = 319

	// PortGeneral is the UDP port for PTP general messages (Follow_Up,
	// Delay_Resp, Announce, Signaling).
	PortGeneral uint16 = 320

	// DefaultBundleCapacity bounds the number of sockets a daemon opens:
	// two ports times two families leaves ample room.
	DefaultBundleCapacity = 16
)

// TimestampingFlags is the SO_TIMESTAMPING request applied to every socket:
// hardware and software timestamps on both transmit and receive, plus
// reporting of software and raw hardware clock values.
const TimestampingFlags = unix.SOF_TIMESTAMPING_TX_HARDWARE |
	unix.SOF_TIMESTAMPING_TX_SOFTWARE |
	unix.SOF_TIMESTAMPING_RX_HARDWARE |
	unix.SOF_TIMESTAMPING_RX_SOFTWARE |
	unix.SOF_TIMESTAMPING_SOFTWARE |
	unix.SOF_TIMESTAMPING_RAW_HARDWARE

// PTP primary multicast groups (IEEE 1588-2008 Annex D.3 and E.3).
var (
	MulticastGroupIPv4 = netip.MustParseAddr("224.0.1.129")
	MulticastGroupIPv6 = netip.MustParseAddr("ff0e::181")
)

// -------------------------------------------------------------------------
// Address families
// -------------------------------------------------------------------------

// Family is the transport address family of a socket.
type Family uint8

const (
	// FamilyIPv4 is AF_INET.
	FamilyIPv4 Family = iota + 1
	// FamilyIPv6 is AF_INET6.
	FamilyIPv6
)

// FamilyOf returns the family of addr. IPv4-mapped IPv6 addresses are
// treated as IPv4.
func FamilyOf(addr netip.Addr) Family {
	if addr.Unmap().Is4() {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// String returns "IPv4" or "IPv6".
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// Domain returns the socket(2) domain for the family.
func (f Family) Domain() int {
	if f == FamilyIPv6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// -------------------------------------------------------------------------
// Socket Interface
// -------------------------------------------------------------------------

// Socket is the platform socket handle held by a SocketRecord.
//
// *socket.Conn from github.com/mdlayher/socket satisfies it. The interface
// is kept to the calls the opener and receiver make so that tests can run
// without CAP_NET_BIND_SERVICE.
type Socket interface {
	// SetsockoptInt sets an integer socket option.
	SetsockoptInt(level, opt, value int) error

	// Bind binds the socket to a local address.
	Bind(sa unix.Sockaddr) error

	// SyscallConn exposes the raw descriptor.
	SyscallConn() (syscall.RawConn, error)

	// Recvmsg reads one datagram and its ancillary data. It unblocks when
	// ctx is cancelled.
	Recvmsg(ctx context.Context, p, oob []byte, flags int) (n, oobn, recvflags int, from unix.Sockaddr, err error)

	// Close releases the descriptor.
	Close() error
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrResolve indicates the passive address lookup itself failed.
	ErrResolve = errors.New("resolve local addresses")

	// ErrSocketSetup indicates a created socket could not be configured
	// (IPV6_V6ONLY, bind, SO_TIMESTAMPING, O_NONBLOCK or multicast join).
	ErrSocketSetup = errors.New("socket setup failed")

	// ErrBundleFull indicates more sockets were opened than the bundle can hold.
	ErrBundleFull = errors.New("socket bundle full")

	// ErrNoSockets indicates no address family could be opened at all.
	ErrNoSockets = errors.New("no sockets opened")
)

// privilegeHint is appended to fatal socket setup errors.
const privilegeHint = "daemon must run as root, or is a separate PTP daemon running?"
