//go:build linux

package netio

import (
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// SocketRecord
// -------------------------------------------------------------------------

// SocketRecord is one bound, timestamping, non-blocking socket. Records are
// created by the Opener and never mutated afterwards; the caller owns the
// socket for the life of the process.
type SocketRecord struct {
	// Socket is the platform socket handle.
	Socket Socket

	// Family is the address family the socket was created for.
	Family Family

	// Port is the local UDP port the socket is bound to.
	Port uint16
}

// FD returns the socket's file descriptor, for callers that poll it
// directly. The descriptor stays owned by Socket.
func (r SocketRecord) FD() (int, error) {
	rc, err := r.Socket.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("%s port %d syscall conn: %w", r.Family, r.Port, err)
	}

	fd := -1
	if err := rc.Control(func(raw uintptr) {
		//nolint:gosec // G115: kernel FDs are small positive integers.
		fd = int(raw)
	}); err != nil {
		return -1, fmt.Errorf("%s port %d raw control: %w", r.Family, r.Port, err)
	}
	return fd, nil
}

// -------------------------------------------------------------------------
// SocketBundle
// -------------------------------------------------------------------------

// SocketBundle is an ordered, capacity-bounded set of SocketRecords.
// Len() never exceeds Cap(); Append on a full bundle fails with
// ErrBundleFull instead of dropping the socket.
type SocketBundle struct {
	records  []SocketRecord
	capacity int
}

// NewSocketBundle returns an empty bundle holding at most capacity records.
// A non-positive capacity selects DefaultBundleCapacity.
func NewSocketBundle(capacity int) *SocketBundle {
	if capacity <= 0 {
		capacity = DefaultBundleCapacity
	}
	return &SocketBundle{
		records:  make([]SocketRecord, 0, capacity),
		capacity: capacity,
	}
}

// Append adds rec to the bundle.
func (b *SocketBundle) Append(rec SocketRecord) error {
	if len(b.records) >= b.capacity {
		return fmt.Errorf("append %s port %d (capacity %d): %w",
			rec.Family, rec.Port, b.capacity, ErrBundleFull)
	}
	b.records = append(b.records, rec)
	return nil
}

// Len returns the number of records in use.
func (b *SocketBundle) Len() int {
	return len(b.records)
}

// Cap returns the bundle capacity.
func (b *SocketBundle) Cap() int {
	return b.capacity
}

// Records returns a copy of the records in insertion order.
func (b *SocketBundle) Records() []SocketRecord {
	out := make([]SocketRecord, len(b.records))
	copy(out, b.records)
	return out
}

// Ports returns the records bound to port.
func (b *SocketBundle) Ports(port uint16) []SocketRecord {
	var out []SocketRecord
	for _, rec := range b.records {
		if rec.Port == port {
			out = append(out, rec)
		}
	}
	return out
}

// Close closes every socket in the bundle and empties it.
func (b *SocketBundle) Close() error {
	var errs error
	for _, rec := range b.records {
		if err := rec.Socket.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close %s port %d: %w", rec.Family, rec.Port, err))
		}
	}
	b.records = b.records[:0]
	return errs
}
