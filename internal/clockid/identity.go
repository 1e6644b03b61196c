// Package clockid derives the local PTP clockIdentity from a network
// interface hardware address (IEEE 1588-2008 Section 7.5.2.2.2).
package clockid

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Size is the length of a clockIdentity in bytes.
const Size = 8

// Identity is a PTP clockIdentity in network byte order. It is an opaque
// octet string; Uint64 exists for display and map keys only.
type Identity [Size]byte

var (
	// ErrUnsupportedAddrLen indicates a hardware address that is neither
	// EUI-48 nor EUI-64.
	ErrUnsupportedAddrLen = errors.New("hardware address must be 6 or 8 bytes")

	// ErrInvalidIdentity indicates a string that is not a clock identity.
	ErrInvalidIdentity = errors.New("invalid clock identity")
)

// FromHardwareAddr builds a clockIdentity from hw.
//
// An EUI-48 address b0..b5 becomes b0 b1 b2 FF FE b3 b4 b5 (Section
// 7.5.2.2.2, NOTE 2). An EUI-64 address is used as is.
func FromHardwareAddr(hw net.HardwareAddr) (Identity, error) {
	var id Identity

	switch len(hw) {
	case 6:
		copy(id[0:3], hw[0:3])
		id[3] = 0xFF
		id[4] = 0xFE
		copy(id[5:8], hw[3:6])
	case 8:
		copy(id[:], hw)
	default:
		return Identity{}, fmt.Errorf("%d-byte address %s: %w", len(hw), hw, ErrUnsupportedAddrLen)
	}

	return id, nil
}

// Parse accepts "aabbcc.fffe.ddeeff", "aabbccfffeddeeff" and the
// colon-separated "aa:bb:cc:ff:fe:dd:ee:ff" forms.
func Parse(s string) (Identity, error) {
	clean := strings.NewReplacer(".", "", ":", "", "-", "").Replace(s)
	if len(clean) != 2*Size {
		return Identity{}, fmt.Errorf("%q: %w", s, ErrInvalidIdentity)
	}

	var id Identity
	if _, err := hex.Decode(id[:], []byte(clean)); err != nil {
		return Identity{}, fmt.Errorf("%q: %w: %w", s, ErrInvalidIdentity, err)
	}
	return id, nil
}

// String renders the identity the way PTP tooling does: "aabbcc.fffe.ddeeff".
func (id Identity) String() string {
	h := hex.EncodeToString(id[:])
	return h[0:6] + "." + h[6:10] + "." + h[10:16]
}

// Hex returns the 16 lowercase hex digits of the identity.
func (id Identity) Hex() string {
	return hex.EncodeToString(id[:])
}

// Uint64 returns the identity read as a big-endian integer.
func (id Identity) Uint64() uint64 {
	return binary.BigEndian.Uint64(id[:])
}

// IsZero reports whether the identity is all zeros.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// MarshalText implements encoding.TextMarshaler using String.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using Parse.
func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
