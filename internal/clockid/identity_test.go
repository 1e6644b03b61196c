package clockid_test

import (
	"errors"
	"net"
	"testing"

	"github.com/klemensn/nqptp/internal/clockid"
)

func TestFromHardwareAddrEUI48(t *testing.T) {
	t.Parallel()

	hw, err := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}

	id, err := clockid.FromHardwareAddr(hw)
	if err != nil {
		t.Fatalf("FromHardwareAddr: %v", err)
	}

	want := clockid.Identity{0xAA, 0xBB, 0xCC, 0xFF, 0xFE, 0xDD, 0xEE, 0xFF}
	if id != want {
		t.Errorf("FromHardwareAddr(%s) = % X, want % X", hw, id[:], want[:])
	}
}

func TestFromHardwareAddrEUI64Unchanged(t *testing.T) {
	t.Parallel()

	hw := net.HardwareAddr{0x02, 0x42, 0xac, 0x11, 0x00, 0x02, 0x12, 0x34}

	id, err := clockid.FromHardwareAddr(hw)
	if err != nil {
		t.Fatalf("FromHardwareAddr: %v", err)
	}
	for i := range hw {
		if id[i] != hw[i] {
			t.Fatalf("byte %d = %#02x, want %#02x (EUI-64 must pass through)", i, id[i], hw[i])
		}
	}
}

func TestFromHardwareAddrUniversalLocalBitUntouched(t *testing.T) {
	t.Parallel()

	// Unlike IPv6 interface identifiers, clockIdentity keeps the U/L bit.
	id, err := clockid.FromHardwareAddr(net.HardwareAddr{0x00, 0x1b, 0x21, 0x0a, 0x0b, 0x0c})
	if err != nil {
		t.Fatalf("FromHardwareAddr: %v", err)
	}
	if id[0] != 0x00 {
		t.Errorf("first byte = %#02x, want 0x00", id[0])
	}
}

func TestFromHardwareAddrUnsupportedLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 4, 7, 20} {
		_, err := clockid.FromHardwareAddr(make(net.HardwareAddr, n))
		if !errors.Is(err, clockid.ErrUnsupportedAddrLen) {
			t.Errorf("len %d: err = %v, want ErrUnsupportedAddrLen", n, err)
		}
	}
}

func TestIdentityString(t *testing.T) {
	t.Parallel()

	id := clockid.Identity{0xAA, 0xBB, 0xCC, 0xFF, 0xFE, 0xDD, 0xEE, 0xFF}

	if got, want := id.String(), "aabbcc.fffe.ddeeff"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := id.Hex(), "aabbccfffeddeeff"; got != want {
		t.Errorf("Hex() = %q, want %q", got, want)
	}
	if got, want := id.Uint64(), uint64(0xAABBCCFFFEDDEEFF); got != want {
		t.Errorf("Uint64() = %#x, want %#x", got, want)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	want := clockid.Identity{0xAA, 0xBB, 0xCC, 0xFF, 0xFE, 0xDD, 0xEE, 0xFF}

	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "aabbcc.fffe.ddeeff"},
		{in: "AABBCCFFFEDDEEFF"},
		{in: "aa:bb:cc:ff:fe:dd:ee:ff"},
		{in: "aabbcc.fffe.ddee", wantErr: true},
		{in: "zzbbcc.fffe.ddeeff", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := clockid.Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, clockid.ErrInvalidIdentity) {
					t.Errorf("Parse(%q) err = %v, want ErrInvalidIdentity", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got != want {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

func TestIdentityTextRoundTrip(t *testing.T) {
	t.Parallel()

	id := clockid.Identity{0x00, 0x11, 0x22, 0xFF, 0xFE, 0x33, 0x44, 0x55}
	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var back clockid.Identity
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q): %v", text, err)
	}
	if back != id {
		t.Errorf("round trip = %s, want %s", back, id)
	}
}
