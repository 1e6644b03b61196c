//go:build linux

package netio

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Resolver produces the local addresses a port should be bound on, one per
// address family, in the order they should be opened.
type Resolver interface {
	ResolvePassive(ctx context.Context, port uint16) ([]netip.AddrPort, error)
}

// PassiveResolver resolves the passive (listening) addresses for a port.
//
// With an empty Host it returns the IPv4 and IPv6 wildcard addresses,
// which is what a passive AF_UNSPEC lookup yields. With Host set it resolves
// the name and keeps the first address of each family.
type PassiveResolver struct {
	// Host is an optional bind host name or literal address.
	Host string

	// Lookup is the resolver used for Host. Nil selects net.DefaultResolver.
	Lookup *net.Resolver
}

// ResolvePassive implements Resolver.
func (r PassiveResolver) ResolvePassive(ctx context.Context, port uint16) ([]netip.AddrPort, error) {
	if r.Host == "" {
		return []netip.AddrPort{
			netip.AddrPortFrom(netip.IPv4Unspecified(), port),
			netip.AddrPortFrom(netip.IPv6Unspecified(), port),
		}, nil
	}

	if addr, err := netip.ParseAddr(r.Host); err == nil {
		return []netip.AddrPort{netip.AddrPortFrom(addr.Unmap(), port)}, nil
	}

	lookup := r.Lookup
	if lookup == nil {
		lookup = net.DefaultResolver
	}

	addrs, err := lookup.LookupNetIP(ctx, "ip", r.Host)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", r.Host, err)
	}

	return firstPerFamily(addrs, port), nil
}

// firstPerFamily keeps the first address of each family, IPv4 first.
func firstPerFamily(addrs []netip.Addr, port uint16) []netip.AddrPort {
	var v4, v6 netip.Addr
	for _, a := range addrs {
		a = a.Unmap()
		switch {
		case a.Is4() && !v4.IsValid():
			v4 = a
		case a.Is6() && !v6.IsValid():
			v6 = a
		}
	}

	out := make([]netip.AddrPort, 0, 2)
	if v4.IsValid() {
		out = append(out, netip.AddrPortFrom(v4, port))
	}
	if v6.IsValid() {
		out = append(out, netip.AddrPortFrom(v6, port))
	}
	return out
}
