package clockid

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Lister kinds accepted by NewLister.
const (
	ListerNetlink = "netlink"
	ListerStdlib  = "stdlib"
)

// ErrUnknownLister indicates an unrecognized lister kind.
var ErrUnknownLister = errors.New("unknown interface lister")

// StdLister enumerates interfaces with net.Interfaces.
type StdLister struct{}

// Links implements LinkLister.
func (StdLister) Links(_ context.Context) ([]Link, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("net.Interfaces: %w", err)
	}

	links := make([]Link, 0, len(ifaces))
	for _, ifc := range ifaces {
		links = append(links, Link{
			Index:        ifc.Index,
			Name:         ifc.Name,
			HardwareAddr: ifc.HardwareAddr,
			Loopback:     ifc.Flags&net.FlagLoopback != 0,
		})
	}
	return links, nil
}

// NewLister returns the lister of the given kind.
func NewLister(kind string) (LinkLister, error) {
	switch kind {
	case ListerNetlink:
		return NetlinkLister{}, nil
	case ListerStdlib, "":
		return StdLister{}, nil
	default:
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownLister)
	}
}
