//go:build !linux

package clockid

import (
	"context"
	"errors"
)

// errNetlinkUnsupported is returned by NetlinkLister off Linux.
var errNetlinkUnsupported = errors.New("netlink lister requires linux")

// NetlinkLister is only functional on Linux.
type NetlinkLister struct{}

// Links always fails off Linux; use StdLister instead.
func (NetlinkLister) Links(_ context.Context) ([]Link, error) {
	return nil, errNetlinkUnsupported
}
