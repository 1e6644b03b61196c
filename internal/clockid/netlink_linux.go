//go:build linux

package clockid

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// NetlinkLister enumerates links with an RTM_GETLINK dump over
// NETLINK_ROUTE, which reports the same AF_PACKET hardware addresses
// getifaddrs(3) does.
type NetlinkLister struct{}

// Links implements LinkLister. Links are returned in interface index order.
func (NetlinkLister) Links(_ context.Context) (links []Link, err error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("dial rtnetlink: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close rtnetlink: %w", cerr))
		}
	}()

	msgs, err := conn.Link.List()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	links = make([]Link, 0, len(msgs))
	for _, m := range msgs {
		l := Link{
			Index:    int(m.Index),
			Loopback: m.Flags&unix.IFF_LOOPBACK != 0,
		}
		if m.Attributes != nil {
			l.Name = m.Attributes.Name
			l.HardwareAddr = m.Attributes.Address
		}
		links = append(links, l)
	}

	slices.SortFunc(links, func(a, b Link) int { return a.Index - b.Index })
	return links, nil
}
