package clockid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// loopbackName is the Linux loopback interface, excluded even when the
// driver fails to set IFF_LOOPBACK.
const loopbackName = "lo"

var (
	// ErrEnumerate indicates the interface enumeration call itself failed.
	ErrEnumerate = errors.New("enumerate network interfaces")

	// ErrNoEligibleInterface indicates no non-loopback interface has a
	// hardware address, so no identity can be derived.
	ErrNoEligibleInterface = errors.New("no non-loopback interface with a hardware address")

	// ErrNotInitialized indicates Identity was called before a successful Init.
	ErrNotInitialized = errors.New("clock identity not initialized")
)

// Link is the subset of a network interface the identity derivation needs.
type Link struct {
	Index        int
	Name         string
	HardwareAddr net.HardwareAddr
	Loopback     bool
}

// LinkLister enumerates the host's network interfaces in index order.
type LinkLister interface {
	Links(ctx context.Context) ([]Link, error)
}

// Select returns the first link that has a hardware address and is not the
// loopback interface. A non-empty preferred restricts the choice to the link
// of that name.
func Select(links []Link, preferred string) (Link, error) {
	for _, l := range links {
		if preferred != "" && l.Name != preferred {
			continue
		}
		if len(l.HardwareAddr) == 0 || l.Loopback || l.Name == loopbackName {
			continue
		}
		return l, nil
	}

	if preferred != "" {
		return Link{}, fmt.Errorf("interface %q: %w", preferred, ErrNoEligibleInterface)
	}
	return Link{}, ErrNoEligibleInterface
}

// Derive enumerates links once and derives the identity of the selected one.
func Derive(ctx context.Context, lister LinkLister, preferred string) (Identity, Link, error) {
	links, err := lister.Links(ctx)
	if err != nil {
		return Identity{}, Link{}, fmt.Errorf("%w: %w", ErrEnumerate, err)
	}

	link, err := Select(links, preferred)
	if err != nil {
		return Identity{}, Link{}, err
	}

	id, err := FromHardwareAddr(link.HardwareAddr)
	if err != nil {
		return Identity{}, Link{}, fmt.Errorf("interface %s: %w", link.Name, err)
	}
	return id, link, nil
}

// -------------------------------------------------------------------------
// Source -- cached identity
// -------------------------------------------------------------------------

// Source holds the local clock identity. Init scans the interfaces; once it
// succeeds the identity is fixed for the life of the Source and later Init
// calls are no-ops. A failed Init may be retried.
type Source struct {
	lister    LinkLister
	preferred string
	logger    *slog.Logger

	mu   sync.Mutex
	id   Identity
	link Link
	ok   bool
}

// NewSource returns a Source that enumerates interfaces with lister. A
// non-empty preferred pins the interface by name.
func NewSource(lister LinkLister, preferred string, logger *slog.Logger) *Source {
	return &Source{
		lister:    lister,
		preferred: preferred,
		logger:    logger.With(slog.String("component", "clockid")),
	}
}

// Init derives and caches the identity.
func (s *Source) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ok {
		return nil
	}

	id, link, err := Derive(ctx, s.lister, s.preferred)
	if err != nil {
		return fmt.Errorf("derive clock identity: %w", err)
	}

	s.id, s.link, s.ok = id, link, true
	s.logger.Info("clock identity derived",
		slog.String("clock_identity", id.String()),
		slog.String("interface", link.Name),
		slog.String("hw_addr", link.HardwareAddr.String()),
	)
	return nil
}

// Identity returns the cached identity.
func (s *Source) Identity() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ok {
		return Identity{}, ErrNotInitialized
	}
	return s.id, nil
}

// Link returns the interface the identity was derived from.
func (s *Source) Link() (Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.link, s.ok
}
