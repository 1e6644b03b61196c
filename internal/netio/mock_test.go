//go:build linux

package netio_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/klemensn/nqptp/internal/netio"
)

// -------------------------------------------------------------------------
// FakeSocket -- Test double for netio.Socket
// -------------------------------------------------------------------------

// sockopt identifies a (level, option) pair.
type sockopt struct {
	level int
	opt   int
}

// fakeFrame is one datagram queued for Recvmsg.
type fakeFrame struct {
	data []byte
	oob  []byte
	from unix.Sockaddr
}

// FakeSocket implements netio.Socket without a network. A pipe supplies a
// real descriptor so O_NONBLOCK can be set and checked on it.
type FakeSocket struct {
	mu     sync.Mutex
	r, w   *os.File
	opts   map[sockopt]int
	bound  unix.Sockaddr
	closed bool

	// OptErr fails SetsockoptInt for the given option.
	OptErr map[sockopt]error

	// BindErr fails Bind.
	BindErr error

	frames chan fakeFrame
}

// NewFakeSocket creates a FakeSocket whose descriptor starts out blocking.
func NewFakeSocket(t *testing.T) *FakeSocket {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	s := &FakeSocket{
		r:      r,
		w:      w,
		opts:   make(map[sockopt]int),
		OptErr: make(map[sockopt]error),
		frames: make(chan fakeFrame, 16),
	}

	rc, err := r.SyscallConn()
	if err != nil {
		t.Fatalf("SyscallConn: %v", err)
	}
	if err := rc.Control(func(fd uintptr) {
		_ = unix.SetNonblock(int(fd), false)
	}); err != nil {
		t.Fatalf("Control: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SetsockoptInt records the option value.
func (s *FakeSocket) SetsockoptInt(level, opt, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.OptErr[sockopt{level, opt}]; err != nil {
		return err
	}
	s.opts[sockopt{level, opt}] = value
	return nil
}

// Bind records the address.
func (s *FakeSocket) Bind(sa unix.Sockaddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.BindErr != nil {
		return s.BindErr
	}
	s.bound = sa
	return nil
}

// SyscallConn returns the pipe's raw conn.
func (s *FakeSocket) SyscallConn() (syscall.RawConn, error) {
	return s.r.SyscallConn()
}

// Recvmsg returns the next queued frame or blocks until ctx is done.
func (s *FakeSocket) Recvmsg(ctx context.Context, p, oob []byte, _ int) (int, int, int, unix.Sockaddr, error) {
	select {
	case <-ctx.Done():
		return 0, 0, 0, nil, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return 0, 0, 0, nil, os.ErrClosed
		}
		n := copy(p, f.data)
		oobn := copy(oob, f.oob)
		return n, oobn, 0, f.from, nil
	}
}

// Close closes the pipe and the frame queue. It is idempotent.
func (s *FakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.frames)
	return errors.Join(s.r.Close(), s.w.Close())
}

// Queue adds a datagram for Recvmsg.
func (s *FakeSocket) Queue(data []byte, from unix.Sockaddr) {
	s.frames <- fakeFrame{data: data, from: from}
}

// Opt returns a recorded option value.
func (s *FakeSocket) Opt(level, opt int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.opts[sockopt{level, opt}]
	return v, ok
}

// Bound returns the address passed to Bind.
func (s *FakeSocket) Bound() unix.Sockaddr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bound
}

// IsClosed reports whether Close was called.
func (s *FakeSocket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// -------------------------------------------------------------------------
// Fake factory and metrics
// -------------------------------------------------------------------------

// fakeFactory hands out FakeSockets per family and records them.
type fakeFactory struct {
	t       *testing.T
	mu      sync.Mutex
	fail    map[netio.Family]error
	prepare func(netio.Family, *FakeSocket)
	made    []*FakeSocket
}

func newFakeFactory(t *testing.T) *fakeFactory {
	t.Helper()
	return &fakeFactory{t: t, fail: make(map[netio.Family]error)}
}

func (f *fakeFactory) New(family netio.Family) (netio.Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail[family]; err != nil {
		return nil, err
	}
	s := NewFakeSocket(f.t)
	if f.prepare != nil {
		f.prepare(family, s)
	}
	f.made = append(f.made, s)
	return s, nil
}

// recordingMetrics implements OpenerMetrics and ReceiverMetrics.
type recordingMetrics struct {
	mu       sync.Mutex
	opened   []string
	failed   []string
	received int
}

func (m *recordingMetrics) SocketOpened(family string, _ uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, family)
}

func (m *recordingMetrics) SocketSetupFailed(family string, _ uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, family)
}

func (m *recordingMetrics) FrameReceived(string, uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
}

// isNonblocking reports whether fd has O_NONBLOCK set.
func isNonblocking(t *testing.T, fd int) bool {
	t.Helper()

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		t.Fatalf("fcntl(F_GETFL): %v", err)
	}
	return flags&unix.O_NONBLOCK != 0
}
