// Package framedump renders raw PTP frames as grouped hex for diagnostic
// logging, tagged by the message type in the first byte.
package framedump

import (
	"context"
	"log/slog"
	"sync"
)

// Message type tags keyed by the first octet of a frame
// (transportSpecific nibble 1, messageType nibble as in IEEE 1588-2008
// Table 19).
const (
	TagSync      = "SYNC"
	TagFollowUp  = "FLUP"
	TagDelayResp = "DRSP"
	TagAnnounce  = "ANNC"
	TagSignaling = "SGNL"
	TagUnknown   = "XXXX"
)

// UnknownLevel is the debug level unrecognized frames are always logged at.
const UnknownLevel = 1

// Sink is the logging capability the dumper writes to. *slog.Logger
// satisfies it.
type Sink interface {
	Log(ctx context.Context, level slog.Level, msg string, args ...any)
}

// enabler is implemented by sinks that can cheaply report whether a level
// would be written (*slog.Logger does).
type enabler interface {
	Enabled(ctx context.Context, level slog.Level) bool
}

// Metrics counts dumped frames by tag. Implemented by metrics.Collector.
type Metrics interface {
	FrameDumped(tag string)
}

// DebugLevel maps a numeric debug verbosity (1 = most important) to a slog
// level: 1 is Info, 2 is Debug, and each further step is 4 below.
func DebugLevel(n int) slog.Level {
	return slog.LevelInfo - slog.Level(4*(n-1))
}

// Tag returns the message tag for the first frame octet.
func Tag(first byte) string {
	switch first {
	case 0x10:
		return TagSync
	case 0x18:
		return TagFollowUp
	case 0x19:
		return TagDelayResp
	case 0x1B:
		return TagAnnounce
	case 0x1C:
		return TagSignaling
	default:
		return TagUnknown
	}
}

// -------------------------------------------------------------------------
// Formatting
// -------------------------------------------------------------------------

const hexDigits = "0123456789ABCDEF"

// bufPool holds scratch buffers for Format. Buffers larger than maxPooled
// are not returned to the pool.
var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

const maxPooled = 16 << 10

// Format renders buf as uppercase hex, four bytes per group. Groups are
// separated by " ", every 16 bytes by " | " and every 32 bytes by " || ".
// Nothing follows the last byte.
func Format(buf []byte) string {
	bp, ok := bufPool.Get().(*[]byte)
	if !ok {
		return ""
	}
	out := appendFormat((*bp)[:0], buf)
	s := string(out)

	if cap(out) <= maxPooled {
		*bp = out[:0]
		bufPool.Put(bp)
	}
	return s
}

// appendFormat appends the formatted form of buf to dst. At most four
// output bytes are produced per input byte.
func appendFormat(dst, buf []byte) []byte {
	if need := 4*len(buf) + 1; cap(dst)-len(dst) < need {
		grown := make([]byte, len(dst), len(dst)+need)
		copy(grown, dst)
		dst = grown
	}

	last := len(buf) - 1
	for i, b := range buf {
		dst = append(dst, hexDigits[b>>4], hexDigits[b&0x0F])
		if i == last {
			break
		}
		switch {
		case i%32 == 31:
			dst = append(dst, " || "...)
		case i%16 == 15:
			dst = append(dst, " | "...)
		case i%4 == 3:
			dst = append(dst, ' ')
		}
	}
	return dst
}

// -------------------------------------------------------------------------
// Dumper
// -------------------------------------------------------------------------

// Dumper writes frame dumps to a Sink. It holds no mutable state and is
// safe for concurrent use if the sink is.
type Dumper struct {
	sink    Sink
	metrics Metrics
}

// Option configures a Dumper.
type Option func(*Dumper)

// WithMetrics counts every dumped frame in m.
func WithMetrics(m Metrics) Option {
	return func(d *Dumper) {
		d.metrics = m
	}
}

// New returns a Dumper writing to sink.
func New(sink Sink, opts ...Option) *Dumper {
	d := &Dumper{sink: sink}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dump logs buf at debug level, tagged by its message type. Frames with an
// unrecognized type are logged at UnknownLevel whatever level is. An empty
// buffer, a disabled level or a failed buffer allocation produce no output.
func (d *Dumper) Dump(ctx context.Context, level int, buf []byte) {
	if len(buf) == 0 {
		return
	}

	tag := Tag(buf[0])
	if tag == TagUnknown {
		level = UnknownLevel
	}
	lvl := DebugLevel(level)

	if e, ok := d.sink.(enabler); ok && !e.Enabled(ctx, lvl) {
		return
	}

	text := Format(buf)
	if text == "" {
		return
	}

	if d.metrics != nil {
		d.metrics.FrameDumped(tag)
	}
	d.sink.Log(ctx, lvl, "frame",
		slog.String("type", tag),
		slog.Int("bytes", len(buf)),
		slog.String("hex", text),
	)
}
