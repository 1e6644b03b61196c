//go:build linux

package netio

// SetSocketFactory replaces the socket constructor used by o.
func SetSocketFactory(o *Opener, f func(Family) (Socket, error)) {
	o.newSocket = f
}

// ParseTimestamps exposes parseTimestamps for tests.
var ParseTimestamps = parseTimestamps

// TimespecSize exposes the platform struct timespec size.
const TimespecSize = timespecSize
