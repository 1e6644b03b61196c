// Package netio opens the hardware-timestamped UDP sockets used for PTP
// (IEEE 1588) traffic and reads frames from them.
//
// Linux-specific implementation uses github.com/mdlayher/socket and
// golang.org/x/sys/unix for one socket per address family on ports 319
// (event messages) and 320 (general messages).
package netio
