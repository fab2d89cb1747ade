// Package host provides direct x86 port I/O for running the driver on real
// hardware from a privileged Linux process.
package host

import "errors"

// Range is a contiguous block of ports the process needs access to
type Range struct {
	From  uint16
	Count uint16
}

// ErrUnsupported is returned by Open where direct port I/O is unavailable
var ErrUnsupported = errors.New("host: direct port I/O not supported on this platform")

// LegacyATARanges covers the command blocks and control ports of both
// legacy channels.
var LegacyATARanges = []Range{
	{From: 0x1F0, Count: 8},
	{From: 0x3F6, Count: 1},
	{From: 0x170, Count: 8},
	{From: 0x376, Count: 1},
}
