// SPDX-License-Identifier: GPL-3.0-or-later

// Package errno recognizes platform socket error numbers that network
// engines surface when the kernel gives up on a connection.
//
// The constants are selected at build time: see unix.go and windows.go.
package errno

import "errors"

// IsTimedOut returns whether err wraps the platform ETIMEDOUT errno.
//
// The kernel returns ETIMEDOUT when TCP retransmissions or keepalive probes
// are exhausted, which the Go net engine reports wrapped inside
// [*net.OpError] and [*os.SyscallError] values.
func IsTimedOut(err error) bool {
	if err == nil || errETIMEDOUT == nil {
		return false
	}
	return errors.Is(err, errETIMEDOUT)
}
