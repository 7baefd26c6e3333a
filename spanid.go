// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying a request span.
//
// [NewRequestData] assigns one to each request so that relay, connect and
// HTTP log events, as well as canonical timeout errors, can be correlated.
//
// This function panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
