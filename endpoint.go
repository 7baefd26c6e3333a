// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import "net/netip"

// NewEndpointFunc returns a [Func] that always returns endpoint, suitable
// as the first stage of a pipeline ending with [*ConnectFunc].
func NewEndpointFunc(endpoint netip.AddrPort) Func[Unit, netip.AddrPort] {
	return ConstFunc(endpoint)
}
