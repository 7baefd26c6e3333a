// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

// Unit is the input of a [Func] that needs no input.
type Unit struct{}
