//go:build !unix && !windows

// SPDX-License-Identifier: GPL-3.0-or-later

package errno

// No socket errno on this platform (e.g., js/wasm).
var errETIMEDOUT error
