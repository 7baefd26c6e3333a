//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/windows.go
//

package errno

import "golang.org/x/sys/windows"

var errETIMEDOUT error = windows.WSAETIMEDOUT
