// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"errors"
	"io"
)

// ReadStream is the readable side of a byte stream.
//
// A stream has exactly one terminal state: either normal end-of-data, which
// Read signals with [io.EOF], or a failure carrying a cause. Cancel forces
// the failure state. Only the first terminal transition is recorded: a
// stream that is canceled twice retains its first cause.
//
// The [*Channel] type satisfies this interface.
type ReadStream interface {
	io.Reader

	// Cancel terminates the stream with the given cause. A nil cause is
	// replaced with [ErrCanceled].
	Cancel(cause error)
}

// WriteStream is the writable side of a byte stream.
//
// Closing with a nil cause signals normal end-of-data. Closing with a non-nil
// cause terminates the stream with a failure. Only the first terminal
// transition is recorded.
//
// The [*Channel] type satisfies this interface.
type WriteStream interface {
	io.Writer

	// CloseWithError terminates the stream. A nil cause means end-of-data.
	CloseWithError(cause error) error
}

// ErrCanceled is the cause recorded when a stream is canceled without one.
var ErrCanceled = errors.New("stream canceled")

// TerminalKind is the kind of a stream [Terminal] state.
type TerminalKind int

const (
	// TerminalOpen means the stream has not reached a terminal state yet.
	TerminalOpen TerminalKind = iota

	// TerminalNormal means the stream reached end-of-data.
	TerminalNormal

	// TerminalFailure means the stream was closed or canceled with a cause.
	TerminalFailure
)

// String implements [fmt.Stringer].
func (k TerminalKind) String() string {
	switch k {
	case TerminalNormal:
		return "normal"
	case TerminalFailure:
		return "failure"
	default:
		return "open"
	}
}

// Terminal is the terminal state of a stream.
//
// Cause is nil unless Kind is [TerminalFailure].
type Terminal struct {
	Kind  TerminalKind
	Cause error
}

// Err returns the failure cause or nil.
func (t Terminal) Err() error {
	return t.Cause
}
