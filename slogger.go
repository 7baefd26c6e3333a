//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package timeoutmap

// SLogger abstracts the [*slog.Logger] behavior.
//
// This package uses two log levels:
//   - Info for lifecycle events (relay start and done, connect, HTTP round
//     trip, HTTP body stream)
//   - Debug for per-chunk relay transfers
//
// The [*slog.Logger] type satisfies this interface.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// DefaultSLogger returns the default [SLogger], which discards all output.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {}
