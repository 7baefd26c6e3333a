// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"net"
	"time"
)

// Config holds common configuration for timeoutmap operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// BufferSize is the size of replacement channels and relay buffers.
	//
	// Set by [NewConfig] to [DefaultChannelSize].
	BufferSize int

	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Policy is the engine exception mapping [Policy].
	//
	// Set by [NewConfig] to [StdlibPolicy], matching [*net.Dialer].
	Policy Policy

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		BufferSize:    DefaultChannelSize,
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		Policy:        StdlibPolicy(),
		TimeNow:       time.Now,
	}
}
