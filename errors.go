// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"net"
	"time"
)

// ConnectTimeoutError is the canonical error for an expired connect timeout.
//
// The Message is the message of the engine error that signaled the timeout
// and Unwrap returns that error. The remaining fields carry diagnostic
// context taken from the [*RequestData] and may be empty.
type ConnectTimeoutError struct {
	// Cause is the engine-specific error that signaled the timeout.
	Cause error

	// ConnectTimeout is the configured connect timeout, if any.
	ConnectTimeout time.Duration

	// Message is the error message.
	Message string

	// SpanID is the span ID of the request, if any.
	SpanID string

	// URL is the request URL, if any.
	URL string
}

var _ net.Error = &ConnectTimeoutError{}

// Error implements [error].
func (e *ConnectTimeoutError) Error() string {
	return e.Message
}

// Unwrap returns the engine-specific cause.
func (e *ConnectTimeoutError) Unwrap() error {
	return e.Cause
}

// Timeout implements [net.Error]. It always returns true.
func (e *ConnectTimeoutError) Timeout() bool {
	return true
}

// Temporary implements [net.Error]. It always returns false.
func (e *ConnectTimeoutError) Temporary() bool {
	return false
}

// SocketTimeoutError is the canonical error for an expired read or write
// (socket) timeout.
//
// The Message is the message of the engine error that signaled the timeout
// and Unwrap returns that error. The remaining fields carry diagnostic
// context taken from the [*RequestData] and may be empty.
type SocketTimeoutError struct {
	// Cause is the engine-specific error that signaled the timeout.
	Cause error

	// Message is the error message.
	Message string

	// SocketTimeout is the configured socket timeout, if any.
	SocketTimeout time.Duration

	// SpanID is the span ID of the request, if any.
	SpanID string

	// URL is the request URL, if any.
	URL string
}

var _ net.Error = &SocketTimeoutError{}

// Error implements [error].
func (e *SocketTimeoutError) Error() string {
	return e.Message
}

// Unwrap returns the engine-specific cause.
func (e *SocketTimeoutError) Unwrap() error {
	return e.Cause
}

// Timeout implements [net.Error]. It always returns true.
func (e *SocketTimeoutError) Timeout() bool {
	return true
}

// Temporary implements [net.Error]. It always returns false.
func (e *SocketTimeoutError) Temporary() bool {
	return false
}
