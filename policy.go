// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"errors"
	"os"

	"github.com/bassosimone/timeoutmap/errno"
)

// Policy is the per-engine exception mapping policy.
//
// Each network engine signals an expired timeout in its own way. A Policy
// recognizes the engine-specific signal (the "timeout marker") and knows how
// to build the canonical replacement errors. The relay never inspects
// engine errors directly: all the engine knowledge lives here.
//
// Select the policy matching the engine in use through [Config.Policy].
type Policy interface {
	// Name returns the engine name used in structured logs.
	Name() string

	// NativeCanonical returns whether the engine already produces
	// canonical timeout errors, in which case mappers return the
	// engine streams unchanged.
	NativeCanonical() bool

	// IsTimeoutMarker returns whether err is the engine-specific
	// signal for an operation aborted because of a timeout.
	IsTimeoutMarker(err error) bool

	// NewReplacementChannel returns the intermediary [*Channel] used
	// by mappers. The channel must map close causes using [MapSocketCause].
	NewReplacementChannel(req *RequestData, size int) *Channel

	// NewConnectTimeout returns the canonical connect timeout error.
	NewConnectTimeout(req *RequestData, message string, cause error) error

	// NewSocketTimeout returns the canonical socket timeout error.
	NewSocketTimeout(req *RequestData, message string, cause error) error
}

// MapSocketCause applies the socket timeout substitution rule.
//
// When the policy recognizes cause as a timeout marker, the result is the
// canonical socket timeout error with the same message, wrapping cause.
// Otherwise, including when cause is nil or already canonical, the result
// is cause itself.
func MapSocketCause(p Policy, req *RequestData, cause error) error {
	if cause == nil || isCanonicalTimeout(cause) || !p.IsTimeoutMarker(cause) {
		return cause
	}
	return p.NewSocketTimeout(req, cause.Error(), cause)
}

// MapConnectCause is like [MapSocketCause] but substitutes the canonical
// connect timeout error.
func MapConnectCause(p Policy, req *RequestData, cause error) error {
	if cause == nil || isCanonicalTimeout(cause) || !p.IsTimeoutMarker(cause) {
		return cause
	}
	return p.NewConnectTimeout(req, cause.Error(), cause)
}

func isCanonicalTimeout(err error) bool {
	var (
		connectErr *ConnectTimeoutError
		socketErr  *SocketTimeoutError
	)
	return errors.As(err, &socketErr) || errors.As(err, &connectErr)
}

// EnginePolicy implements [Policy] given the engine name, whether it is
// natively canonical, and its timeout marker predicate.
//
// Use [StdlibPolicy], [QUICPolicy], or [NativePolicy] for the engines
// supported out of the box.
type EnginePolicy struct {
	// EngineName is the engine name.
	EngineName string

	// IsMarkerFunc recognizes the engine timeout markers.
	//
	// A nil value recognizes no error as a marker.
	IsMarkerFunc func(err error) bool

	// Native is the value returned by NativeCanonical.
	Native bool
}

var _ Policy = &EnginePolicy{}

// Name implements [Policy].
func (p *EnginePolicy) Name() string {
	return p.EngineName
}

// NativeCanonical implements [Policy].
func (p *EnginePolicy) NativeCanonical() bool {
	return p.Native
}

// IsTimeoutMarker implements [Policy].
func (p *EnginePolicy) IsTimeoutMarker(err error) bool {
	return err != nil && p.IsMarkerFunc != nil && p.IsMarkerFunc(err)
}

// NewReplacementChannel implements [Policy].
func (p *EnginePolicy) NewReplacementChannel(req *RequestData, size int) *Channel {
	return NewChannel(size, func(cause error) error {
		return MapSocketCause(p, req, cause)
	})
}

// NewConnectTimeout implements [Policy].
func (p *EnginePolicy) NewConnectTimeout(req *RequestData, message string, cause error) error {
	err := &ConnectTimeoutError{Cause: cause, Message: message}
	if req != nil {
		err.ConnectTimeout = req.Timeouts.Connect
		err.SpanID = req.SpanID
		err.URL = req.URL
	}
	return err
}

// NewSocketTimeout implements [Policy].
func (p *EnginePolicy) NewSocketTimeout(req *RequestData, message string, cause error) error {
	err := &SocketTimeoutError{Cause: cause, Message: message}
	if req != nil {
		err.SocketTimeout = req.Timeouts.Socket
		err.SpanID = req.SpanID
		err.URL = req.URL
	}
	return err
}

// StdlibPolicy returns the [*EnginePolicy] for the [net] package engine.
//
// Its timeout markers are [os.ErrDeadlineExceeded], which the engine returns
// when a deadline set with SetDeadline and friends expires, and the platform
// ETIMEDOUT errno, which the kernel returns when the connection times out.
func StdlibPolicy() *EnginePolicy {
	return &EnginePolicy{
		EngineName:   "stdlib",
		IsMarkerFunc: isStdlibTimeoutMarker,
	}
}

func isStdlibTimeoutMarker(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) || errno.IsTimedOut(err)
}

// NativePolicy returns the [*EnginePolicy] for an engine that already
// produces canonical timeout errors. Mappers using it never wrap streams.
func NativePolicy() *EnginePolicy {
	return &EnginePolicy{
		EngineName: "native",
		Native:     true,
	}
}
