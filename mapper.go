// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"context"
	"time"

	"github.com/bassosimone/runtimex"
)

// Mapping is the result of mapping an engine stream.
type Mapping[S any] struct {
	// Stream is the stream the consumer must use instead of the engine stream.
	Stream S

	// Relay is the relay task handle, or nil when the policy is
	// natively canonical and Stream is the engine stream itself.
	Relay *Relay

	// replacement is the replacement channel, or nil when bypassed.
	replacement *Channel
}

// NewMapInboundFunc returns a new [*MapInboundFunc].
//
// The cfg argument contains the common configuration for timeoutmap operations.
//
// The sup argument is the [*Supervisor] owning the spawned relays.
//
// The req argument is the request metadata passed to the [Policy].
//
// The logger argument is the [SLogger] to use for structured logging.
func NewMapInboundFunc(cfg *Config, sup *Supervisor, req *RequestData, logger SLogger) *MapInboundFunc {
	runtimex.Assert(sup != nil)
	return &MapInboundFunc{
		BufferSize:    cfg.BufferSize,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Policy:        cfg.Policy,
		Request:       req,
		Supervisor:    sup,
		TimeNow:       cfg.TimeNow,
	}
}

// MapInboundFunc maps the exceptions of a [ReadStream] produced by a
// network engine.
//
// Unless the [Policy] is natively canonical, the consumer reads from a
// replacement [*Channel] filled by a [*Relay]. When the engine stream fails
// with a timeout marker, the consumer observes the canonical socket timeout
// error instead. When the consumer cancels the replacement, the engine
// stream is canceled with the same cause.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type MapInboundFunc struct {
	// BufferSize is the replacement channel and relay buffer size.
	//
	// Set by [NewMapInboundFunc] from [Config.BufferSize].
	BufferSize int

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewMapInboundFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewMapInboundFunc] to the user-provided logger.
	Logger SLogger

	// Policy is the engine exception mapping [Policy].
	//
	// Set by [NewMapInboundFunc] from [Config.Policy].
	Policy Policy

	// Request is the request metadata.
	//
	// Set by [NewMapInboundFunc] to the user-provided value.
	Request *RequestData

	// Supervisor owns the spawned relays.
	//
	// Set by [NewMapInboundFunc] to the user-provided value.
	Supervisor *Supervisor

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewMapInboundFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[ReadStream, ReadStream] = &MapInboundFunc{}

// Call implements [Func]. It never returns an error.
func (op *MapInboundFunc) Call(ctx context.Context, source ReadStream) (ReadStream, error) {
	return op.Map(source).Stream, nil
}

// Map maps source and returns the [*Mapping] without blocking.
func (op *MapInboundFunc) Map(source ReadStream) *Mapping[ReadStream] {
	if op.Policy.NativeCanonical() {
		return &Mapping[ReadStream]{Stream: source}
	}

	replacement := op.Policy.NewReplacementChannel(op.Request, op.BufferSize)
	replacement.AfterClose(func(term Terminal) {
		if term.Kind == TerminalFailure {
			source.Cancel(term.Cause)
		}
	})

	rc := &relayContext{
		bufferSize:    op.BufferSize,
		direction:     DirectionInbound,
		errClassifier: op.ErrClassifier,
		logger:        op.Logger,
		policy:        op.Policy,
		replacement:   replacement,
		request:       op.Request,
		timeNow:       op.TimeNow,
	}
	relay := rc.startRelay(op.Supervisor, source, replacement)
	return &Mapping[ReadStream]{Stream: replacement, Relay: relay, replacement: replacement}
}

// NewMapOutboundFunc returns a new [*MapOutboundFunc].
//
// The arguments have the same meaning as in [NewMapInboundFunc].
func NewMapOutboundFunc(cfg *Config, sup *Supervisor, req *RequestData, logger SLogger) *MapOutboundFunc {
	runtimex.Assert(sup != nil)
	return &MapOutboundFunc{
		BufferSize:    cfg.BufferSize,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Policy:        cfg.Policy,
		Request:       req,
		Supervisor:    sup,
		TimeNow:       cfg.TimeNow,
	}
}

// MapOutboundFunc maps the exceptions of a [WriteStream] consumed by a
// network engine.
//
// Unless the [Policy] is natively canonical, the consumer writes into a
// replacement [*Channel] drained by a [*Relay]. When writing to the engine
// stream fails, the replacement is closed with the mapped cause, so the
// next consumer write observes the canonical error for timeout markers.
// Closing the replacement with a cause closes the engine stream with the
// same cause; closing it normally flushes and then closes the engine stream.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type MapOutboundFunc struct {
	// BufferSize is the replacement channel and relay buffer size.
	//
	// Set by [NewMapOutboundFunc] from [Config.BufferSize].
	BufferSize int

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewMapOutboundFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewMapOutboundFunc] to the user-provided logger.
	Logger SLogger

	// Policy is the engine exception mapping [Policy].
	//
	// Set by [NewMapOutboundFunc] from [Config.Policy].
	Policy Policy

	// Request is the request metadata.
	//
	// Set by [NewMapOutboundFunc] to the user-provided value.
	Request *RequestData

	// Supervisor owns the spawned relays.
	//
	// Set by [NewMapOutboundFunc] to the user-provided value.
	Supervisor *Supervisor

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewMapOutboundFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[WriteStream, WriteStream] = &MapOutboundFunc{}

// Call implements [Func]. It never returns an error.
func (op *MapOutboundFunc) Call(ctx context.Context, destination WriteStream) (WriteStream, error) {
	return op.Map(destination).Stream, nil
}

// Map maps destination and returns the [*Mapping] without blocking.
func (op *MapOutboundFunc) Map(destination WriteStream) *Mapping[WriteStream] {
	if op.Policy.NativeCanonical() {
		return &Mapping[WriteStream]{Stream: destination}
	}

	replacement := op.Policy.NewReplacementChannel(op.Request, op.BufferSize)
	replacement.AfterClose(func(term Terminal) {
		if term.Kind == TerminalFailure {
			destination.CloseWithError(term.Cause)
		}
	})

	rc := &relayContext{
		bufferSize:    op.BufferSize,
		direction:     DirectionOutbound,
		errClassifier: op.ErrClassifier,
		logger:        op.Logger,
		policy:        op.Policy,
		replacement:   replacement,
		request:       op.Request,
		timeNow:       op.TimeNow,
	}
	relay := rc.startRelay(op.Supervisor, replacement, destination)
	return &Mapping[WriteStream]{Stream: replacement, Relay: relay, replacement: replacement}
}
