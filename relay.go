// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// RelayState is the state of a [*Relay].
//
// The state machine is Created, then Relaying, then exactly one of the
// terminal states. There is no transition out of a terminal state.
type RelayState int32

const (
	// RelayCreated means the relay has been spawned but is not running yet.
	RelayCreated RelayState = iota

	// RelayRelaying means the relay is copying bytes.
	RelayRelaying

	// RelayNormal means the source reached end-of-data.
	RelayNormal

	// RelayMappedFailure means the copy failed with an engine timeout
	// marker that was replaced with the canonical timeout error.
	RelayMappedFailure

	// RelayUnmappedFailure means the copy failed with an error
	// that was propagated unchanged.
	RelayUnmappedFailure
)

// String implements [fmt.Stringer].
func (s RelayState) String() string {
	switch s {
	case RelayCreated:
		return "created"
	case RelayRelaying:
		return "relaying"
	case RelayNormal:
		return "normal"
	case RelayMappedFailure:
		return "mappedFailure"
	case RelayUnmappedFailure:
		return "unmappedFailure"
	default:
		return "unknown"
	}
}

// IsTerminal returns whether s is a terminal state.
func (s RelayState) IsTerminal() bool {
	return s >= RelayNormal
}

// Relay directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Relay is the handle of the background task copying bytes between the
// engine stream and the consumer-facing replacement channel.
//
// The relay is the sole reader of its source and the sole writer of its
// destination. When the copy fails, the relay terminates the opposite
// stream with the failure cause, so both streams fail together.
type Relay struct {
	bytesCount atomic.Int64
	cancel     context.CancelCauseFunc
	direction  string
	done       chan struct{}
	err        error
	state      atomic.Int32
}

// BytesCount returns the number of bytes relayed so far.
func (r *Relay) BytesCount() int64 {
	return r.bytesCount.Load()
}

// Cancel tears down the relay, terminating both streams with cause.
// A nil cause is replaced with [ErrCanceled].
func (r *Relay) Cancel(cause error) {
	if cause == nil {
		cause = ErrCanceled
	}
	r.cancel(cause)
}

// Direction returns either [DirectionInbound] or [DirectionOutbound].
func (r *Relay) Direction() string {
	return r.direction
}

// Done returns a channel closed when the relay reaches a terminal state.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// State returns the current [RelayState].
func (r *Relay) State() RelayState {
	return RelayState(r.state.Load())
}

// Wait blocks until the relay reaches a terminal state and returns
// the failure as observed by the consumer or nil on normal end-of-data.
func (r *Relay) Wait() error {
	<-r.done
	return r.err
}

// relayContext contains the configuration used by a [*Relay].
type relayContext struct {
	bufferSize    int
	direction     string
	errClassifier ErrClassifier
	logger        SLogger
	policy        Policy
	replacement   *Channel
	request       *RequestData
	timeNow       func() time.Time
}

// startRelay spawns on sup a [*Relay] copying src into dst.
func (rc *relayContext) startRelay(sup *Supervisor, src ReadStream, dst WriteStream) *Relay {
	r := &Relay{
		direction: rc.direction,
		done:      make(chan struct{}),
	}
	r.state.Store(int32(RelayCreated))
	r.cancel = sup.Spawn(func(ctx context.Context) error {
		rc.run(ctx, r, src, dst)
		return r.err
	})
	return r
}

func (rc *relayContext) run(ctx context.Context, r *Relay, src ReadStream, dst WriteStream) {
	t0 := rc.timeNow()
	r.state.Store(int32(RelayRelaying))
	rc.logRelayStart(t0)

	// Tearing down the task context terminates both streams, which
	// in turn unblocks any pending I/O performed by the copy loop.
	stop := context.AfterFunc(ctx, func() {
		cause := context.Cause(ctx)
		src.Cancel(cause)
		dst.CloseWithError(cause)
	})

	err := rc.copy(r, src, dst)
	stop()
	if err != nil && ctx.Err() != nil {
		err = context.Cause(ctx)
		src.Cancel(err)
		dst.CloseWithError(err)
	}

	// The consumer observes the cause recorded by the replacement, which
	// may differ from err when the consumer terminated it first.
	final := MapSocketCause(rc.policy, rc.request, err)
	if term := rc.replacement.Terminal(); err != nil && term.Kind == TerminalFailure {
		final = term.Cause
	}
	mapped := err != nil && !isCanonicalTimeout(err) && isCanonicalTimeout(final)
	switch {
	case err == nil:
		r.state.Store(int32(RelayNormal))
	case mapped:
		r.state.Store(int32(RelayMappedFailure))
	default:
		r.state.Store(int32(RelayUnmappedFailure))
	}
	r.err = final
	rc.logRelayDone(t0, r.BytesCount(), err, final, mapped)
	close(r.done)
}

// copy copies src into dst until end-of-data or failure. On end-of-data
// it closes dst normally. On read failure it closes dst with the cause.
// On write failure it cancels src with the cause.
func (rc *relayContext) copy(r *Relay, src ReadStream, dst WriteStream) error {
	buffer := make([]byte, rc.bufferSize)
	for {
		count, err := src.Read(buffer)
		if count > 0 {
			rc.logRelayTransfer(count)
			if _, werr := dst.Write(buffer[:count]); werr != nil {
				src.Cancel(werr)
				return werr
			}
			r.bytesCount.Add(int64(count))
		}
		if errors.Is(err, io.EOF) {
			dst.CloseWithError(nil)
			return nil
		}
		if err != nil {
			dst.CloseWithError(err)
			return err
		}
	}
}

func (rc *relayContext) logRelayStart(t0 time.Time) {
	rc.logger.Info(
		"relayStart",
		slog.String("direction", rc.direction),
		slog.String("engine", rc.policy.Name()),
		slog.String("spanID", rc.request.spanID()),
		slog.Time("t", t0),
	)
}

func (rc *relayContext) logRelayTransfer(count int) {
	rc.logger.Debug(
		"relayTransfer",
		slog.String("direction", rc.direction),
		slog.Int("ioBytesCount", count),
		slog.String("spanID", rc.request.spanID()),
		slog.Time("t", rc.timeNow()),
	)
}

func (rc *relayContext) logRelayDone(t0 time.Time, count int64, origErr, err error, mapped bool) {
	rc.logger.Info(
		"relayDone",
		slog.String("direction", rc.direction),
		slog.String("engine", rc.policy.Name()),
		slog.Any("err", err),
		slog.String("errClass", rc.errClassifier.Classify(err)),
		slog.Int64("ioBytesCount", count),
		slog.Bool("mapped", mapped),
		slog.Any("origErr", origErr),
		slog.String("spanID", rc.request.spanID()),
		slog.Time("t0", t0),
		slog.Time("t", rc.timeNow()),
	)
}
