//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package timeoutmap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewConnectFunc returns a new [*ConnectFunc].
//
// The cfg argument contains the common configuration for timeoutmap operations.
//
// The network argument must be either "tcp" or "udp".
//
// The req argument is the request metadata attached to connect timeout errors.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewConnectFunc(cfg *Config, network string, req *RequestData, logger SLogger) *ConnectFunc {
	return &ConnectFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Network:       network,
		Policy:        cfg.Policy,
		Request:       req,
		TimeNow:       cfg.TimeNow,
	}
}

// ConnectFunc dials a [netip.AddrPort] and maps the engine-specific dial
// timeout markers to [*ConnectTimeoutError].
//
// The engine's own connect timeout (e.g., [net.Dialer.Timeout]) is reported
// as a [net.Error] whose Timeout method returns true. ConnectFunc maps such
// errors too, unless the caller's context is done, in which case the failure
// is a request-level timeout and is returned unchanged.
//
// Returns either a valid [net.Conn] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ConnectFunc struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewConnectFunc] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConnectFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewConnectFunc] to the user-provided logger.
	Logger SLogger

	// Network is the network to use (either "tcp" or "udp").
	//
	// Set by [NewConnectFunc] to the user-provided value.
	Network string

	// Policy is the engine exception mapping [Policy].
	//
	// Set by [NewConnectFunc] from [Config.Policy].
	Policy Policy

	// Request is the request metadata.
	//
	// Set by [NewConnectFunc] to the user-provided value.
	Request *RequestData

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewConnectFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[netip.AddrPort, net.Conn] = &ConnectFunc{}

// Call invokes the [*ConnectFunc] to connect to the given [netip.AddrPort].
func (op *ConnectFunc) Call(ctx context.Context, address netip.AddrPort) (net.Conn, error) {
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logConnectStart(address.String(), t0, deadline)
	conn, err := op.Dialer.DialContext(ctx, op.Network, address.String())
	if err != nil {
		conn = nil
		err = mapConnectPhaseError(ctx, op.Policy, op.Request, err)
	}
	op.logConnectDone(address.String(), t0, deadline, conn, err)
	return conn, err
}

// mapConnectPhaseError maps an error occurring while establishing a connection.
//
// Besides the policy timeout markers, a [net.Error] reporting a timeout is
// a connect timeout when ctx is not done, since then the deadline that
// expired belongs to the engine rather than to the caller.
func mapConnectPhaseError(ctx context.Context, p Policy, req *RequestData, err error) error {
	if err == nil || p.NativeCanonical() || isCanonicalTimeout(err) {
		return err
	}
	if ctx.Err() == nil && isNetTimeout(err) {
		return p.NewConnectTimeout(req, err.Error(), err)
	}
	return MapConnectCause(p, req, err)
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (op *ConnectFunc) logConnectStart(address string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("engine", op.Policy.Name()),
		slog.String("protocol", op.Network),
		slog.String("remoteAddr", address),
		slog.String("spanID", op.Request.spanID()),
		slog.Time("t", t0),
	)
}

func (op *ConnectFunc) logConnectDone(
	address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.String("engine", op.Policy.Name()),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", op.Network),
		slog.String("remoteAddr", address),
		slog.String("spanID", op.Request.spanID()),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
