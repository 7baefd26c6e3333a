//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/tlsdialer.go
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/tls.go
//

package timeoutmap

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// TLSEngine creates client [TLSConn] instances.
type TLSEngine interface {
	// Client wraps conn into a client [TLSConn] using config.
	Client(conn net.Conn, config *tls.Config) TLSConn

	// Name returns the engine name.
	Name() string
}

// TLSEngineStdlib implements [TLSEngine] using [crypto/tls].
//
// The zero value is ready to use.
type TLSEngineStdlib struct{}

var _ TLSEngine = TLSEngineStdlib{}

// Client implements [TLSEngine] using [tls.Client].
func (TLSEngineStdlib) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Client(conn, config)
}

// Name implements [TLSEngine]. It returns "stdlib".
func (TLSEngineStdlib) Name() string {
	return "stdlib"
}

// TLSConn abstracts over [*tls.Conn].
type TLSConn interface {
	// ConnectionState returns the connection state.
	ConnectionState() tls.ConnectionState

	// HandshakeContext performs the handshake unless interrupted by the context.
	HandshakeContext(ctx context.Context) error

	net.Conn
}

// connectionStater is the part of [TLSConn] used for ALPN detection.
type connectionStater interface {
	ConnectionState() tls.ConnectionState
}

// NewTLSHandshakeFunc returns a new [*TLSHandshakeFunc] using the given [*tls.Config].
//
// The cfg argument contains the common configuration for timeoutmap operations.
//
// The tlsConfig argument is the TLS configuration to use.
//
// The req argument is the request metadata attached to connect timeout errors.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewTLSHandshakeFunc(cfg *Config, tlsConfig *tls.Config, req *RequestData, logger SLogger) *TLSHandshakeFunc {
	runtimex.Assert(tlsConfig != nil)
	return &TLSHandshakeFunc{
		Config:        tlsConfig,
		Engine:        TLSEngineStdlib{},
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Policy:        cfg.Policy,
		Request:       req,
		TimeNow:       cfg.TimeNow,
	}
}

// TLSHandshakeFunc performs a TLS handshake over an existing [net.Conn] and
// maps handshake timeouts to [*ConnectTimeoutError].
//
// The handshake belongs to the connect phase: an expired conn deadline, or
// any other engine timeout while the caller's context is still alive, is a
// connect timeout. On failure, the input conn is closed.
//
// Returns either a valid [TLSConn] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type TLSHandshakeFunc struct {
	// Config contains the [*tls.Config] configuration to use.
	//
	// Set by [NewTLSHandshakeFunc] to the user-provided [*tls.Config] pointer.
	Config *tls.Config

	// Engine is the [TLSEngine] to use to handshake.
	//
	// Set by [NewTLSHandshakeFunc] to [TLSEngineStdlib].
	Engine TLSEngine

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewTLSHandshakeFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewTLSHandshakeFunc] to the user-provided logger.
	Logger SLogger

	// Policy is the engine exception mapping [Policy].
	//
	// Set by [NewTLSHandshakeFunc] from [Config.Policy].
	Policy Policy

	// Request is the request metadata.
	//
	// Set by [NewTLSHandshakeFunc] to the user-provided value.
	Request *RequestData

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewTLSHandshakeFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, TLSConn] = &TLSHandshakeFunc{}

// Call invokes the [*TLSHandshakeFunc] to create a [TLSConn] from a [net.Conn].
func (op *TLSHandshakeFunc) Call(ctx context.Context, conn net.Conn) (TLSConn, error) {
	runtimex.Assert(op.Config != nil)
	config := op.Config.Clone()
	config.Time = op.TimeNow
	tconn := op.Engine.Client(conn, config)

	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logHandshakeStart(conn, t0, deadline, config)
	err := tconn.HandshakeContext(ctx)
	if err != nil {
		tconn.Close()
		err = mapConnectPhaseError(ctx, op.Policy, op.Request, err)
		op.logHandshakeDone(conn, t0, deadline, config, err, tls.ConnectionState{})
		return nil, err
	}
	op.logHandshakeDone(conn, t0, deadline, config, nil, tconn.ConnectionState())
	return tconn, nil
}

func (op *TLSHandshakeFunc) logHandshakeStart(
	conn net.Conn, t0 time.Time, deadline time.Time, config *tls.Config) {
	op.Logger.Info(
		"tlsHandshakeStart",
		slog.Time("deadline", deadline),
		slog.String("engine", op.Policy.Name()),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("spanID", op.Request.spanID()),
		slog.Time("t", t0),
		slog.String("tlsEngineName", op.Engine.Name()),
		slog.Any("tlsOfferedProtocols", config.NextProtos),
		slog.String("tlsServerName", config.ServerName),
	)
}

func (op *TLSHandshakeFunc) logHandshakeDone(conn net.Conn, t0 time.Time,
	deadline time.Time, config *tls.Config, err error, state tls.ConnectionState) {
	op.Logger.Info(
		"tlsHandshakeDone",
		slog.Time("deadline", deadline),
		slog.String("engine", op.Policy.Name()),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.String("spanID", op.Request.spanID()),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
		slog.String("tlsEngineName", op.Engine.Name()),
		slog.String("tlsNegotiatedProtocol", state.NegotiatedProtocol),
		slog.String("tlsServerName", config.ServerName),
		slog.String("tlsVersion", tls.VersionName(state.Version)),
	)
}
