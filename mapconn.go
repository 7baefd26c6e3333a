//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package timeoutmap

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// NewMapConnFunc returns a new [*MapConnFunc].
//
// The arguments have the same meaning as in [NewMapInboundFunc].
func NewMapConnFunc(cfg *Config, sup *Supervisor, req *RequestData, logger SLogger) *MapConnFunc {
	runtimex.Assert(sup != nil)
	return &MapConnFunc{
		BufferSize:    cfg.BufferSize,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Policy:        cfg.Policy,
		Request:       req,
		Supervisor:    sup,
		TimeNow:       cfg.TimeNow,
	}
}

// MapConnFunc maps the exceptions of both directions of a [net.Conn].
//
// The returned [net.Conn] reads through a [*MapInboundFunc] mapping and
// writes through a [*MapOutboundFunc] mapping of the input connection.
// Deadlines are forwarded to the input connection, hence an expired deadline
// surfaces as [*SocketTimeoutError] rather than [os.ErrDeadlineExceeded].
// Like any failure, a mapped timeout terminates the connection.
//
// The two directions fail together: a failure of either direction is
// also observed by the next I/O operation in the other direction.
//
// Closing the returned conn waits for buffered writes to be flushed. Set a
// write deadline to bound the time Close may block. Tearing down the
// [*Supervisor] aborts a pending flush and Close returns the teardown cause.
//
// When the input conn has a TLS connection state (e.g., [TLSConn]), the
// returned conn exposes it through a ConnectionState method, so that
// [HTTPConnFunc] still selects HTTP/2 when "h2" was negotiated.
//
// When the [Policy] is natively canonical, Call returns the input conn.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type MapConnFunc struct {
	// BufferSize is the replacement channel and relay buffer size.
	//
	// Set by [NewMapConnFunc] from [Config.BufferSize].
	BufferSize int

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewMapConnFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewMapConnFunc] to the user-provided logger.
	Logger SLogger

	// Policy is the engine exception mapping [Policy].
	//
	// Set by [NewMapConnFunc] from [Config.Policy].
	Policy Policy

	// Request is the request metadata.
	//
	// Set by [NewMapConnFunc] to the user-provided value.
	Request *RequestData

	// Supervisor owns the spawned relays.
	//
	// Set by [NewMapConnFunc] to the user-provided value.
	Supervisor *Supervisor

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewMapConnFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &MapConnFunc{}

// Call implements [Func]. It never returns an error.
func (op *MapConnFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	if op.Policy.NativeCanonical() {
		return conn, nil
	}
	inbound := &MapInboundFunc{
		BufferSize:    op.BufferSize,
		ErrClassifier: op.ErrClassifier,
		Logger:        op.Logger,
		Policy:        op.Policy,
		Request:       op.Request,
		Supervisor:    op.Supervisor,
		TimeNow:       op.TimeNow,
	}
	outbound := &MapOutboundFunc{
		BufferSize:    op.BufferSize,
		ErrClassifier: op.ErrClassifier,
		Logger:        op.Logger,
		Policy:        op.Policy,
		Request:       op.Request,
		Supervisor:    op.Supervisor,
		TimeNow:       op.TimeNow,
	}
	mc := &mappedConn{
		Conn:     conn,
		inbound:  inbound.Map(NewConnReadStream(conn)),
		laddr:    safeconn.LocalAddr(conn),
		op:       op,
		outbound: outbound.Map(NewConnWriteStream(conn)),
		protocol: safeconn.Network(conn),
		raddr:    safeconn.RemoteAddr(conn),
	}
	mc.inbound.replacement.AfterClose(func(term Terminal) {
		if term.Kind == TerminalFailure {
			mc.outbound.replacement.CloseWithError(term.Cause)
		}
	})
	mc.outbound.replacement.AfterClose(func(term Terminal) {
		if term.Kind == TerminalFailure {
			mc.inbound.replacement.Cancel(term.Cause)
		}
	})
	return mc, nil
}

// mappedConn is a [net.Conn] whose I/O goes through the mappers.
//
// The embedded conn provides addresses and deadlines.
type mappedConn struct {
	net.Conn
	closeOnce sync.Once
	inbound   *Mapping[ReadStream]
	laddr     string
	op        *MapConnFunc
	outbound  *Mapping[WriteStream]
	protocol  string
	raddr     string
}

// Read implements [net.Conn].
func (c *mappedConn) Read(buffer []byte) (int, error) {
	return c.inbound.Stream.Read(buffer)
}

// Write implements [net.Conn].
func (c *mappedConn) Write(data []byte) (int, error) {
	return c.outbound.Stream.Write(data)
}

// ConnectionState returns the TLS connection state of the underlying
// conn or the zero value when the underlying conn is not a TLS conn.
func (c *mappedConn) ConnectionState() tls.ConnectionState {
	if csp, ok := c.Conn.(connectionStater); ok {
		return csp.ConnectionState()
	}
	return tls.ConnectionState{}
}

// Close implements [net.Conn].
//
// Close returns the error that occurred while flushing buffered writes,
// unless a previous Read or Write has already observed a failure, and
// otherwise the error closing the underlying conn. Subsequent calls
// return [net.ErrClosed].
func (c *mappedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeOnce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info(
			"closeStart",
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.String("spanID", c.op.Request.spanID()),
			slog.Time("t", t0),
		)

		wasOpen := c.outbound.replacement.Terminal().Kind == TerminalOpen
		c.outbound.replacement.CloseWithError(nil)
		var flushErr error
		select {
		case <-c.outbound.Relay.Done():
			flushErr = c.outbound.Relay.Wait()
		case <-c.op.Supervisor.Context().Done():
			flushErr = context.Cause(c.op.Supervisor.Context())
			select {
			case <-c.outbound.Relay.Done():
				flushErr = c.outbound.Relay.Wait()
			default:
			}
		}
		err = c.Conn.Close()
		c.inbound.replacement.Cancel(net.ErrClosed)
		if wasOpen && flushErr != nil {
			err = flushErr
		}

		c.op.Logger.Info(
			"closeDone",
			slog.Any("err", err),
			slog.String("errClass", c.op.ErrClassifier.Classify(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.String("spanID", c.op.Request.spanID()),
			slog.Time("t0", t0),
			slog.Time("t", c.op.TimeNow()),
		)
	})
	return
}
