//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/httpslog/httpslog.go
//

package timeoutmap

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
	"github.com/bassosimone/sud"
	"golang.org/x/net/http2"
)

// HTTPConn is an HTTP transport bound to a single connection that maps the
// engine-specific timeout markers to canonical timeout errors.
//
// A round trip failing with a timeout marker returns [*SocketTimeoutError].
// The response body is routed through a [*MapInboundFunc] mapping, so that
// a timeout while streaming the body is observed as [*SocketTimeoutError].
//
// The caller is responsible for calling [HTTPConn.Close].
//
// Construct using [NewHTTPConnFunc].
type HTTPConn struct {
	// conn is the underlying connection.
	conn net.Conn

	// txp is the HTTP transport.
	txp http.RoundTripper

	// closeIdleFunc closes idle connections in the transport.
	closeIdleFunc func()

	// BufferSize is the replacement channel and relay buffer size.
	BufferSize int

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	Logger SLogger

	// Policy is the engine exception mapping [Policy].
	Policy Policy

	// Supervisor owns the relays mapping response bodies.
	Supervisor *Supervisor

	// Timeouts is the diagnostic context attached to each [*RequestData].
	Timeouts TimeoutConfig

	// TimeNow is the function to get the current time (configurable for testing).
	TimeNow func() time.Time
}

// RoundTrip implements [http.RoundTripper].
func (hc *HTTPConn) RoundTrip(req *http.Request) (*http.Response, error) {
	rd := NewRequestData(req, hc.Timeouts)

	t0 := hc.TimeNow()
	deadline, _ := req.Context().Deadline()
	hc.logRoundTripStart(rd, req, t0, deadline)

	resp, err := hc.txp.RoundTrip(req)
	if err != nil && !hc.Policy.NativeCanonical() {
		err = MapSocketCause(hc.Policy, rd, err)
	}

	hc.logRoundTripDone(rd, req, t0, deadline, resp, err)
	if err != nil {
		return nil, err
	}

	resp.Body = hc.mapBody(rd, resp.Body)
	return resp, nil
}

func (hc *HTTPConn) mapBody(rd *RequestData, body io.ReadCloser) io.ReadCloser {
	source := &readCloserStream{rc: body}
	op := &MapInboundFunc{
		BufferSize:    hc.BufferSize,
		ErrClassifier: hc.ErrClassifier,
		Logger:        hc.Logger,
		Policy:        hc.Policy,
		Request:       rd,
		Supervisor:    hc.Supervisor,
		TimeNow:       hc.TimeNow,
	}
	return httpBodyWrap(
		op.Map(source).Stream,
		source,
		hc.ErrClassifier,
		safeconn.LocalAddr(hc.conn),
		hc.Logger,
		safeconn.Network(hc.conn),
		safeconn.RemoteAddr(hc.conn),
		rd.SpanID,
		hc.TimeNow,
	)
}

// Close cleans up the transport and closes the underlying connection.
func (hc *HTTPConn) Close() error {
	hc.closeIdleFunc()
	return hc.conn.Close()
}

// Conn returns the underlying [net.Conn].
func (hc *HTTPConn) Conn() net.Conn {
	return hc.conn
}

func (hc *HTTPConn) logRoundTripStart(rd *RequestData, req *http.Request, t0 time.Time, deadline time.Time) {
	hc.Logger.Info(
		"httpRoundTripStart",
		slog.Time("deadline", deadline),
		slog.String("engine", hc.Policy.Name()),
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", rd.URL),
		slog.Any("httpRequestHeaders", req.Header),
		slog.String("localAddr", safeconn.LocalAddr(hc.conn)),
		slog.String("protocol", safeconn.Network(hc.conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(hc.conn)),
		slog.String("spanID", rd.SpanID),
		slog.Time("t", t0),
	)
}

func (hc *HTTPConn) logRoundTripDone(rd *RequestData, req *http.Request,
	t0 time.Time, deadline time.Time, resp *http.Response, err error) {
	var (
		statusCode int
		headers    http.Header
	)
	if resp != nil {
		statusCode = resp.StatusCode
		headers = resp.Header
	}
	hc.Logger.Info(
		"httpRoundTripDone",
		slog.Time("deadline", deadline),
		slog.String("engine", hc.Policy.Name()),
		slog.Any("err", err),
		slog.String("errClass", hc.ErrClassifier.Classify(err)),
		slog.String("httpMethod", req.Method),
		slog.String("httpUrl", rd.URL),
		slog.Any("httpRequestHeaders", req.Header),
		slog.Any("httpResponseHeaders", headers),
		slog.Int("httpResponseStatusCode", statusCode),
		slog.String("localAddr", safeconn.LocalAddr(hc.conn)),
		slog.String("protocol", safeconn.Network(hc.conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(hc.conn)),
		slog.String("spanID", rd.SpanID),
		slog.Time("t0", t0),
		slog.Time("t", hc.TimeNow()),
	)
}

// NewHTTPConnFunc returns a new [*HTTPConnFunc].
//
// The cfg argument contains the common configuration for timeoutmap operations.
//
// The sup argument is the [*Supervisor] owning the response body relays.
//
// The timeouts argument is the diagnostic context for canonical errors.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewHTTPConnFunc(cfg *Config, sup *Supervisor, timeouts TimeoutConfig, logger SLogger) *HTTPConnFunc {
	runtimex.Assert(sup != nil)
	return &HTTPConnFunc{
		BufferSize:    cfg.BufferSize,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Policy:        cfg.Policy,
		Supervisor:    sup,
		Timeouts:      timeouts,
		TimeNow:       cfg.TimeNow,
	}
}

// HTTPConnFunc wraps a connection into an [*HTTPConn].
//
// When the connection exposes a TLS connection state (e.g., [*tls.Conn])
// and the negotiated ALPN is "h2", HTTPConnFunc uses HTTP/2. Otherwise, it
// uses HTTP/1.1 without keep-alives.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type HTTPConnFunc struct {
	// BufferSize is the replacement channel and relay buffer size.
	//
	// Set by [NewHTTPConnFunc] from [Config.BufferSize].
	BufferSize int

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewHTTPConnFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewHTTPConnFunc] to the user-provided logger.
	Logger SLogger

	// Policy is the engine exception mapping [Policy].
	//
	// Set by [NewHTTPConnFunc] from [Config.Policy].
	Policy Policy

	// Supervisor owns the response body relays.
	//
	// Set by [NewHTTPConnFunc] to the user-provided value.
	Supervisor *Supervisor

	// Timeouts is the diagnostic context for canonical errors.
	//
	// Set by [NewHTTPConnFunc] to the user-provided value.
	Timeouts TimeoutConfig

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewHTTPConnFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, *HTTPConn] = &HTTPConnFunc{}

// Call implements [Func].
func (op *HTTPConnFunc) Call(ctx context.Context, conn net.Conn) (*HTTPConn, error) {
	var alpn string
	if csp, ok := conn.(connectionStater); ok {
		alpn = csp.ConnectionState().NegotiatedProtocol
	}

	dialer := sud.NewSingleUseDialer(conn)

	var (
		txp           http.RoundTripper
		closeIdleFunc func()
	)
	switch alpn {
	case "h2":
		h2txp := &http2.Transport{
			DialTLSContext: dialer.DialTLSContext,
		}
		txp = h2txp
		closeIdleFunc = h2txp.CloseIdleConnections

	default:
		h1txp := &http.Transport{
			DialContext:       dialer.DialContext,
			DialTLSContext:    dialer.DialContext,
			DisableKeepAlives: true,
		}
		txp = h1txp
		closeIdleFunc = h1txp.CloseIdleConnections
	}

	hc := &HTTPConn{
		conn:          conn,
		txp:           txp,
		closeIdleFunc: closeIdleFunc,
		BufferSize:    op.BufferSize,
		ErrClassifier: op.ErrClassifier,
		Logger:        op.Logger,
		Policy:        op.Policy,
		Supervisor:    op.Supervisor,
		Timeouts:      op.Timeouts,
		TimeNow:       op.TimeNow,
	}
	return hc, nil
}
