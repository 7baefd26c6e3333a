// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// httpBodyWrap returns the consumer-facing response body.
//
// Reads go through the mapped body stream. Close cancels the mapped stream
// and closes the raw body. Structured log events are emitted lazily:
// httpBodyStreamStart on the first Read, and httpBodyStreamDone on Close
// only if at least one Read happened.
func httpBodyWrap(
	body ReadStream,
	raw io.Closer,
	errClass ErrClassifier,
	laddr string,
	logger SLogger,
	protocol string,
	raddr string,
	spanID string,
	timeNow func() time.Time,
) io.ReadCloser {
	return &httpBodyWrapper{
		body:     body,
		errClass: errClass,
		laddr:    laddr,
		logger:   logger,
		protocol: protocol,
		raddr:    raddr,
		raw:      raw,
		spanID:   spanID,
		timeNow:  timeNow,
	}
}

type httpBodyWrapper struct {
	// body is the mapped body stream.
	body ReadStream

	// closeOnce ensures that Close has "once" semantics.
	closeOnce sync.Once

	// didRead tracks whether at least one Read happened.
	didRead atomic.Bool

	// errClass is the err classifier in use.
	errClass ErrClassifier

	// laddr is the local address.
	laddr string

	// lastErr is the last non-EOF Read error.
	lastErr atomic.Pointer[error]

	// logger is the [SLogger] in use.
	logger SLogger

	// protocol is the network protocol.
	protocol string

	// raddr is the remote address.
	raddr string

	// raw is the raw engine body.
	raw io.Closer

	// readOnce ensures we log httpBodyStreamStart only once.
	readOnce sync.Once

	// spanID is the request span ID.
	spanID string

	// t0 is the time when we started reading the body.
	t0 time.Time

	// timeNow mocks [time.Now].
	timeNow func() time.Time
}

var _ io.ReadCloser = &httpBodyWrapper{}

// Read implements [io.ReadCloser].
func (b *httpBodyWrapper) Read(buffer []byte) (int, error) {
	b.readOnce.Do(func() {
		b.t0 = b.timeNow()    // write t0 BEFORE the atomic store (release)
		b.didRead.Store(true) // release: makes t0 visible to Close
		b.logger.Info(
			"httpBodyStreamStart",
			slog.String("localAddr", b.laddr),
			slog.String("protocol", b.protocol),
			slog.String("remoteAddr", b.raddr),
			slog.String("spanID", b.spanID),
			slog.Time("t", b.t0),
		)
	})
	count, err := b.body.Read(buffer)
	if err != nil && err != io.EOF {
		b.lastErr.Store(&err)
	}
	return count, err
}

// Close implements [io.ReadCloser].
func (b *httpBodyWrapper) Close() (err error) {
	b.closeOnce.Do(func() {
		b.body.Cancel(http.ErrBodyReadAfterClose)
		err = b.raw.Close()
		if b.didRead.Load() { // acquire: t0 is visible if this returns true
			logErr := err
			if ep := b.lastErr.Load(); ep != nil && logErr == nil {
				logErr = *ep
			}
			b.logger.Info(
				"httpBodyStreamDone",
				slog.Any("err", logErr),
				slog.String("errClass", b.errClass.Classify(logErr)),
				slog.String("localAddr", b.laddr),
				slog.String("protocol", b.protocol),
				slog.String("remoteAddr", b.raddr),
				slog.String("spanID", b.spanID),
				slog.Time("t0", b.t0),
				slog.Time("t", b.timeNow()),
			)
		}
	})
	return
}
