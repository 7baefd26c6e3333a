// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/bassosimone/tlsstub"
)

// newCapturingLogger returns a logger that captures all log records along
// with a function returning a snapshot of the records captured so far.
//
// Relays log from background goroutines, hence the mutex.
func newCapturingLogger() (*slog.Logger, func() []slog.Record) {
	var (
		mu      sync.Mutex
		records []slog.Record
	)
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		},
	}
	snapshot := func() []slog.Record {
		mu.Lock()
		defer mu.Unlock()
		return append([]slog.Record{}, records...)
	}
	return slog.New(handler), snapshot
}

// recordMessages returns the messages of the given records.
func recordMessages(records []slog.Record) (out []string) {
	for _, record := range records {
		out = append(out, record.Message)
	}
	return
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set, which is enough for the [safeconn] helpers.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// newTimeoutMarker returns a stdlib engine timeout marker shaped like
// the errors returned by the [net] package.
func newTimeoutMarker() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}
}

// newTestSupervisor returns a [*Supervisor] torn down and waited
// for when the test completes.
func newTestSupervisor(t *testing.T) *Supervisor {
	sup := NewSupervisor(context.Background())
	t.Cleanup(func() {
		sup.Shutdown(nil)
		sup.Wait()
	})
	return sup
}

// newTestRequest returns a [*RequestData] suitable for tests.
func newTestRequest() *RequestData {
	return &RequestData{
		Method:   "GET",
		SpanID:   "01234567-89ab-7def-8123-456789abcdef",
		Timeouts: TimeoutConfig{Connect: 3e9, Socket: 5e9},
		URL:      "https://example.com/",
	}
}

// newMockTLSEngine returns a [*tlsstub.FuncTLSEngine] whose ClientFunc
// returns conn and whose NameFunc returns "mock".
func newMockTLSEngine(conn TLSConn) *tlsstub.FuncTLSEngine[TLSConn] {
	return &tlsstub.FuncTLSEngine[TLSConn]{
		ClientFunc: func(c net.Conn, config *tls.Config) TLSConn {
			return conn
		},
		NameFunc: func() string {
			return "mock"
		},
		ParrotFunc: func() string {
			return ""
		},
	}
}

// newPipeTLSConn returns a [*tlsstub.FuncTLSConn] that performs I/O on the
// client end of a [net.Pipe] and reports alpn as the negotiated protocol.
// It also returns the server end of the pipe.
func newPipeTLSConn(t *testing.T, alpn string) (*tlsstub.FuncTLSConn, net.Conn) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	conn := &tlsstub.FuncTLSConn{
		FuncConn: &netstub.FuncConn{
			ReadFunc:        client.Read,
			WriteFunc:       client.Write,
			CloseFunc:       client.Close,
			LocalAddrFunc:   client.LocalAddr,
			RemoteAddrFunc:  client.RemoteAddr,
			SetDeadlineFunc: client.SetDeadline,
			SetReadDeadFunc: client.SetReadDeadline,
			SetWriteDeaFunc: client.SetWriteDeadline,
		},
		ConnectionStateFunc: func() tls.ConnectionState {
			return tls.ConnectionState{NegotiatedProtocol: alpn}
		},
		HandshakeContextFunc: func(ctx context.Context) error {
			return nil
		},
	}
	return conn, server
}
