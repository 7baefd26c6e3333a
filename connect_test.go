// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewConnectFunc populates all fields from Config and the provided logger.
func TestNewConnectFunc(t *testing.T) {
	cfg := NewConfig()
	logger := DefaultSLogger()

	req := newTestRequest()

	fn := NewConnectFunc(cfg, "tcp", req, logger)

	require.NotNil(t, fn)
	assert.Equal(t, "tcp", fn.Network)
	assert.Same(t, req, fn.Request)
	assert.Equal(t, cfg.Policy, fn.Policy)
	assert.NotNil(t, fn.Dialer)
	assert.NotNil(t, fn.Logger)
	assert.NotNil(t, fn.TimeNow)
	assert.NotNil(t, fn.ErrClassifier)
}

// Call dials the address and returns a net.Conn or an error.
func TestConnectFunc(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// dialer is the mock dialer to use.
		dialer *netstub.FuncDialer

		// network is the network type.
		network string

		// address is the target address.
		address netip.AddrPort

		// wantErr indicates whether we expect an error.
		wantErr bool
	}{
		{
			name: "successful TCP connect",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					conn := newMinimalConn()
					conn.CloseFunc = func() error { return nil }
					conn.LocalAddrFunc = func() net.Addr {
						return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
					}
					conn.RemoteAddrFunc = func() net.Addr {
						return &net.TCPAddr{IP: net.IPv4(93, 184, 216, 34), Port: 443}
					}
					return conn, nil
				},
			},
			network: "tcp",
			address: netip.MustParseAddrPort("93.184.216.34:443"),
			wantErr: false,
		},

		{
			name: "dial error",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					return nil, errors.New("connection refused")
				},
			},
			network: "tcp",
			address: netip.MustParseAddrPort("93.184.216.34:443"),
			wantErr: true,
		},

		{
			name: "successful UDP connect",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					conn := newMinimalConn()
					conn.CloseFunc = func() error { return nil }
					conn.LocalAddrFunc = func() net.Addr {
						return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
					}
					conn.RemoteAddrFunc = func() net.Addr {
						return &net.UDPAddr{IP: net.IPv4(8, 8, 8, 8), Port: 53}
					}
					return conn, nil
				},
			},
			network: "udp",
			address: netip.MustParseAddrPort("8.8.8.8:53"),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Dialer = tt.dialer

			fn := NewConnectFunc(cfg, tt.network, nil, DefaultSLogger())
			conn, err := fn.Call(context.Background(), tt.address)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, conn)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, conn)
			conn.Close()
		})
	}
}

// Call transparently passes the caller's context to the dialer.
func TestConnectFuncContextTransparency(t *testing.T) {
	tests := []struct {
		// name describes the scenario.
		name string

		// dialer is the mock dialer to use.
		dialer *netstub.FuncDialer

		// makeCtx builds the context for the call.
		makeCtx func() (context.Context, context.CancelFunc)
	}{
		{
			name: "pre-expired context",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					return nil, errors.New("should not reach here")
				},
			},
			makeCtx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
				time.Sleep(10 * time.Millisecond)
				return ctx, cancel
			},
		},

		{
			name: "context expires during dial",
			dialer: &netstub.FuncDialer{
				DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
					time.Sleep(10 * time.Millisecond)
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					return nil, errors.New("should not reach here")
				},
			},
			makeCtx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 1*time.Nanosecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Dialer = tt.dialer

			fn := NewConnectFunc(cfg, "tcp", nil, DefaultSLogger())

			ctx, cancel := tt.makeCtx()
			defer cancel()

			_, err := fn.Call(ctx, netip.MustParseAddrPort("93.184.216.34:443"))
			require.Error(t, err)
		})
	}
}

// Call propagates the caller's context deadline to the dialer.
func TestConnectFuncCallerContextDeadline(t *testing.T) {
	cfg := NewConfig()
	dialCalled := false
	expectedTimeout := 5 * time.Second
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialCalled = true
			deadline, ok := ctx.Deadline()
			assert.True(t, ok, "context should have deadline from caller")
			assert.True(t, time.Until(deadline) <= expectedTimeout)
			return nil, errors.New("expected error")
		},
	}

	fn := NewConnectFunc(cfg, "tcp", nil, DefaultSLogger())

	// Caller controls timeout via context.WithTimeout
	ctx, cancel := context.WithTimeout(context.Background(), expectedTimeout)
	defer cancel()

	_, _ = fn.Call(ctx, netip.MustParseAddrPort("93.184.216.34:443"))

	assert.True(t, dialCalled)
}

// Call emits connectStart/connectDone log events.
func TestConnectFuncLogging(t *testing.T) {
	logger, records := newCapturingLogger()

	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			conn := newMinimalConn()
			conn.CloseFunc = func() error { return nil }
			return conn, nil
		},
	}

	fn := NewConnectFunc(cfg, "tcp", newTestRequest(), logger)
	conn, err := fn.Call(context.Background(), netip.MustParseAddrPort("93.184.216.34:443"))
	require.NoError(t, err)
	conn.Close()

	assert.Equal(t, []string{"connectStart", "connectDone"}, recordMessages(records()))
}

// Call maps the engine dial timeout marker to the canonical connect timeout.
func TestConnectFuncTimeoutMapping(t *testing.T) {
	marker := &net.OpError{Op: "dial", Net: "tcp", Err: os.ErrDeadlineExceeded}
	newDialer := func() *netstub.FuncDialer {
		return &netstub.FuncDialer{
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				return nil, marker
			},
		}
	}
	address := netip.MustParseAddrPort("93.184.216.34:443")

	t.Run("marker is mapped", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Dialer = newDialer()
		req := newTestRequest()

		conn, err := NewConnectFunc(cfg, "tcp", req, DefaultSLogger()).Call(context.Background(), address)

		assert.Nil(t, conn)
		var connectErr *ConnectTimeoutError
		require.ErrorAs(t, err, &connectErr)
		assert.Equal(t, marker.Error(), connectErr.Error())
		assert.Same(t, marker, connectErr.Cause)
		assert.Equal(t, req.URL, connectErr.URL)
		assert.Equal(t, req.SpanID, connectErr.SpanID)
		assert.Equal(t, req.Timeouts.Connect, connectErr.ConnectTimeout)
	})

	t.Run("native policy passes the error through", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Dialer = newDialer()
		cfg.Policy = NativePolicy()

		_, err := NewConnectFunc(cfg, "tcp", nil, DefaultSLogger()).Call(context.Background(), address)

		assert.Same(t, marker, err)
	})

	t.Run("caller context deadline is not mapped", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Dialer = &netstub.FuncDialer{
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()

		_, err := NewConnectFunc(cfg, "tcp", nil, DefaultSLogger()).Call(ctx, address)

		assert.Equal(t, context.DeadlineExceeded, err)
	})
}

// The net package reports an expired Dialer.Timeout as a timeout net.Error
// that is neither os.ErrDeadlineExceeded nor ETIMEDOUT.
func TestConnectFuncDialerTimeout(t *testing.T) {
	address := netip.MustParseAddrPort("10.255.255.1:80")

	t.Run("engine dial timeout is mapped", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Dialer = &net.Dialer{Timeout: time.Nanosecond}
		req := newTestRequest()

		conn, err := NewConnectFunc(cfg, "tcp", req, DefaultSLogger()).Call(context.Background(), address)

		assert.Nil(t, conn)
		var connectErr *ConnectTimeoutError
		require.ErrorAs(t, err, &connectErr)
		assert.True(t, connectErr.Timeout())
		assert.Equal(t, connectErr.Cause.Error(), connectErr.Error())
		assert.Equal(t, req.SpanID, connectErr.SpanID)

		var opErr *net.OpError
		require.ErrorAs(t, connectErr.Cause, &opErr)
		assert.Equal(t, "dial", opErr.Op)
	})

	t.Run("caller context deadline with a real dialer is not mapped", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Dialer = &net.Dialer{}
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		_, err := NewConnectFunc(cfg, "tcp", nil, DefaultSLogger()).Call(ctx, address)

		require.Error(t, err)
		var connectErr *ConnectTimeoutError
		assert.False(t, errors.As(err, &connectErr))
	})

	t.Run("native policy leaves the engine error alone", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Dialer = &net.Dialer{Timeout: time.Nanosecond}
		cfg.Policy = NativePolicy()

		_, err := NewConnectFunc(cfg, "tcp", nil, DefaultSLogger()).Call(context.Background(), address)

		require.Error(t, err)
		var connectErr *ConnectTimeoutError
		assert.False(t, errors.As(err, &connectErr))
	})
}
