// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose2(t *testing.T) {
	t.Run("output of the first is the input of the second", func(t *testing.T) {
		op1 := FuncAdapter[int, string](func(ctx context.Context, n int) (string, error) {
			return "hello", nil
		})
		op2 := FuncAdapter[string, int](func(ctx context.Context, s string) (int, error) {
			return len(s), nil
		})

		result, err := Compose2[int, string, int](op1, op2).Call(context.Background(), 42)

		require.NoError(t, err)
		assert.Equal(t, 5, result)
	})

	t.Run("first failure skips the second", func(t *testing.T) {
		wantErr := errors.New("op1 failed")
		op1 := FuncAdapter[int, string](func(ctx context.Context, n int) (string, error) {
			return "", wantErr
		})
		op2 := FuncAdapter[string, int](func(ctx context.Context, s string) (int, error) {
			t.Fatal("op2 should not be called")
			return 0, nil
		})

		_, err := Compose2[int, string, int](op1, op2).Call(context.Background(), 42)

		require.ErrorIs(t, err, wantErr)
	})
}

func TestCompose4(t *testing.T) {
	incr := FuncAdapter[int, int](func(ctx context.Context, n int) (int, error) { return n + 1, nil })
	double := FuncAdapter[int, int](func(ctx context.Context, n int) (int, error) { return n * 2, nil })

	result, err := Compose3[int, int, int, int](incr, double, incr).Call(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 13, result)

	result, err = Compose4[int, int, int, int, int](incr, double, incr, double).Call(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 26, result)
}

func TestConstFunc(t *testing.T) {
	result, err := ConstFunc("constant value").Call(context.Background(), Unit{})
	require.NoError(t, err)
	assert.Equal(t, "constant value", result)
}

func TestNewEndpointFunc(t *testing.T) {
	for _, s := range []string{"93.184.216.34:443", "[2001:db8::1]:8080"} {
		endpoint := netip.MustParseAddrPort(s)

		result, err := NewEndpointFunc(endpoint).Call(context.Background(), Unit{})

		require.NoError(t, err)
		assert.Equal(t, endpoint, result)
	}
}

// The endpoint, connect, and map-conn stages chain into a pipeline whose
// conn surfaces engine timeouts as canonical errors.
func TestComposePipeline(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	cfg := NewConfig()
	cfg.Dialer = &netstub.FuncDialer{
		DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return client, nil
		},
	}
	req := newTestRequest()
	sup := newTestSupervisor(t)

	pipeline := Compose3[Unit, netip.AddrPort, net.Conn, net.Conn](
		NewEndpointFunc(netip.MustParseAddrPort("93.184.216.34:443")),
		NewConnectFunc(cfg, "tcp", req, DefaultSLogger()),
		NewMapConnFunc(cfg, sup, req, DefaultSLogger()),
	)

	conn, err := pipeline.Call(context.Background(), Unit{})
	require.NoError(t, err)
	defer conn.Close()

	go server.Write([]byte("hi"))
	buffer := make([]byte, 2)
	_, err = io.ReadFull(conn, buffer)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buffer))

	require.NoError(t, conn.SetReadDeadline(time.Now()))
	_, err = conn.Read(buffer)
	var socketErr *SocketTimeoutError
	require.ErrorAs(t, err, &socketErr)
	assert.Equal(t, req.SpanID, socketErr.SpanID)
}
