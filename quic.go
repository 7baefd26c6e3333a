// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/quic-go/quic-go"
)

// QUICPolicy returns the [*EnginePolicy] for the quic-go engine.
//
// Its timeout markers are [*quic.IdleTimeoutError], [*quic.HandshakeTimeoutError],
// and [os.ErrDeadlineExceeded], which quic-go streams return when a deadline
// set with SetReadDeadline or SetWriteDeadline expires.
func QUICPolicy() *EnginePolicy {
	return &EnginePolicy{
		EngineName:   "quic",
		IsMarkerFunc: isQUICTimeoutMarker,
	}
}

func isQUICTimeoutMarker(err error) bool {
	var (
		handshakeErr *quic.HandshakeTimeoutError
		idleErr      *quic.IdleTimeoutError
	)
	return errors.As(err, &idleErr) ||
		errors.As(err, &handshakeErr) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// QUICReceiveStream abstracts the receive side of a quic-go stream.
type QUICReceiveStream interface {
	io.Reader
	CancelRead(code quic.StreamErrorCode)
}

// QUICSendStream abstracts the send side of a quic-go stream.
type QUICSendStream interface {
	io.Writer
	CancelWrite(code quic.StreamErrorCode)
	Close() error
}

// NewQUICReadStream returns stream as a [ReadStream].
//
// Cancel aborts reading with the given application error code.
func NewQUICReadStream(stream QUICReceiveStream, code quic.StreamErrorCode) ReadStream {
	return &quicReadStream{code: code, stream: stream}
}

type quicReadStream struct {
	code   quic.StreamErrorCode
	once   sync.Once
	stream QUICReceiveStream
}

// Read implements [ReadStream].
func (s *quicReadStream) Read(buffer []byte) (int, error) {
	return s.stream.Read(buffer)
}

// Cancel implements [ReadStream].
func (s *quicReadStream) Cancel(cause error) {
	s.once.Do(func() {
		s.stream.CancelRead(s.code)
	})
}

// NewQUICWriteStream returns stream as a [WriteStream].
//
// Closing with a nil cause gracefully closes the send side. Closing with
// a cause aborts writing with the given application error code.
func NewQUICWriteStream(stream QUICSendStream, code quic.StreamErrorCode) WriteStream {
	return &quicWriteStream{code: code, stream: stream}
}

type quicWriteStream struct {
	code   quic.StreamErrorCode
	once   sync.Once
	stream QUICSendStream
}

// Write implements [WriteStream].
func (s *quicWriteStream) Write(data []byte) (int, error) {
	return s.stream.Write(data)
}

// CloseWithError implements [WriteStream].
func (s *quicWriteStream) CloseWithError(cause error) (err error) {
	err = net.ErrClosed
	s.once.Do(func() {
		if cause != nil {
			s.stream.CancelWrite(s.code)
			err = nil
			return
		}
		err = s.stream.Close()
	})
	return
}
