// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"io"
	"net"
	"sync"
)

// NewConnReadStream returns the read side of conn as a [ReadStream].
//
// Cancel closes conn, which unblocks any pending Read. Subsequent
// calls to Cancel do nothing.
func NewConnReadStream(conn net.Conn) ReadStream {
	return &connReadStream{conn: conn}
}

type connReadStream struct {
	conn net.Conn
	once sync.Once
}

// Read implements [ReadStream].
func (s *connReadStream) Read(buffer []byte) (int, error) {
	return s.conn.Read(buffer)
}

// Cancel implements [ReadStream].
func (s *connReadStream) Cancel(cause error) {
	s.once.Do(func() {
		s.conn.Close()
	})
}

// NewConnWriteStream returns the write side of conn as a [WriteStream].
//
// Closing with a cause closes conn. Closing with a nil cause half-closes
// conn when it implements CloseWrite (e.g., [*net.TCPConn]) and otherwise
// does nothing. Subsequent closes return [net.ErrClosed].
func NewConnWriteStream(conn net.Conn) WriteStream {
	return &connWriteStream{conn: conn}
}

type connWriteStream struct {
	conn net.Conn
	once sync.Once
}

// Write implements [WriteStream].
func (s *connWriteStream) Write(data []byte) (int, error) {
	return s.conn.Write(data)
}

// CloseWithError implements [WriteStream].
func (s *connWriteStream) CloseWithError(cause error) (err error) {
	err = net.ErrClosed
	s.once.Do(func() {
		if cause != nil {
			err = s.conn.Close()
			return
		}
		type closeWriter interface {
			CloseWrite() error
		}
		err = nil
		if cw, ok := s.conn.(closeWriter); ok {
			err = cw.CloseWrite()
		}
	})
	return
}

// NewReadCloserStream returns rc as a [ReadStream] whose Cancel closes rc.
//
// This is the adapter for engine-produced bodies such as [*http.Response] bodies.
func NewReadCloserStream(rc io.ReadCloser) ReadStream {
	return &readCloserStream{rc: rc}
}

type readCloserStream struct {
	err  error
	once sync.Once
	rc   io.ReadCloser
}

// Read implements [ReadStream].
func (s *readCloserStream) Read(buffer []byte) (int, error) {
	return s.rc.Read(buffer)
}

// Cancel implements [ReadStream].
func (s *readCloserStream) Cancel(cause error) {
	s.Close()
}

// Close closes the underlying [io.ReadCloser] once and returns its error.
func (s *readCloserStream) Close() error {
	s.once.Do(func() {
		s.err = s.rc.Close()
	})
	return s.err
}

// NewWriteCloserStream returns wc as a [WriteStream].
//
// When wc implements CloseWithError (e.g., [*io.PipeWriter]) the cause is
// forwarded to it. Otherwise wc is closed regardless of the cause.
func NewWriteCloserStream(wc io.WriteCloser) WriteStream {
	return &writeCloserStream{wc: wc}
}

type writeCloserStream struct {
	once sync.Once
	wc   io.WriteCloser
}

// Write implements [WriteStream].
func (s *writeCloserStream) Write(data []byte) (int, error) {
	return s.wc.Write(data)
}

// CloseWithError implements [WriteStream].
func (s *writeCloserStream) CloseWithError(cause error) (err error) {
	err = net.ErrClosed
	s.once.Do(func() {
		type errorCloser interface {
			CloseWithError(err error) error
		}
		if ec, ok := s.wc.(errorCloser); ok {
			err = ec.CloseWithError(cause)
			return
		}
		err = s.wc.Close()
	})
	return
}
