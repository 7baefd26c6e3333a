// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"bytes"
	"io"
	"slices"
	"sync"

	"github.com/bassosimone/runtimex"
)

// DefaultChannelSize is the default capacity in bytes of a [*Channel].
const DefaultChannelSize = 4096

// NewChannel returns a new open [*Channel] buffering at most size bytes.
//
// The mapCause argument, when not nil, is applied to the cause of a failure
// transition before the cause is recorded. It must be a pure function: it
// runs on the goroutine performing the transition while the channel is locked.
//
// This function panics if size is not positive.
func NewChannel(size int, mapCause func(error) error) *Channel {
	runtimex.Assert(size > 0)
	c := &Channel{
		done:     make(chan struct{}),
		mapCause: mapCause,
		size:     size,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Channel is an in-memory byte stream with a bounded buffer.
//
// Channel implements both [ReadStream] and [WriteStream] and is the
// intermediary stream that mappers hand to consumers. Writers block while
// the buffer is full. After a normal close, readers drain the buffer and
// then observe [io.EOF]. After a failure, buffered bytes are discarded and
// readers and writers observe the recorded cause.
//
// Construct using [NewChannel].
type Channel struct {
	buf      bytes.Buffer
	cond     *sync.Cond
	done     chan struct{}
	hooks    []*afterCloseHook
	mapCause func(error) error
	mu       sync.Mutex
	size     int
	term     Terminal
}

type afterCloseHook struct {
	fn func(Terminal)
}

var (
	_ ReadStream  = &Channel{}
	_ WriteStream = &Channel{}
)

// Read implements [ReadStream].
func (c *Channel) Read(buffer []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		switch {
		case c.term.Kind == TerminalFailure:
			return 0, c.term.Cause

		case c.buf.Len() > 0:
			count, _ := c.buf.Read(buffer)
			c.cond.Broadcast()
			return count, nil

		case c.term.Kind == TerminalNormal:
			return 0, io.EOF

		case len(buffer) <= 0:
			return 0, nil
		}
		c.cond.Wait()
	}
}

// Write implements [WriteStream].
//
// Write blocks until all the data has been buffered or the channel
// reaches a terminal state, in which case it returns the number of
// bytes buffered so far along with the error.
func (c *Channel) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var count int
	for {
		switch c.term.Kind {
		case TerminalNormal:
			return count, io.ErrClosedPipe
		case TerminalFailure:
			return count, c.term.Cause
		}
		if len(data) <= 0 {
			return count, nil
		}
		room := c.size - c.buf.Len()
		if room <= 0 {
			c.cond.Wait()
			continue
		}
		chunk := min(room, len(data))
		c.buf.Write(data[:chunk])
		data = data[chunk:]
		count += chunk
		c.cond.Broadcast()
	}
}

// Cancel implements [ReadStream].
func (c *Channel) Cancel(cause error) {
	if cause == nil {
		cause = ErrCanceled
	}
	c.terminate(TerminalFailure, cause)
}

// CloseWithError implements [WriteStream].
//
// The return value is always nil.
func (c *Channel) CloseWithError(cause error) error {
	if cause == nil {
		c.terminate(TerminalNormal, nil)
		return nil
	}
	c.terminate(TerminalFailure, cause)
	return nil
}

// Close is equivalent to CloseWithError(nil).
func (c *Channel) Close() error {
	return c.CloseWithError(nil)
}

// Terminal returns the current terminal state.
func (c *Channel) Terminal() Terminal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.term
}

// Done returns a channel closed after the terminal transition.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// AfterClose arranges for fn to be called with the terminal state once the
// channel reaches it. The call happens on the goroutine performing the
// transition, after the channel has been unlocked. If the channel is already
// terminal, fn is called immediately on the calling goroutine.
//
// Calling the returned stop function unregisters fn. It returns true if
// fn was unregistered before being called, and false otherwise.
func (c *Channel) AfterClose(fn func(Terminal)) (stop func() bool) {
	c.mu.Lock()
	if c.term.Kind != TerminalOpen {
		term := c.term
		c.mu.Unlock()
		fn(term)
		return func() bool { return false }
	}
	hook := &afterCloseHook{fn: fn}
	c.hooks = append(c.hooks, hook)
	c.mu.Unlock()

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		idx := slices.Index(c.hooks, hook)
		if idx < 0 {
			return false
		}
		c.hooks = slices.Delete(c.hooks, idx, idx+1)
		return true
	}
}

// terminate performs the single terminal transition and reports whether
// this call was the one performing it.
func (c *Channel) terminate(kind TerminalKind, cause error) bool {
	c.mu.Lock()
	if c.term.Kind != TerminalOpen {
		c.mu.Unlock()
		return false
	}
	if kind == TerminalFailure {
		if c.mapCause != nil {
			if mapped := c.mapCause(cause); mapped != nil {
				cause = mapped
			}
		}
		c.buf.Reset()
	}
	c.term = Terminal{Kind: kind, Cause: cause}
	term, hooks := c.term, c.hooks
	c.hooks = nil
	close(c.done)
	c.cond.Broadcast()
	c.mu.Unlock()

	for _, hook := range hooks {
		hook.fn(term)
	}
	return true
}
