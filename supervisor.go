// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// NewSupervisor returns a new [*Supervisor] whose lifetime is bound to ctx.
//
// When ctx is done, the supervisor is torn down as if [*Supervisor.Shutdown]
// had been called with [context.Cause] of ctx.
func NewSupervisor(ctx context.Context) *Supervisor {
	ctx, cancel := context.WithCancelCause(ctx)
	return &Supervisor{cancel: cancel, ctx: ctx}
}

// Supervisor owns the background tasks spawned by mappers.
//
// Each mapper spawns its relay task on a caller-supplied Supervisor. Tearing
// down the supervisor cancels every task it owns, and each task terminates
// both of its streams with the teardown cause.
//
// Construct using [NewSupervisor].
type Supervisor struct {
	cancel context.CancelCauseFunc
	ctx    context.Context
	group  errgroup.Group
}

// Context returns the supervisor context.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Spawn runs fn in a background goroutine owned by the supervisor.
//
// The context passed to fn is done when the supervisor is torn down or
// when the returned cancel function is called, whichever happens first.
//
// An error returned by fn is reported by [*Supervisor.Wait] but does not
// tear down the other tasks: a relay failing with a timeout must not
// terminate unrelated streams sharing the same supervisor.
func (s *Supervisor) Spawn(fn func(ctx context.Context) error) context.CancelCauseFunc {
	ctx, cancel := context.WithCancelCause(s.ctx)
	s.group.Go(func() error {
		defer cancel(nil)
		return fn(ctx)
	})
	return cancel
}

// Shutdown tears down the supervisor with the given cause. A nil cause
// is recorded as [context.Canceled]. Only the first cause is recorded.
//
// Shutdown does not wait for the tasks to return: use [*Supervisor.Wait].
func (s *Supervisor) Shutdown(cause error) {
	s.cancel(cause)
}

// Wait blocks until all the spawned tasks have returned and returns
// the first non-nil error returned by a task, if any.
func (s *Supervisor) Wait() error {
	return s.group.Wait()
}
