// SPDX-License-Identifier: GPL-3.0-or-later

package timeoutmap

import "context"

// Func is a generic operation that accepts an input and returns a result.
//
// Mappers, [*ConnectFunc], [*MapConnFunc], and [*HTTPConnFunc] implement
// Func so that they can be chained using [Compose2] and friends.
//
// When a Func receives a closeable resource as input and fails, it closes
// that resource before returning.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter wraps a function as a [Func] implementation.
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}
