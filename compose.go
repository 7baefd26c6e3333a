//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.0/internal/x/dslx/fxcore.go
//

package timeoutmap

import "context"

// Compose2 chains two [Func] such that the output of op1 is the input of op2.
//
// When op1 fails, op2 is not called.
func Compose2[A, B, C any](op1 Func[A, B], op2 Func[B, C]) Func[A, C] {
	return FuncAdapter[A, C](func(ctx context.Context, input A) (C, error) {
		res, err := op1.Call(ctx, input)
		if err != nil {
			var zero C
			return zero, err
		}
		return op2.Call(ctx, res)
	})
}

// Compose3 chains three [Func].
func Compose3[A, B, C, D any](op1 Func[A, B], op2 Func[B, C], op3 Func[C, D]) Func[A, D] {
	return Compose2(op1, Compose2(op2, op3))
}

// Compose4 chains four [Func].
func Compose4[A, B, C, D, E any](op1 Func[A, B], op2 Func[B, C], op3 Func[C, D], op4 Func[D, E]) Func[A, E] {
	return Compose2(op1, Compose3(op2, op3, op4))
}

// ConstFunc returns a [Func] ignoring its [Unit] input and returning value.
func ConstFunc[B any](value B) Func[Unit, B] {
	return FuncAdapter[Unit, B](func(ctx context.Context, _ Unit) (B, error) {
		return value, nil
	})
}
