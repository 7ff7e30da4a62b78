package captcha

import (
	"context"
)

// Oracle answers an image captcha. ok is false whenever no automatic answer
// is available, including when the oracle is not configured.
type Oracle interface {
	Solve(ctx context.Context, image []byte) (answer string, ok bool)
}

// Noop never answers.
type Noop struct{}

func (Noop) Solve(context.Context, []byte) (string, bool) {
	return "", false
}

// Func adapts a function into an Oracle.
type Func func(ctx context.Context, image []byte) (string, bool)

func (f Func) Solve(ctx context.Context, image []byte) (string, bool) {
	return f(ctx, image)
}
