package executor

import (
	"context"

	"github.com/jmehdipour/actionflow/internal/model"
)

// Noop succeeds without side effects.
type Noop struct{}

func (Noop) Execute(_ context.Context, a model.Action) (Result, error) {
	return Result{OK: true, Result: "noop for " + a.Type.String()}, nil
}
