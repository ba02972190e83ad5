package executor

import (
	"context"

	"github.com/jmehdipour/actionflow/internal/model"
)

// Result is what an executor reports for one attempt.
type Result struct {
	OK                bool
	Result            string
	Error             string
	Provider          string
	ProviderReceiptID string
}

// Executor performs the side effect for one claimed action. Executors do not
// retry; the worker owns attempt accounting. A returned error is recorded the
// same way as OK=false.
type Executor interface {
	Execute(ctx context.Context, a model.Action) (Result, error)
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, a model.Action) (Result, error)

func (f Func) Execute(ctx context.Context, a model.Action) (Result, error) { return f(ctx, a) }
