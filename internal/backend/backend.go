package backend

import (
	"context"
	"errors"
)

// #region types
// ItemOutput holds the raw model output for one batch item.
type ItemOutput struct {
	Logits []float32 // one entry per label, fixed order
	Hidden []float32 // optional hidden representation, nil when unavailable
}

// #endregion types

// #region errors
// ErrUnavailable indicates the scoring backend could not be reached or is not
// initialized. It is surfaced to every waiter of the affected batch.
var ErrUnavailable = errors.New("scoring backend unavailable")

// #endregion errors

// #region interface
// Scorer is the contract for the underlying multi-label scoring model.
// Infer must preserve input ordering in its output and either succeed for the
// whole batch or fail for the whole batch.
type Scorer interface {
	Infer(ctx context.Context, texts []string, maxLength int) ([]ItemOutput, error)
	Labels(ctx context.Context) ([]string, error)
}

// #endregion interface
