// Package classifier defines the contract with the skin-condition model and
// tracks whether the model is ready to serve.
package classifier

import (
	"context"
	"errors"

	"github.com/example/skinai/internal/preprocess"
)

// ErrModelUnavailable is returned while the model is loading or after it
// failed to load.
var ErrModelUnavailable = errors.New("model not ready")

// Classifier scores a normalized image tensor, one value per label index.
type Classifier interface {
	Classify(ctx context.Context, tensor preprocess.Tensor) ([]float64, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, tensor preprocess.Tensor) ([]float64, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, tensor preprocess.Tensor) ([]float64, error) {
	return f(ctx, tensor)
}
