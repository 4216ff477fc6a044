//go:build !cgo

package classifier

import (
	"context"
	"errors"

	"github.com/example/skinai/internal/preprocess"
)

// ONNXConfig describes an exported model and its graph I/O names.
type ONNXConfig struct {
	ModelPath         string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	NumClasses        int
}

// ONNXClassifier is unavailable without cgo.
type ONNXClassifier struct{}

// NewONNXClassifier always fails without cgo; use the grpc backend instead.
func NewONNXClassifier(ONNXConfig) (*ONNXClassifier, error) {
	return nil, errors.New("onnx backend requires cgo")
}

// Classify is never reachable.
func (*ONNXClassifier) Classify(context.Context, preprocess.Tensor) ([]float64, error) {
	return nil, errors.New("onnx backend requires cgo")
}

// Close is a no-op.
func (*ONNXClassifier) Close() error { return nil }
