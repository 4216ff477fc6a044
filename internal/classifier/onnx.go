//go:build cgo

package classifier

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

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

// ONNXClassifier runs the model in-process. Sessions own fixed input and
// output tensors, so calls are serialized.
type ONNXClassifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXClassifier initializes the runtime and opens a session on the model.
func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(1, preprocess.InputSize, preprocess.InputSize, preprocess.Channels)
	outputShape := ort.NewShape(1, int64(cfg.NumClasses))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXClassifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Classify copies tensor into the session input and runs inference.
func (c *ONNXClassifier) Classify(ctx context.Context, tensor preprocess.Tensor) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("%w: session closed", ErrModelUnavailable)
	}

	in := c.inputTensor.GetData()
	if len(tensor.Data) != len(in) {
		return nil, fmt.Errorf("tensor has %d values, model expects %d", len(tensor.Data), len(in))
	}
	copy(in, tensor.Data)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	raw := c.outputTensor.GetData()
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// Close destroys the session, its tensors and the runtime environment.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	return ort.DestroyEnvironment()
}
