package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/skinai/internal/preprocess"
)

type closingClassifier struct {
	closed     bool
	classified int
}

func (c *closingClassifier) Classify(ctx context.Context, tensor preprocess.Tensor) ([]float64, error) {
	c.classified++
	return []float64{1, 0, 0, 0, 0, 0}, nil
}

func (c *closingClassifier) Close() error {
	c.closed = true
	return nil
}

func TestLoaderRejectsWhileLoading(t *testing.T) {
	release := make(chan struct{})
	clf := &closingClassifier{}
	loader := NewLoader("test", func(ctx context.Context) (Classifier, error) {
		<-release
		return clf, nil
	}, zap.NewNop())
	loader.Start(context.Background())

	_, err := loader.Classifier()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.Equal(t, StateLoading, loader.Status().State)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, loader.Wait(ctx))

	got, err := loader.Classifier()
	require.NoError(t, err)
	assert.Same(t, clf, got)
	assert.Equal(t, StateReady, loader.Status().State)
	assert.Equal(t, 1, clf.classified, "warmup should run once")

	require.NoError(t, loader.Close())
	assert.True(t, clf.closed)
	_, err = loader.Classifier()
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestLoaderRecordsFailure(t *testing.T) {
	loader := NewLoader("test", func(ctx context.Context) (Classifier, error) {
		return nil, errors.New("missing weights")
	}, zap.NewNop())
	loader.Start(context.Background())

	err := loader.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	status := loader.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "missing weights", status.Reason)
}

func TestLoaderRecoversFromPanic(t *testing.T) {
	loader := NewLoader("test", func(ctx context.Context) (Classifier, error) {
		panic("bad model")
	}, zap.NewNop())
	loader.Start(context.Background())

	require.Error(t, loader.Wait(context.Background()))
	assert.Contains(t, loader.Status().Reason, "bad model")
}

func TestLoaderWarmupFailureStillReady(t *testing.T) {
	loader := NewLoader("test", func(ctx context.Context) (Classifier, error) {
		return Func(func(ctx context.Context, tensor preprocess.Tensor) ([]float64, error) {
			return nil, errors.New("cold")
		}), nil
	}, zap.NewNop())
	loader.Start(context.Background())

	require.NoError(t, loader.Wait(context.Background()))
	assert.Equal(t, StateReady, loader.Status().State)
}

func TestLoaderWaitHonoursContext(t *testing.T) {
	loader := NewLoader("test", func(ctx context.Context) (Classifier, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, loader.Wait(ctx), context.DeadlineExceeded)
}

func TestReadyLoader(t *testing.T) {
	loader := Ready("stub", &closingClassifier{})
	loader.Start(context.Background())
	require.NoError(t, loader.Wait(context.Background()))
	assert.Equal(t, Status{Backend: "stub", State: StateReady}, loader.Status())
}

func TestLoaderCloseDuringLoadDiscardsModel(t *testing.T) {
	release := make(chan struct{})
	clf := &closingClassifier{}
	loader := NewLoader("test", func(ctx context.Context) (Classifier, error) {
		<-release
		return clf, nil
	}, zap.NewNop())
	loader.Start(context.Background())

	require.NoError(t, loader.Close())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := loader.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	assert.True(t, clf.closed, "late model should be closed")
	status := loader.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, "closed", status.Reason)
}

func TestLoaderCloseWithoutCloser(t *testing.T) {
	loader := Ready("stub", Func(func(ctx context.Context, tensor preprocess.Tensor) ([]float64, error) {
		return []float64{1, 0, 0, 0, 0, 0}, nil
	}))

	require.NoError(t, loader.Close())
	_, err := loader.Classifier()
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}
