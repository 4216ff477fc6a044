package classifier

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/skinai/internal/preprocess"
)

// State is the readiness of the model.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status is a point-in-time snapshot of the loader.
type Status struct {
	Backend  string        `json:"backend"`
	State    State         `json:"state"`
	Reason   string        `json:"reason,omitempty"`
	LoadTime time.Duration `json:"load_time_ns,omitempty"`
}

// LoadFunc builds a classifier. It may block for a long time.
type LoadFunc func(ctx context.Context) (Classifier, error)

// Loader loads the model in the background so the HTTP server can bind its
// port immediately. It is safe for concurrent use.
type Loader struct {
	backend string
	load    LoadFunc
	logger  *zap.Logger

	startOnce sync.Once
	done      chan struct{}

	mu       sync.RWMutex
	state    State
	reason   string
	clf      Classifier
	loadTime time.Duration
	closed   bool
}

// NewLoader returns a loader in the loading state. Call Start to begin.
func NewLoader(backend string, load LoadFunc, logger *zap.Logger) *Loader {
	return &Loader{
		backend: backend,
		load:    load,
		logger:  logger.Named("classifier_loader"),
		done:    make(chan struct{}),
		state:   StateLoading,
	}
}

// Ready returns a loader that already serves clf.
func Ready(backend string, clf Classifier) *Loader {
	l := &Loader{backend: backend, logger: zap.NewNop(), done: make(chan struct{}), state: StateReady, clf: clf}
	l.startOnce.Do(func() { close(l.done) })
	return l
}

// Start launches the load once; later calls are no-ops.
func (l *Loader) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.run(ctx)
	})
}

func (l *Loader) run(ctx context.Context) {
	defer close(l.done)

	start := time.Now()
	l.logger.Info("loading model", zap.String("backend", l.backend))

	clf, err := l.safeLoad(ctx)
	elapsed := time.Since(start)
	if err != nil {
		l.logger.Error("model load failed", zap.String("backend", l.backend), zap.Error(err), zap.Duration("elapsed", elapsed))
		l.set(StateFailed, err.Error(), nil, elapsed)
		return
	}

	l.warmup(ctx, clf)
	if !l.set(StateReady, "", clf, elapsed) {
		l.logger.Warn("loader closed during load, discarding model", zap.String("backend", l.backend))
		if closer, ok := clf.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				l.logger.Warn("closing discarded model failed", zap.Error(err))
			}
		}
		return
	}
	l.logger.Info("model ready", zap.String("backend", l.backend), zap.Duration("elapsed", elapsed))
}

func (l *Loader) safeLoad(ctx context.Context) (clf Classifier, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during model load: %v", r)
		}
	}()
	clf, err = l.load(ctx)
	if err == nil && clf == nil {
		err = fmt.Errorf("loader returned no classifier")
	}
	return clf, err
}

// warmup runs one inference on a blank tensor so the first real request
// does not pay for lazy initialization. Failures are only logged.
func (l *Loader) warmup(ctx context.Context, clf Classifier) {
	blank := preprocess.NewTensor(preprocess.InputSize, preprocess.InputSize)
	if _, err := clf.Classify(ctx, blank); err != nil {
		l.logger.Warn("model warmup failed", zap.Error(err))
		return
	}
	l.logger.Info("model warmup done")
}

// set records the load outcome. It reports false once the loader is closed.
func (l *Loader) set(state State, reason string, clf Classifier, elapsed time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.state = state
	l.reason = reason
	l.clf = clf
	l.loadTime = elapsed
	return true
}

// Status reports the current state.
func (l *Loader) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{Backend: l.backend, State: l.state, Reason: l.reason, LoadTime: l.loadTime}
}

// Classifier returns the loaded model or an error wrapping ErrModelUnavailable.
func (l *Loader) Classifier() (Classifier, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	switch l.state {
	case StateReady:
		return l.clf, nil
	case StateFailed:
		return nil, fmt.Errorf("%w: load failed: %s", ErrModelUnavailable, l.reason)
	default:
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, l.state)
	}
}

// Wait blocks until loading finished or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err := l.Classifier()
	return err
}

// Close releases the classifier if it holds resources. A load still in
// flight is discarded when it finishes.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.state != StateFailed {
		l.state = StateFailed
		l.reason = "closed"
	}
	clf := l.clf
	l.clf = nil
	if closer, ok := clf.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
