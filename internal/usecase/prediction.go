package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/skinai/internal/advisory"
	"github.com/example/skinai/internal/classifier"
	"github.com/example/skinai/internal/config"
	"github.com/example/skinai/internal/decision"
	"github.com/example/skinai/internal/labels"
	"github.com/example/skinai/internal/logging"
	"github.com/example/skinai/internal/preprocess"
	"github.com/example/skinai/internal/scores"
)

const topK = 3

// ModelSource hands out the classifier once it is ready.
type ModelSource interface {
	Classifier() (classifier.Classifier, error)
	Status() classifier.Status
}

// Pipeline bundles the decision components. All fields are read-only after
// construction.
type Pipeline struct {
	Normalizer *preprocess.Normalizer
	Labels     labels.Set
	Policy     decision.Policy
	Advisor    advisory.Composer
}

// NewPipeline wires the components from one quality policy, one label set
// and one set of thresholds.
func NewPipeline(set labels.Set, quality preprocess.QualityPolicy, thresholds decision.Thresholds, normalLabel string) Pipeline {
	return Pipeline{
		Normalizer: preprocess.NewNormalizer(quality),
		Labels:     set,
		Policy:     decision.NewPolicy(thresholds, normalLabel),
		Advisor:    advisory.Composer{Quality: quality},
	}
}

// Quality describes the uploaded image.
type Quality struct {
	Width  int             `json:"w,omitempty"`
	Height int             `json:"h,omitempty"`
	Tier   preprocess.Tier `json:"tier"`
}

// Prediction is the full answer for one image.
type Prediction struct {
	RequestID   string                `json:"request_id"`
	Status      decision.Status       `json:"status"`
	Diagnosis   string                `json:"diagnosis"`
	Confidence  float64               `json:"confidence"`
	ClassIndex  int                   `json:"class_index"`
	Gap         float64               `json:"gap_top1_top2"`
	Top3        []scores.Entry        `json:"top3"`
	Ranking     []scores.Entry        `json:"ranked_all"`
	Uncertainty *decision.Uncertainty `json:"uncertain_reason"`
	Advisory    advisory.Advisory     `json:"message"`
	Quality     Quality               `json:"quality"`
	Details     string                `json:"details,omitempty"`
	Cached      bool                  `json:"-"`
}

// Option customizes a PredictionUseCase.
type Option func(*PredictionUseCase)

// WithMaxUploadBytes sets the upload ceiling.
func WithMaxUploadBytes(n int64) Option {
	return func(uc *PredictionUseCase) { uc.maxUploadBytes = n }
}

// WithCacheTTL sets how long results stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(uc *PredictionUseCase) { uc.cacheTTL = ttl }
}

// PredictionUseCase runs the decision pipeline for uploaded photos.
type PredictionUseCase struct {
	models         ModelSource
	pipeline       Pipeline
	cache          Cache
	logger         *zap.Logger
	metrics        *metrics
	group          singleflight.Group
	maxUploadBytes int64
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewPredictionUseCase constructs a new use case instance. A nil cache
// disables caching.
func NewPredictionUseCase(models ModelSource, pipeline Pipeline, cache Cache, logger *zap.Logger, opts ...Option) *PredictionUseCase {
	if cache == nil {
		cache = NopCache{}
	}
	uc := &PredictionUseCase{
		models:         models,
		pipeline:       pipeline,
		cache:          cache,
		logger:         logger.Named("prediction_usecase"),
		metrics:        newMetrics(),
		maxUploadBytes: config.DefaultMaxUploadBytes,
		cacheTTL:       5 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Pipeline exposes the configured components for introspection.
func (uc *PredictionUseCase) Pipeline() Pipeline { return uc.pipeline }

// ModelStatus reports classifier readiness.
func (uc *PredictionUseCase) ModelStatus() classifier.Status { return uc.models.Status() }

// MaxUploadBytes is the upload ceiling in bytes.
func (uc *PredictionUseCase) MaxUploadBytes() int64 { return uc.maxUploadBytes }

// Predict validates the payload, checks model readiness and runs the
// pipeline. Undersized images yield a bad_image prediction, not an error.
func (uc *PredictionUseCase) Predict(ctx context.Context, imageBytes []byte) (*Prediction, error) {
	requestID := uuid.NewString()
	start := time.Now()

	pred, err := uc.predict(ctx, requestID, imageBytes)
	uc.metrics.observe(pred, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return pred, nil
}

func (uc *PredictionUseCase) predict(ctx context.Context, requestID string, imageBytes []byte) (*Prediction, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	if len(imageBytes) == 0 {
		return nil, ErrEmptyPayload
	}
	if int64(len(imageBytes)) > uc.maxUploadBytes {
		return nil, ErrPayloadTooLarge
	}

	clf, err := uc.models.Classifier()
	if err != nil {
		opLogger.Warn("rejecting request, model unavailable", zap.Error(err))
		return nil, err
	}

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])
	cacheKey := fmt.Sprintf("prediction:%s", hashHex)

	if cached, ok := uc.lookup(ctx, requestID, cacheKey); ok {
		cached.RequestID = requestID
		cached.Cached = true
		opLogger.Debug("served from cache", zap.String("sha1", hashHex))
		return cached, nil
	}

	// Identical uploads share one inference, detached from each caller's
	// cancellation. Callers stop waiting when their own ctx ends.
	ch := uc.group.DoChan(hashHex, func() (interface{}, error) {
		return uc.run(context.WithoutCancel(ctx), clf, imageBytes, cacheKey)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		opLogger.Info("caller went away before prediction finished", zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}

	shared := res.Shared
	if err := res.Err; err != nil {
		var opErr *logging.OperationError
		if errors.As(err, &opErr) {
			opErr = &logging.OperationError{Operation: opErr.Operation, RequestID: requestID, Err: opErr.Err}
			err = opErr
			opLogger.Error("prediction failed", opErr.Fields()...)
		} else {
			opLogger.Error("prediction failed", zap.Error(err))
		}
		return nil, err
	}

	pred := *res.Val.(*Prediction)
	pred.RequestID = requestID
	opLogger.Info("prediction complete",
		zap.String("status", string(pred.Status)),
		zap.String("diagnosis", pred.Diagnosis),
		zap.Float64("confidence", pred.Confidence),
		zap.String("tier", string(pred.Quality.Tier)),
		zap.Bool("shared", shared),
	)
	return &pred, nil
}

// run executes the pipeline for one image. Its result may be shared by
// several requests, so errors carry no request id.
func (uc *PredictionUseCase) run(ctx context.Context, clf classifier.Classifier, imageBytes []byte, cacheKey string) (*Prediction, error) {
	p := uc.pipeline

	norm, err := p.Normalizer.Normalize(imageBytes)
	var bad *preprocess.BadImageError
	switch {
	case errors.As(err, &bad):
		pred := uc.badImage(bad)
		uc.store(ctx, "", cacheKey, pred)
		return pred, nil
	case err != nil:
		return nil, logging.NewOperationError("usecase.normalize", "", fmt.Errorf("%w: %w", ErrInternal, err))
	}

	raw, err := clf.Classify(ctx, norm.Tensor)
	if err != nil {
		return nil, logging.NewOperationError("usecase.classify", "", fmt.Errorf("%w: %w", ErrInternal, err))
	}
	if len(raw) != p.Labels.Len() {
		return nil, logging.NewOperationError("usecase.classify", "",
			fmt.Errorf("%w: classifier returned %d scores for %d labels", ErrInternal, len(raw), p.Labels.Len()))
	}

	probs := scores.EnsureDistribution(raw)
	analysis := scores.Analyze(probs, p.Labels, topK)
	outcome := p.Policy.Decide(analysis, norm.Tier)

	pred := &Prediction{
		Status:      outcome.Status,
		Diagnosis:   outcome.Label,
		Confidence:  outcome.Confidence,
		ClassIndex:  outcome.Index,
		Gap:         outcome.Gap,
		Top3:        outcome.Top3,
		Ranking:     analysis.Ranking,
		Uncertainty: outcome.Uncertainty,
		Advisory:    p.Advisor.Compose(outcome.Status, norm.Tier),
		Quality:     Quality{Width: norm.Width, Height: norm.Height, Tier: norm.Tier},
	}
	uc.store(ctx, "", cacheKey, pred)
	return pred, nil
}

func (uc *PredictionUseCase) badImage(bad *preprocess.BadImageError) *Prediction {
	p := uc.pipeline
	return &Prediction{
		Status:     decision.StatusBadImage,
		Diagnosis:  p.Policy.NormalLabel,
		Confidence: 0,
		ClassIndex: p.Labels.Index(p.Policy.NormalLabel),
		Advisory:   p.Advisor.Compose(decision.StatusBadImage, preprocess.TierBad),
		Quality:    Quality{Width: bad.Width, Height: bad.Height, Tier: preprocess.TierBad},
		Details:    fmt.Sprintf("image too small (%dx%d)", bad.Width, bad.Height),
	}
}

// lookup never fails the request; cache problems are logged and treated as a miss.
func (uc *PredictionUseCase) lookup(ctx context.Context, requestID, key string) (*Prediction, bool) {
	var value string
	err := uc.withCacheRetry(ctx, requestID, "cache.get.prediction", func() error {
		v, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.lookup", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var pred Prediction
	if err := json.Unmarshal([]byte(value), &pred); err != nil {
		logging.WithOperation(uc.logger, "usecase.lookup", requestID).Warn("failed to decode cached prediction", zap.Error(err))
		return nil, false
	}
	return &pred, true
}

func (uc *PredictionUseCase) store(ctx context.Context, requestID, key string, pred *Prediction) {
	stored := *pred
	stored.RequestID = ""
	serialized, err := json.Marshal(stored)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.store", requestID).Error("failed to serialize prediction", zap.Error(err))
		return
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.prediction", func() error {
		return uc.cache.Set(ctx, key, string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.store", requestID).Warn("failed to cache prediction", zap.Error(err))
	}
}
