package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/skinai/internal/classifier"
	"github.com/example/skinai/internal/config"
	"github.com/example/skinai/internal/grpcclient"
	"github.com/example/skinai/internal/handlers"
	"github.com/example/skinai/internal/labels"
	"github.com/example/skinai/internal/logging"
	"github.com/example/skinai/internal/usecase"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything the commands share.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	labels labels.Set
	models *classifier.Loader
	uc     *usecase.PredictionUseCase
	redis  *redis.Client
}

func newApp(ctx context.Context, configPath string, withCache bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	set, err := labels.Load(cfg.LabelsPath)
	if err != nil {
		logger.Warn("using default labels", zap.String("path", cfg.LabelsPath), zap.Error(err))
	}
	if set.Index(cfg.NormalLabel) < 0 {
		logger.Warn("normal label not in label set, normal override disabled", zap.String("normal_label", cfg.NormalLabel))
	}

	a := &app{cfg: cfg, logger: logger, labels: set}
	a.models = classifier.NewLoader(cfg.Model.Backend, modelLoadFunc(cfg.Model, logger), logger)
	a.models.Start(ctx)

	var cache usecase.Cache
	if withCache && cfg.Cache.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		a.redis = initRedis(redisCtx, cfg.Cache.RedisAddr, logger)
		cache = usecase.NewRedisCache(a.redis)
	}

	pipeline := usecase.NewPipeline(set, cfg.Quality, cfg.Thresholds, cfg.NormalLabel)
	a.uc = usecase.NewPredictionUseCase(a.models, pipeline, cache, logger,
		usecase.WithMaxUploadBytes(cfg.MaxUploadBytes),
		usecase.WithCacheTTL(cfg.Cache.TTL),
	)
	return a, nil
}

func (a *app) Close() {
	if err := a.models.Close(); err != nil {
		a.logger.Warn("closing model failed", zap.Error(err))
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.logger.Sync()
}

func modelLoadFunc(cfg config.ModelConfig, logger *zap.Logger) classifier.LoadFunc {
	switch cfg.Backend {
	case config.BackendGRPC:
		return func(ctx context.Context) (classifier.Classifier, error) {
			clf, _, err := grpcclient.DialClassifier(ctx, cfg.ClassifierAddr, logger)
			return clf, err
		}
	default:
		return func(ctx context.Context) (classifier.Classifier, error) {
			if err := classifier.NewFetcher(logger).Ensure(ctx, cfg.URL, cfg.Path); err != nil {
				return nil, err
			}
			return classifier.NewONNXClassifier(classifier.ONNXConfig{
				ModelPath:         cfg.Path,
				SharedLibraryPath: cfg.SharedLibraryPath,
				InputName:         cfg.InputName,
				OutputName:        cfg.OutputName,
				NumClasses:        labels.Size,
			})
		}
	}
}

// initRedis connects to Redis. A failed ping is logged and the client is kept;
// cache errors never fail a prediction.
func initRedis(ctx context.Context, addr string, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, cache degraded", zap.String("addr", addr), zap.Error(err))
	}
	return client
}

func newRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(a.logger))
	r.MaxMultipartMemory = a.cfg.MaxUploadBytes
	handlers.RegisterRoutes(r, a.uc)
	return r
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
