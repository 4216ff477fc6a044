package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Fetcher downloads the model file when it is not on disk yet.
type Fetcher struct {
	Client          *http.Client
	InitialInterval time.Duration
	MaxRetries      uint64
	Logger          *zap.Logger
}

// NewFetcher returns a Fetcher with production retry settings.
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Client:          &http.Client{Timeout: 10 * time.Minute},
		InitialInterval: time.Second,
		MaxRetries:      4,
		Logger:          logger.Named("model_fetcher"),
	}
}

// Ensure makes sure dest exists, downloading it from url if needed. The
// download goes to a temporary file that is renamed into place on success.
func (f *Fetcher) Ensure(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat model %s: %w", dest, err)
	}
	if url == "" {
		return fmt.Errorf("model %s not found and no download url configured", dest)
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, f.MaxRetries), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return f.download(ctx, url, dest)
	}, b, func(err error, wait time.Duration) {
		f.Logger.Warn("model download failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("wait", wait))
	})
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	f.Logger.Info("model downloaded", zap.String("path", dest), zap.Int("attempts", attempt))
	return nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
