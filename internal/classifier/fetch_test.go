package classifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFetcher() *Fetcher {
	f := NewFetcher(zap.NewNop())
	f.InitialInterval = time.Millisecond
	f.MaxRetries = 3
	return f
}

func TestFetcherSkipsExistingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(dest, []byte("cached"), 0o600))

	require.NoError(t, testFetcher().Ensure(context.Background(), "http://127.0.0.1:1/unused", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("weights"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "models", "model.onnx")
	require.NoError(t, testFetcher().Ensure(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	leftovers, err := filepath.Glob(dest + ".*.part")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetcherStopsOnClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	err := testFetcher().Ensure(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetcherRequiresURLForMissingModel(t *testing.T) {
	err := testFetcher().Ensure(context.Background(), "", filepath.Join(t.TempDir(), "model.onnx"))
	assert.ErrorContains(t, err, "no download url")
}
