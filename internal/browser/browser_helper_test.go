// internal/browser/browser_helper_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

var (
	// globalProcessSemaphore limits the number of concurrent browser processes across all tests.
	globalProcessSemaphore     *semaphore.Weighted
	globalProcessSemaphoreOnce sync.Once
)

const (
	maxTestConcurrency        = 2
	shutdownTimeout           = 15 * time.Second
	defaultBrowserTestTimeout = 120 * time.Second
	testCleanupGracePeriod    = 1 * time.Second
	semaphoreAcquireTimeout   = 10 * time.Second
)

var chromeCandidates = []string{
	"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell",
}

func getGlobalProcessSemaphore() *semaphore.Weighted {
	globalProcessSemaphoreOnce.Do(func() {
		concurrency := int64(runtime.GOMAXPROCS(0))
		if concurrency > maxTestConcurrency {
			concurrency = maxTestConcurrency
		}
		if concurrency < 1 {
			concurrency = 1
		}
		globalProcessSemaphore = semaphore.NewWeighted(concurrency)
	})
	return globalProcessSemaphore
}

// findChrome returns the first Chrome binary on PATH, or "".
func findChrome() string {
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// testFixture is a running browser isolated to one test.
type testFixture struct {
	Browser *Browser
	Config  *config.Config
	Logger  *zap.Logger
	RootCtx context.Context
}

// createTestConfig generates a configuration tuned for fast integration tests.
func createTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.BrowserCfg.Headless = true
	cfg.BrowserCfg.BlockAds = true
	cfg.BrowserCfg.Args = []string{"--disable-dev-shm-usage"}
	cfg.NetworkCfg.NavigationTimeout = 60 * time.Second
	cfg.NetworkCfg.IdleQuietPeriod = 200 * time.Millisecond
	cfg.NetworkCfg.IdleTimeout = 20 * time.Second
	cfg.NetworkCfg.SelectorTimeout = 2 * time.Second
	return cfg
}

// newTestFixture launches a browser for the test, skipping when no Chrome
// binary is installed or the test run is short.
func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	chromePath := findChrome()
	if chromePath == "" {
		t.Skip("no Chrome or Chromium binary found on PATH")
	}

	logger := zaptest.NewLogger(t).With(zap.String("test", t.Name()))

	deadline, ok := t.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultBrowserTestTimeout)
	}
	rootCtx, rootCancel := context.WithDeadline(context.Background(), deadline.Add(-testCleanupGracePeriod))
	t.Cleanup(rootCancel)

	sem := getGlobalProcessSemaphore()
	acquireCtx, acquireCancel := context.WithTimeout(rootCtx, semaphoreAcquireTimeout)
	err := sem.Acquire(acquireCtx, 1)
	acquireCancel()
	require.NoError(t, err, "failed to acquire browser semaphore")
	t.Cleanup(func() { sem.Release(1) })

	cfg := createTestConfig()
	cfg.BrowserCfg.ExecPath = chromePath

	b, err := Launch(rootCtx, cfg.BrowserCfg, cfg.NetworkCfg, logger)
	require.NoError(t, err, "failed to launch browser")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := b.Close(ctx); err != nil {
			t.Logf("Warning: error during browser shutdown: %v", err)
		}
	})

	return &testFixture{Browser: b, Config: cfg, Logger: logger, RootCtx: rootCtx}
}

// createStaticTestServer returns a server that serves the given HTML content.
func createStaticTestServer(t *testing.T, htmlContent string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, htmlContent)
	}))
	t.Cleanup(server.Close)
	return server
}
