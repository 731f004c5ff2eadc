// File: internal/browser/launcher.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// ErrBrowserClosed is returned when a page is requested from a closed browser.
var ErrBrowserClosed = errors.New("browser is closed")

// allocatorFlags translates the browser configuration into Chrome command line
// flags, keyed without the leading dashes. Kept separate from the chromedp
// options so the translation can be inspected in tests.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"no-sandbox":               true,
		"disable-gpu":              true,
		"disable-dev-shm-usage":    true,
		"no-first-run":             true,
		"no-default-browser-check": true,
	}

	if cfg.Headless {
		flags["headless"] = true
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	} else {
		flags["headless"] = false
	}

	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}

	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", w, h)
	}

	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}

	// Custom args are applied last so they can override anything above.
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
		} else {
			flags[arg] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the chromedp allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	flags := allocatorFlags(cfg)

	// Sorted for a stable command line.
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-popup-blocking", true),
	}
	for _, k := range keys {
		opts = append(opts, chromedp.Flag(k, flags[k]))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Browser is a chromedp backed browser process.
type Browser struct {
	cfg    config.BrowserConfig
	netCfg config.NetworkConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	pages  []*Page
}

var _ schemas.Browser = (*Browser)(nil)

// Launch starts a browser process. The process lives until Close is called or
// ctx is cancelled.
func Launch(ctx context.Context, cfg config.BrowserConfig, netCfg config.NetworkConfig, logger *zap.Logger) (*Browser, error) {
	logger = logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, DefaultAllocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	// The first Run on a fresh context starts the process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("Browser launched.",
		zap.Bool("headless", cfg.Headless),
		zap.Bool("block_ads", cfg.BlockAds),
	)

	return &Browser{
		cfg:           cfg,
		netCfg:        netCfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewPage opens a new tab with network monitoring, extra headers and request
// blocking applied.
func (b *Browser) NewPage(ctx context.Context) (schemas.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrowserClosed
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	// The target must be created on the bare tab context; a deadline on the
	// first Run would close the tab when it expires.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	monitor := newIdleMonitor(b.logger)
	chromedp.ListenTarget(tabCtx, monitor.handleEvent)

	actions := []chromedp.Action{network.Enable()}
	if len(b.netCfg.Headers) > 0 {
		headers := make(network.Headers, len(b.netCfg.Headers))
		for k, v := range b.netCfg.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if patterns := BlockedPatterns(b.cfg); len(patterns) > 0 {
		actions = append(actions, network.SetBlockedURLs(patterns))
	}
	if w, h := b.cfg.Viewport["width"], b.cfg.Viewport["height"]; w > 0 && h > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(w), int64(h)))
	}

	runCtx, cancel := scope(tabCtx, ctx, b.netCfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}

	p := &Page{
		ctx:     tabCtx,
		cancel:  tabCancel,
		monitor: monitor,
		cfg:     b.cfg,
		netCfg:  b.netCfg,
		logger:  b.logger.Named("page"),
	}
	b.pages = append(b.pages, p)
	return p, nil
}

// Close closes all open pages and shuts the process down. It is safe to call more than once.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pages := b.pages
	b.pages = nil
	b.mu.Unlock()

	for _, p := range pages {
		if err := p.Close(ctx); err != nil {
			b.logger.Debug("Error closing page during browser shutdown.", zap.Error(err))
		}
	}

	// chromedp.Cancel blocks until the process exits, so bound it by ctx.
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.browserCtx) }()

	var err error
	select {
	case err = <-done:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	case <-ctx.Done():
		err = fmt.Errorf("browser shutdown: %w", ctx.Err())
	}
	b.browserCancel()
	b.allocCancel()
	b.logger.Info("Browser closed.")
	return err
}

// scope derives a context from the chromedp context target that is also
// cancelled when caller is done, optionally bounded by timeout.
func scope(target, caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(target, timeout)
	} else {
		ctx, cancel = context.WithCancel(target)
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
