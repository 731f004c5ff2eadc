// File: internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// ErrPageClosed is returned by every operation on a closed page.
var ErrPageClosed = errors.New("page is closed")

const linksJS = `Array.from(document.querySelectorAll('a[href]')).map(a => ({
	url: a.href,
	text: (a.innerText || a.textContent || '').trim()
}))`

// Page is a single chromedp tab.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	monitor *idleMonitor
	cfg     config.BrowserConfig
	netCfg  config.NetworkConfig
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ schemas.Page = (*Page)(nil)

// run executes actions on the tab, cancelled with ctx and bounded by timeout.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return ErrPageClosed
	}
	runCtx, cancel := scope(p.ctx, ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Goto navigates and waits for the load event.
func (p *Page) Goto(ctx context.Context, url string) error {
	if IsBlocked(p.cfg, url) {
		p.logger.Warn("Navigation target matches a blocked pattern, the request will be refused.", zap.String("url", url))
	}
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx, p.netCfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *Page) WaitForNetworkIdle(ctx context.Context) error {
	if p.ctx.Err() != nil {
		return ErrPageClosed
	}
	return p.monitor.Wait(ctx, p.netCfg.IdleQuietPeriod, p.netCfg.IdleTimeout)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.netCfg.NavigationTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.netCfg.SelectorTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, p.netCfg.SelectorTimeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

func (p *Page) InnerText(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, p.netCfg.SelectorTimeout, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read text of %q: %w", selector, err)
	}
	return text, nil
}

// WaitForSelector waits until selector matches a node. Expiry of the selector
// timeout is reported as schemas.ErrSelectorTimeout; cancellation of ctx is not.
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	err := p.run(ctx, p.netCfg.SelectorTimeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return fmt.Errorf("%w: %q after %s", schemas.ErrSelectorTimeout, selector, p.netCfg.SelectorTimeout)
	default:
		return fmt.Errorf("waiting for %q: %w", selector, err)
	}
}

// Query returns the first node matching selector without waiting, or nil.
func (p *Page) Query(ctx context.Context, selector string) (schemas.ElementHandle, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, p.netCfg.SelectorTimeout, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &Element{page: p, node: nodes[0], selector: selector}, nil
}

func (p *Page) Links(ctx context.Context) ([]schemas.Link, error) {
	var links []schemas.Link
	if err := p.run(ctx, p.netCfg.SelectorTimeout, chromedp.Evaluate(linksJS, &links)); err != nil {
		return nil, fmt.Errorf("failed to collect links: %w", err)
	}
	return links, nil
}

// Close closes the tab. Subsequent calls return the first result.
func (p *Page) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.ctx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				p.closeErr = fmt.Errorf("failed to close page: %w", err)
			}
		case <-ctx.Done():
			p.closeErr = fmt.Errorf("page close: %w", ctx.Err())
		}
		p.cancel()
	})
	return p.closeErr
}
