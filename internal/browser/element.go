// File: internal/browser/element.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// Element is a DOM node resolved on a Page. It stays valid until the document
// it belongs to is replaced.
type Element struct {
	page     *Page
	node     *cdp.Node
	selector string
}

var _ schemas.ElementHandle = (*Element)(nil)

func (e *Element) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

// Fill clears the element and types value into it.
func (e *Element) Fill(ctx context.Context, value string) error {
	e.page.logger.Debug("Filling element.", zap.String("selector", e.selector), zap.Int("length", len(value)))
	err := e.page.run(ctx, e.page.netCfg.SelectorTimeout,
		chromedp.Focus(e.ids(), chromedp.ByNodeID),
		chromedp.Clear(e.ids(), chromedp.ByNodeID),
		chromedp.SendKeys(e.ids(), value, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %q: %w", e.selector, err)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.page.logger.Debug("Clicking element.", zap.String("selector", e.selector))
	if err := e.page.run(ctx, e.page.netCfg.SelectorTimeout, chromedp.Click(e.ids(), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("failed to click %q: %w", e.selector, err)
	}
	return nil
}
