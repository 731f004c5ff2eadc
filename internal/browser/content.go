// File: internal/browser/content.go
package browser

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// PageContent is the textual state of a page handed to the language model.
type PageContent struct {
	Text  string `json:"text"`
	HTML  string `json:"html"`
	Title string `json:"title"`
}

// ExtractPageContent reads the body text, full HTML and title of page.
func ExtractPageContent(ctx context.Context, page schemas.Page) (PageContent, error) {
	var pc PageContent
	var err error

	if pc.Text, err = page.InnerText(ctx, "body"); err != nil {
		return PageContent{}, fmt.Errorf("extract text: %w", err)
	}
	if pc.HTML, err = page.Content(ctx); err != nil {
		return PageContent{}, fmt.Errorf("extract html: %w", err)
	}
	if pc.Title, err = page.Title(ctx); err != nil {
		return PageContent{}, fmt.Errorf("extract title: %w", err)
	}
	return pc, nil
}
