package scrape

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/model"
)

const errRichUnavailable = "rich renderer is not configured"

// Chain fetches a page with the rich renderer first and falls back to the
// simple renderer. Each tier gets exactly one attempt.
type Chain struct {
	rich   Renderer // optional
	simple Renderer
}

// NewChain creates a Chain. rich may be nil when no browser is available; the
// simple renderer is always tried in that case.
func NewChain(rich, simple Renderer) *Chain {
	return &Chain{rich: rich, simple: simple}
}

// Fetch returns the rich renderer's summary when it succeeds. Otherwise it
// returns the simple renderer's result labeled as a fallback and annotated
// with the rich renderer's failure. It never returns nil.
func (c *Chain) Fetch(ctx context.Context, targetURL string) *model.PageSummary {
	richErr := errRichUnavailable
	if c.rich != nil {
		page, err := c.rich.Render(ctx, targetURL)
		if err == nil && page != nil && page.OK {
			return page
		}
		richErr = failureReason(page, err)
		zap.L().Debug("scrape: rich renderer failed, falling back",
			zap.String("renderer", c.rich.Name()),
			zap.String("url", targetURL),
			zap.String("error", richErr),
		)
	}

	page, err := c.simple.Render(ctx, targetURL)
	if err != nil || page == nil {
		page = model.FailedPage(targetURL, model.RendererRequestsFallback, failureReason(page, err))
	}
	page.Renderer = model.RendererRequestsFallback
	page.PlaywrightError = richErr
	return page
}

func failureReason(page *model.PageSummary, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case page != nil && page.Error != "":
		return page.Error
	default:
		return "renderer returned no page"
	}
}
