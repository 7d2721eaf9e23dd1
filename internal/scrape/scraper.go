// Package scrape fetches single web pages and reduces them to short text
// summaries for LLM grounding.
package scrape

import (
	"context"

	"github.com/sells-group/pql-agent/internal/model"
)

// UserAgent is a desktop Chrome user agent; several marketing sites serve
// empty shells to unknown agents.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/122.0.0.0 Safari/537.36"

// Renderer fetches a URL and summarizes it. An error means the renderer could
// not produce a page; callers decide whether to fall back.
type Renderer interface {
	Render(ctx context.Context, url string) (*model.PageSummary, error)
	Name() string
}

// Fetcher returns a page summary for a URL and never fails.
type Fetcher interface {
	Fetch(ctx context.Context, url string) *model.PageSummary
}
