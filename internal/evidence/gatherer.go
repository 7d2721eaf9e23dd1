// Package evidence gathers the web context used to ground lead enrichment: a
// summary of the lead's likely homepage plus ranked search results.
package evidence

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/scrape"
)

// Gatherer combines a page fetcher and a searcher.
type Gatherer struct {
	fetcher  scrape.Fetcher
	searcher Searcher
	limit    int
}

// NewGatherer creates a Gatherer. A non-positive limit uses DefaultLimit.
func NewGatherer(fetcher scrape.Fetcher, searcher Searcher, limit int) *Gatherer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gatherer{fetcher: fetcher, searcher: searcher, limit: ClampLimit(limit)}
}

// Gather fetches the hint page and searches for the subject concurrently.
func (g *Gatherer) Gather(ctx context.Context, subject string, hintURL *string) model.EvidenceBundle {
	target, hasTarget := normalizeHint(hintURL)

	var (
		website *model.PageSummary
		search  model.SearchResult
	)

	eg, egCtx := errgroup.WithContext(ctx)
	if hasTarget {
		eg.Go(func() error {
			website = g.fetcher.Fetch(egCtx, target)
			return nil
		})
	}
	eg.Go(func() error {
		search = g.searcher.Search(egCtx, subject, g.limit)
		return nil
	})
	_ = eg.Wait()

	return g.bundle(subject, website, search)
}

// GatherSequential fetches then searches on the calling goroutine. It yields
// the same bundle as Gather.
func (g *Gatherer) GatherSequential(ctx context.Context, subject string, hintURL *string) model.EvidenceBundle {
	var website *model.PageSummary
	if target, ok := normalizeHint(hintURL); ok {
		website = g.fetcher.Fetch(ctx, target)
	}
	search := g.searcher.Search(ctx, subject, g.limit)
	return g.bundle(subject, website, search)
}

// TopLinks returns the deduplicated result links for a free-text query.
func (g *Gatherer) TopLinks(ctx context.Context, query string, limit int) model.TopLinks {
	query = scrape.CleanText(query)
	if query == "" {
		return model.TopLinks{Query: "", Engine: model.SearchEngine, Links: []string{}}
	}

	limit = ClampLimit(limit)
	search := g.searcher.Search(ctx, query, limit)

	links := make([]string, 0, limit)
	seen := make(map[string]bool, len(search.Results))
	for _, hit := range search.Results {
		u := scrape.CleanText(hit.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		links = append(links, u)
		if len(links) >= limit {
			break
		}
	}

	return model.TopLinks{
		Query:       query,
		Engine:      model.SearchEngine,
		Links:       links,
		Source:      SearchRenderer,
		Renderer:    search.Renderer,
		Error:       search.Error,
		GoogleError: search.GoogleError,
	}
}

func (g *Gatherer) bundle(subject string, website *model.PageSummary, search model.SearchResult) model.EvidenceBundle {
	sources := BuildSources(website, search)
	zap.L().Debug("evidence gathered",
		zap.String("subject", subject),
		zap.Bool("website_ok", website != nil && website.OK),
		zap.Int("search_results", len(search.Results)),
		zap.Int("sources", len(sources)),
	)
	return model.EvidenceBundle{
		Subject: scrape.CleanText(subject),
		Website: website,
		Search:  search,
		Sources: sources,
	}
}

// BuildSources lists the website URL, when a page was fetched, followed by
// search result URLs in rank order, keeping the first occurrence of each.
func BuildSources(website *model.PageSummary, search model.SearchResult) []string {
	candidates := make([]string, 0, len(search.Results)+1)
	if website != nil && website.URL != "" {
		candidates = append(candidates, website.URL)
	}
	for _, hit := range search.Results {
		if hit.URL != "" {
			candidates = append(candidates, hit.URL)
		}
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func normalizeHint(hintURL *string) (string, bool) {
	if hintURL == nil {
		return "", false
	}
	return scrape.NormalizeURL(*hintURL)
}
