package evidence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/scrape"
	"github.com/sells-group/pql-agent/pkg/google"
)

// SearchRenderer labels results produced by the Custom Search JSON API.
const SearchRenderer = "google_custom_search_api"

// DefaultLimit is the number of search results gathered per subject.
const DefaultLimit = 5

// Searcher runs a web search. Failures are reported inside the result,
// never as an error.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) model.SearchResult
}

// GoogleSearcher adapts the Custom Search client to Searcher. A nil client
// means credentials are not configured.
type GoogleSearcher struct {
	client google.Client
}

// NewGoogleSearcher wraps client, which may be nil.
func NewGoogleSearcher(client google.Client) *GoogleSearcher {
	return &GoogleSearcher{client: client}
}

// ClampLimit bounds a result count to what the search API accepts.
func ClampLimit(limit int) int {
	return max(1, min(limit, google.MaxResults))
}

func (s *GoogleSearcher) Search(ctx context.Context, query string, limit int) model.SearchResult {
	query = scrape.CleanText(query)
	if query == "" {
		return model.SearchResult{Query: "", Engine: model.SearchEngine, Results: []model.SearchHit{}}
	}

	if s.client == nil {
		return model.SearchResult{
			Query:   query,
			Engine:  model.SearchEngine,
			Results: []model.SearchHit{},
			Error:   "GOOGLE_SEARCH_API_KEY/GOOGLE_SEARCH_CX not configured.",
			GoogleError: &model.SearchError{
				HTTPStatus: 400,
				Message:    "Missing required Google Custom Search credentials.",
				Reasons:    []string{"missing_api_credentials"},
			},
		}
	}

	limit = ClampLimit(limit)
	resp, err := s.client.Search(ctx, query, limit)
	if err != nil {
		var apiErr *google.APIError
		if errors.As(err, &apiErr) {
			zap.L().Warn("evidence: search api error",
				zap.String("query", query),
				zap.Int("http_status", apiErr.StatusCode),
				zap.Strings("reasons", apiErr.Reasons),
			)
			return model.SearchResult{
				Query:       query,
				Engine:      model.SearchEngine,
				Results:     []model.SearchHit{},
				Error:       fmt.Sprintf("Google Custom Search API error (HTTP %d).", apiErr.StatusCode),
				GoogleError: searchErrorFrom(apiErr),
				Renderer:    SearchRenderer,
			}
		}

		zap.L().Warn("evidence: search request failed", zap.String("query", query), zap.Error(err))
		return model.SearchResult{
			Query:   query,
			Engine:  model.SearchEngine,
			Results: []model.SearchHit{},
			Error:   "Google Custom Search API request failed.",
			GoogleError: &model.SearchError{
				HTTPStatus: 503,
				Message:    "Network request to Google Custom Search API failed.",
				Reasons:    []string{"network_request_failed"},
			},
		}
	}

	items := resp.Items
	if len(items) > limit {
		items = items[:limit]
	}
	hits := make([]model.SearchHit, 0, len(items))
	for _, item := range items {
		link := scrape.CleanText(item.Link)
		if link == "" {
			continue
		}
		snippet := scrape.CleanText(item.Snippet)
		if snippet != "" {
			snippet = scrape.Truncate(snippet, scrape.MaxTextChars)
		}
		hits = append(hits, model.SearchHit{
			Title:   scrape.CleanText(item.Title),
			URL:     link,
			Snippet: snippet,
		})
	}

	return model.SearchResult{
		Query:    query,
		Engine:   model.SearchEngine,
		Results:  hits,
		Renderer: SearchRenderer,
	}
}

func searchErrorFrom(e *google.APIError) *model.SearchError {
	msg := scrape.CleanText(e.Message)
	if msg == "" {
		msg = "Google Custom Search API returned an error."
	}
	reasons := e.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &model.SearchError{
		HTTPStatus: e.StatusCode,
		Message:    msg,
		Status:     scrape.CleanText(e.Status),
		Reasons:    reasons,
	}
}
