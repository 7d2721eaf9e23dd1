package model

// Renderer names recorded on a PageSummary.
const (
	RendererPlaywright       = "playwright"
	RendererRequests         = "requests"
	RendererRequestsFallback = "requests_fallback"
)

// SearchEngine is the only search engine the gatherer queries.
const SearchEngine = "google"

// PageSummary is a compact, text-only view of a fetched web page. When OK is
// false, Error is set and the text fields are empty.
type PageSummary struct {
	URL             string `json:"url"`
	OK              bool   `json:"ok"`
	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	Excerpt         string `json:"excerpt,omitempty"`
	ContentType     string `json:"content_type,omitempty"`
	Renderer        string `json:"renderer"`
	Error           string `json:"error,omitempty"`
	PlaywrightError string `json:"playwright_error,omitempty"`
}

// FailedPage builds the summary for a fetch that did not succeed.
func FailedPage(url, renderer, errMsg string) *PageSummary {
	return &PageSummary{URL: url, OK: false, Renderer: renderer, Error: errMsg}
}

// SearchHit is a single ranked search result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchError is the structured provider error attached to an empty result.
type SearchError struct {
	HTTPStatus int      `json:"http_status"`
	Message    string   `json:"message"`
	Status     string   `json:"status,omitempty"`
	Reasons    []string `json:"reasons"`
}

// SearchResult is the outcome of one web search. An empty Results list with
// Error set means "no evidence", never a crash.
type SearchResult struct {
	Query       string       `json:"query"`
	Engine      string       `json:"engine"`
	Results     []SearchHit  `json:"results"`
	Error       string       `json:"error,omitempty"`
	GoogleError *SearchError `json:"google_error,omitempty"`
	Renderer    string       `json:"renderer,omitempty"`
}

// EvidenceBundle combines the page fetch and search used to ground enrichment.
type EvidenceBundle struct {
	Subject string       `json:"subject"`
	Website *PageSummary `json:"website"`
	Search  SearchResult `json:"search"`
	Sources []string     `json:"sources"`
}

// TopLinks is a deduplicated list of search result links for a query.
type TopLinks struct {
	Query       string       `json:"query"`
	Engine      string       `json:"engine"`
	Links       []string     `json:"links"`
	Source      string       `json:"source,omitempty"`
	Renderer    string       `json:"renderer,omitempty"`
	Error       string       `json:"error,omitempty"`
	GoogleError *SearchError `json:"google_error,omitempty"`
}

// WebsiteHint is a best-guess homepage derived without any web request.
type WebsiteHint struct {
	URL    *string `json:"url"`
	Source string  `json:"source"`
}
