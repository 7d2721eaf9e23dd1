package scrape

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/pql-agent/internal/model"
)

const maxBodyBytes = 2 << 20

// HTTPRenderer fetches raw HTML over net/http and extracts text with
// pattern matching. It needs nothing installed, so it is always available.
type HTTPRenderer struct {
	client   *http.Client
	maxChars int
}

// DefaultRequestTimeout bounds a plain HTTP fetch when no timeout is set.
const DefaultRequestTimeout = 8 * time.Second

// NewHTTPRenderer creates an HTTPRenderer with the given request timeout.
// A non-positive timeout uses DefaultRequestTimeout.
func NewHTTPRenderer(timeout time.Duration, maxChars int) *HTTPRenderer {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxTextChars
	}
	return &HTTPRenderer{
		maxChars: maxChars,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: timeout,
				}).DialContext,
				TLSHandshakeTimeout: timeout,
			},
		},
	}
}

func (r *HTTPRenderer) Name() string { return model.RendererRequests }

// Render fetches targetURL, following redirects. Non-HTML responses yield
// only the bibliographic fields.
func (r *HTTPRenderer) Render(ctx context.Context, targetURL string) (*model.PageSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "requests: create request")
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "requests: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("requests: %d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), targetURL)
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") {
		return &model.PageSummary{
			URL:         finalURL,
			OK:          true,
			ContentType: contentType,
			Renderer:    model.RendererRequests,
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "requests: read body")
	}
	doc := decodeBody(body, contentType)

	return &model.PageSummary{
		URL:         finalURL,
		OK:          true,
		Title:       ExtractTitle(doc),
		Description: ExtractMetaDescription(doc),
		Excerpt:     ExtractVisibleExcerpt(doc, r.maxChars),
		ContentType: contentType,
		Renderer:    model.RendererRequests,
	}, nil
}

// decodeBody converts body to UTF-8 using the charset declared in the
// Content-Type header. Unknown or missing charsets pass through unchanged.
func decodeBody(body []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body)
	}
	name := params["charset"]
	if name == "" || strings.EqualFold(name, "utf-8") {
		return string(body)
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(body)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(out)
}
