package evidence

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pql-agent/internal/model"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) *model.PageSummary {
	return m.Called(ctx, url).Get(0).(*model.PageSummary)
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string, limit int) model.SearchResult {
	return m.Called(ctx, query, limit).Get(0).(model.SearchResult)
}

func strp(s string) *string { return &s }

func acmeSearch() model.SearchResult {
	return model.SearchResult{
		Query:  "Acme",
		Engine: model.SearchEngine,
		Results: []model.SearchHit{
			{Title: "Acme", URL: "https://acme.io/about"},
			{Title: "Acme LinkedIn", URL: "https://linkedin.com/company/acme"},
			{Title: "Acme again", URL: "https://acme.io/about"},
		},
		Renderer: SearchRenderer,
	}
}

func TestBuildSources_DedupHintFirst(t *testing.T) {
	website := &model.PageSummary{URL: "https://acme.io/about", OK: true}
	got := BuildSources(website, acmeSearch())
	assert.Equal(t, []string{"https://acme.io/about", "https://linkedin.com/company/acme"}, got)
}

func TestBuildSources_NoWebsite(t *testing.T) {
	got := BuildSources(nil, acmeSearch())
	assert.Equal(t, []string{"https://acme.io/about", "https://linkedin.com/company/acme"}, got)

	assert.Equal(t, []string{}, BuildSources(nil, model.SearchResult{}))
}

func TestBuildSources_FailedPageStillCounts(t *testing.T) {
	website := model.FailedPage("https://acme.io", model.RendererRequestsFallback, "timeout")
	got := BuildSources(website, model.SearchResult{})
	assert.Equal(t, []string{"https://acme.io"}, got)
}

func TestGatherer_GatherNormalizesHint(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://acme.io/about").
		Return(&model.PageSummary{URL: "https://acme.io/about", OK: true, Title: "Acme", Renderer: model.RendererPlaywright})
	s := &mockSearcher{}
	s.On("Search", mock.Anything, "Acme", 5).Return(acmeSearch())

	g := NewGatherer(f, s, 0)
	b := g.Gather(context.Background(), " Acme ", strp("acme.io/about?utm_source=x#team"))

	assert.Equal(t, "Acme", b.Subject)
	require.NotNil(t, b.Website)
	assert.Equal(t, "Acme", b.Website.Title)
	assert.Equal(t, []string{"https://acme.io/about", "https://linkedin.com/company/acme"}, b.Sources)
	f.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestGatherer_NoHintSkipsFetch(t *testing.T) {
	f := &mockFetcher{}
	s := &mockSearcher{}
	s.On("Search", mock.Anything, "Acme", 3).Return(acmeSearch())

	g := NewGatherer(f, s, 3)
	for _, hint := range []*string{nil, strp(""), strp("not a url")} {
		b := g.Gather(context.Background(), "Acme", hint)
		assert.Nil(t, b.Website)
		assert.Len(t, b.Sources, 2)
	}
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestGatherer_SequentialMatchesConcurrent(t *testing.T) {
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://acme.io").
		Return(&model.PageSummary{URL: "https://acme.io", OK: true, Renderer: model.RendererRequestsFallback, PlaywrightError: "driver missing"})
	s := &mockSearcher{}
	s.On("Search", mock.Anything, "Acme", 5).Return(acmeSearch())

	g := NewGatherer(f, s, 5)
	concurrent := g.Gather(context.Background(), "Acme", strp("acme.io"))
	sequential := g.GatherSequential(context.Background(), "Acme", strp("acme.io"))
	assert.Equal(t, concurrent, sequential)
}

type countingFetcher struct {
	calls atomic.Int32
}

func (c *countingFetcher) Fetch(_ context.Context, url string) *model.PageSummary {
	c.calls.Add(1)
	return &model.PageSummary{URL: url, OK: true}
}

func TestGatherer_SearchErrorStillYieldsBundle(t *testing.T) {
	f := &countingFetcher{}
	g := NewGatherer(f, NewGoogleSearcher(nil), 5)

	b := g.Gather(context.Background(), "Acme", strp("https://acme.io"))
	assert.Equal(t, int32(1), f.calls.Load())
	assert.NotEmpty(t, b.Search.Error)
	assert.Equal(t, []string{"https://acme.io"}, b.Sources)
}

func TestGatherer_TopLinks(t *testing.T) {
	s := &mockSearcher{}
	s.On("Search", mock.Anything, "acme billing", 2).Return(acmeSearch())

	g := NewGatherer(&mockFetcher{}, s, 5)
	got := g.TopLinks(context.Background(), "  acme   billing ", 2)

	assert.Equal(t, "acme billing", got.Query)
	assert.Equal(t, []string{"https://acme.io/about", "https://linkedin.com/company/acme"}, got.Links)
	assert.Equal(t, SearchRenderer, got.Source)
	assert.Equal(t, SearchRenderer, got.Renderer)
}

func TestGatherer_TopLinksPropagatesError(t *testing.T) {
	g := NewGatherer(&mockFetcher{}, NewGoogleSearcher(nil), 5)
	got := g.TopLinks(context.Background(), "acme", 5)
	assert.Empty(t, got.Links)
	assert.NotEmpty(t, got.Error)
	require.NotNil(t, got.GoogleError)
	assert.Equal(t, 400, got.GoogleError.HTTPStatus)
}

func TestGatherer_TopLinksBlankQuery(t *testing.T) {
	s := &mockSearcher{}
	g := NewGatherer(&mockFetcher{}, s, 5)
	got := g.TopLinks(context.Background(), " ", 5)
	assert.Equal(t, []string{}, got.Links)
	s.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}
