package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "test-cx", q.Get("cx"))
		assert.Equal(t, "Acme Corp", q.Get("q"))
		assert.Equal(t, "5", q.Get("num"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"title": "Acme Corp", "link": "https://acme.com", "snippet": "Billing for teams"},
				{"title": "Acme on LinkedIn", "link": "https://linkedin.com/company/acme", "snippet": ""}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "test-cx", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), "Acme Corp", 5)
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "https://acme.com", resp.Items[0].Link)
	assert.Equal(t, "Billing for teams", resp.Items[0].Snippet)
}

func TestSearch_ClampsNum(t *testing.T) {
	var gotNum []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotNum = append(gotNum, r.URL.Query().Get("num"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("k", "cx", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "q", 50)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "q", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"10", "1"}, gotNum)
}

func TestSearch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {
			"code": 403,
			"message": "  Requests from this client are blocked. ",
			"status": "PERMISSION_DENIED",
			"errors": [{"reason": "forbidden"}, {"reason": ""}, {"reason": "accessNotConfigured"}]
		}}`))
	}))
	defer srv.Close()

	c := NewClient("k", "cx", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Equal(t, "Requests from this client are blocked.", apiErr.Message)
	assert.Equal(t, "PERMISSION_DENIED", apiErr.Status)
	assert.Equal(t, []string{"forbidden", "accessNotConfigured"}, apiErr.Reasons)
}

func TestSearch_APIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`oops`))
	}))
	defer srv.Close()

	_, err := NewClient("k", "cx", WithBaseURL(srv.URL)).Search(context.Background(), "q", 5)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Empty(t, apiErr.Message)
	assert.Empty(t, apiErr.Reasons)
}

func TestSearch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient("k", "cx", WithBaseURL(url)).Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google: send request")

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestSearch_InvalidJSONIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", "cx", WithBaseURL(srv.URL)).Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Items)
}

func TestSearch_HTMLSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>captcha</body></html>`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", "cx", WithBaseURL(srv.URL)).Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.NotNil(t, resp.Items)
	assert.Len(t, resp.Items, 0)
}

func TestSearch_RateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("k", "cx", WithBaseURL(srv.URL), WithRateLimit(0.01))
	_, err := c.Search(context.Background(), "q", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Search(ctx, "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}
