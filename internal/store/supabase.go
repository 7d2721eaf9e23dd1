package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SupabaseStore implements Store over the Supabase PostgREST API. Tables are
// managed in the Supabase project, so Migrate is a no-op.
type SupabaseStore struct {
	baseURL string
	key     string
	http    *http.Client
}

// SupabaseOption configures a SupabaseStore.
type SupabaseOption func(*SupabaseStore)

// WithSupabaseHTTPClient overrides the default http.Client.
func WithSupabaseHTTPClient(hc *http.Client) SupabaseOption {
	return func(s *SupabaseStore) {
		s.http = hc
	}
}

// NewSupabase creates a store for the project at baseURL using the service
// role key.
func NewSupabase(baseURL, serviceRoleKey string, opts ...SupabaseOption) (*SupabaseStore, error) {
	if baseURL == "" || serviceRoleKey == "" {
		return nil, eris.New("supabase: url and service role key are required")
	}
	s := &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     serviceRoleKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *SupabaseStore) Migrate(ctx context.Context) error {
	zap.L().Info("supabase: schema is managed by the project, skipping migrate")
	return nil
}

func (s *SupabaseStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *SupabaseStore) GetRow(ctx context.Context, table string, filters map[string]any) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	conds, err := sortedFilters(filters)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	for _, f := range conds {
		params.Set(f.column, "eq."+f.value)
	}
	params.Set("limit", "1")

	var rows []Row
	if err := s.do(ctx, http.MethodGet, table, params, nil, "", &rows); err != nil {
		return nil, eris.Wrapf(err, "supabase: get %s row", table)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *SupabaseStore) InsertRow(ctx context.Context, table string, fields map[string]any) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	var rows []Row
	if err := s.do(ctx, http.MethodPost, table, nil, fields, "return=representation", &rows); err != nil {
		return nil, eris.Wrapf(err, "supabase: insert %s row", table)
	}
	if len(rows) == 0 {
		return Row{}, nil
	}
	return rows[0], nil
}

func (s *SupabaseStore) InsertRows(ctx context.Context, table string, rows []map[string]any) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var out []Row
	if err := s.do(ctx, http.MethodPost, table, nil, rows, "return=representation", &out); err != nil {
		return nil, eris.Wrapf(err, "supabase: bulk insert %s", table)
	}
	return out, nil
}

func (s *SupabaseStore) UpdateRow(ctx context.Context, table, id string, patch map[string]any) error {
	if err := checkTable(table); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("id", "eq."+id)

	var rows []Row
	if err := s.do(ctx, http.MethodPatch, table, params, patch, "return=representation", &rows); err != nil {
		return eris.Wrapf(err, "supabase: update %s %s", table, id)
	}
	if len(rows) == 0 {
		return eris.Wrapf(ErrNotFound, "supabase: update %s %s", table, id)
	}
	return nil
}

func (s *SupabaseStore) LogEvent(ctx context.Context, pqlID *string, action string, details map[string]any) error {
	_, err := s.InsertRow(ctx, TableActivityLog, ActivityPayload(pqlID, action, details))
	return err
}

func (s *SupabaseStore) do(ctx context.Context, method, table string, params url.Values, body any, prefer string, out any) error {
	endpoint := s.baseURL + "/rest/v1/" + table
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	if resp.StatusCode >= 400 {
		return eris.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(respBody, out), "unmarshal response")
}
