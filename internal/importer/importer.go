// Package importer loads lead files (CSV, XLSX, JSON, YAML) and inserts
// them into the pqls table with the column mapping of the upload form.
package importer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/store"
)

// Record is one uploaded row keyed by its original column header.
type Record map[string]any

// Header aliases, checked in order.
var (
	emailKeys      = []string{"email", "Email"}
	companyKeys    = []string{"company_name", "Company", "company", "Company Name", "Company name"}
	usageKeys      = []string{"product_usage_score", "usage_score", "score", "Usage Score (1-10)", "Usage Score"}
	lastActiveKeys = []string{"last_active_date", "last_active"}
)

// Inserter bulk-inserts rows.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []map[string]any) ([]store.Row, error)
}

// LoadFile reads records from path, choosing the parser by extension.
func LoadFile(ctx context.Context, path string) ([]Record, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return ReadXLSX(path, XLSXOptions{})
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch ext {
	case ".csv":
		return ReadCSV(ctx, f)
	case ".json":
		return ReadJSON(f)
	case ".yaml", ".yml":
		return ReadYAML(f)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", ext)
	}
}

// LeadFields maps an uploaded record onto pqls columns. The full record is
// kept as raw_data so free-text values such as "Last Active" reach the
// qualifier untouched.
func LeadFields(rec Record) map[string]any {
	fields := map[string]any{
		"email":               firstString(rec, emailKeys),
		"company_name":        nil,
		"product_usage_score": nil,
		"last_active_date":    nil,
		"raw_data":            rawDataOf(rec),
		"status":              string(model.LeadStatusPending),
	}
	if c := firstString(rec, companyKeys); c != "" {
		fields["company_name"] = c
	}
	if u, ok := usageOf(rec); ok {
		fields["product_usage_score"] = u
	}
	if d := firstString(rec, lastActiveKeys); d != "" {
		fields["last_active_date"] = d
	}
	if id, ok := rec["id"].(string); ok && strings.TrimSpace(id) != "" {
		fields["id"] = strings.TrimSpace(id)
	}
	return fields
}

// Import inserts the records into pqls in one batch. Records without an
// email are skipped.
func Import(ctx context.Context, ins Inserter, records []Record) ([]model.Lead, error) {
	rows := make([]map[string]any, 0, len(records))
	for i, rec := range records {
		fields := LeadFields(rec)
		if fields["email"] == "" {
			zap.L().Warn("importer: skipping record without email", zap.Int("index", i))
			continue
		}
		rows = append(rows, fields)
	}
	if len(rows) == 0 {
		return []model.Lead{}, nil
	}

	stored, err := ins.InsertRows(ctx, store.TablePQLs, rows)
	if err != nil {
		return nil, eris.Wrap(err, "importer: insert leads")
	}

	leads := make([]model.Lead, 0, len(stored))
	for _, row := range stored {
		leads = append(leads, model.LeadFromRow(row))
	}
	zap.L().Info("importer: leads imported", zap.Int("count", len(leads)), zap.Int("skipped", len(records)-len(rows)))
	return leads, nil
}

// recordsFromTable turns a header row plus data rows into records. Blank
// rows and unnamed columns are dropped.
func recordsFromTable(rows [][]string) []Record {
	if len(rows) == 0 {
		return []Record{}
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.Trim(strings.TrimSpace(h), `"`)
	}

	out := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			rec[h] = v
		}
		out = append(out, rec)
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func firstString(rec Record, keys []string) string {
	for _, k := range keys {
		switch v := rec[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case nil:
		default:
			b, err := json.Marshal(v)
			if err == nil {
				return strings.Trim(string(b), `"`)
			}
		}
	}
	return ""
}

// usageOf takes the first present usage column. A present but non-numeric
// value yields no score.
func usageOf(rec Record) (float64, bool) {
	for _, k := range usageKeys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			return f, err == nil
		default:
			return 0, false
		}
	}
	return 0, false
}

// rawDataOf keeps an explicit raw_data object, else the whole record.
func rawDataOf(rec Record) map[string]any {
	if raw, ok := rec["raw_data"].(map[string]any); ok {
		return raw
	}
	return map[string]any(rec)
}
