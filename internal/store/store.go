// Package store persists leads, enrichments, drafts, and the activity log.
// Every driver stores a row as an id plus a JSON document so records keep
// arbitrary pass-through fields.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Tables known to the datastore.
const (
	TablePQLs        = "pqls"
	TableEnrichments = "enrichments"
	TableDrafts      = "email_drafts"
	TableActivityLog = "activity_log"
)

var tables = map[string]bool{
	TablePQLs:        true,
	TableEnrichments: true,
	TableDrafts:      true,
	TableActivityLog: true,
}

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = eris.New("store: row not found")

var columnRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row is a stored record with its id and timestamps merged in.
type Row map[string]any

// Store defines the datastore operations the agents depend on.
type Store interface {
	// GetRow returns the first row matching all filters by equality, or nil
	// when none match.
	GetRow(ctx context.Context, table string, filters map[string]any) (Row, error)
	InsertRow(ctx context.Context, table string, fields map[string]any) (Row, error)
	InsertRows(ctx context.Context, table string, rows []map[string]any) ([]Row, error)
	// UpdateRow merges patch into the row's top-level fields.
	UpdateRow(ctx context.Context, table, id string, patch map[string]any) error
	LogEvent(ctx context.Context, pqlID *string, action string, details map[string]any) error

	Migrate(ctx context.Context) error
	Close() error
}

// ActivityPayload builds an activity_log row. pql_id and details are omitted
// when nil.
func ActivityPayload(pqlID *string, action string, details map[string]any) map[string]any {
	payload := map[string]any{"action": action}
	if pqlID != nil {
		payload["pql_id"] = *pqlID
	}
	if details != nil {
		payload["details"] = details
	}
	return payload
}

func checkTable(table string) error {
	if !tables[table] {
		return eris.Errorf("store: unknown table %q", table)
	}
	return nil
}

// filter is one equality condition with its value rendered as text.
type filter struct {
	column string
	value  string
}

// sortedFilters validates filter keys and orders them for stable SQL.
func sortedFilters(filters map[string]any) ([]filter, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !columnRe.MatchString(k) {
			return nil, eris.Errorf("store: invalid filter column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]filter, 0, len(keys))
	for _, k := range keys {
		out = append(out, filter{column: k, value: fmt.Sprint(filters[k])})
	}
	return out, nil
}

// record is a row split into its id and JSON document.
type record struct {
	id   string
	data []byte
}

func newRecord(fields map[string]any) (record, error) {
	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.New().String()
	}

	doc := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "id", "created_at", "updated_at":
			continue
		}
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return record{}, eris.Wrap(err, "store: marshal row")
	}
	return record{id: id, data: data}, nil
}

func decodeRow(id string, data []byte, createdAt, updatedAt time.Time) (Row, error) {
	row := Row{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal row %s", id)
		}
	}
	row["id"] = id
	row["created_at"] = createdAt.UTC().Format(time.RFC3339)
	row["updated_at"] = updatedAt.UTC().Format(time.RFC3339)
	return row, nil
}

// mergePatch applies a top-level merge. Nested objects are replaced whole.
func mergePatch(data []byte, patch map[string]any) ([]byte, error) {
	doc := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal existing row")
		}
	}
	for k, v := range patch {
		switch k {
		case "id", "created_at", "updated_at":
			continue
		}
		doc[k] = v
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal patched row")
	}
	return out, nil
}

// marshalPatch encodes a patch without the reserved columns.
func marshalPatch(patch map[string]any) ([]byte, error) {
	return mergePatch(nil, patch)
}
