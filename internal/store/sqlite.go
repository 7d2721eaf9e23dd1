package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single writer avoids SQLITE_BUSY between the read and write of an update.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteTable = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

const sqliteIndexes = `
CREATE INDEX IF NOT EXISTS idx_pqls_status ON pqls(json_extract(data, '$.status'));
CREATE INDEX IF NOT EXISTS idx_enrichments_pql_id ON enrichments(json_extract(data, '$.pql_id'));
CREATE INDEX IF NOT EXISTS idx_email_drafts_pql_id ON email_drafts(json_extract(data, '$.pql_id'));
CREATE INDEX IF NOT EXISTS idx_activity_log_pql_id ON activity_log(json_extract(data, '$.pql_id'));
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	var b strings.Builder
	for _, t := range []string{TablePQLs, TableEnrichments, TableDrafts, TableActivityLog} {
		fmt.Fprintf(&b, sqliteTable, t)
	}
	b.WriteString(sqliteIndexes)
	_, err := s.db.ExecContext(ctx, b.String())
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetRow(ctx context.Context, table string, filters map[string]any) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	conds, err := sortedFilters(filters)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, data, created_at, updated_at FROM " + table + " WHERE 1=1"
	args := make([]any, 0, len(conds))
	for _, f := range conds {
		if f.column == "id" {
			query += " AND id = ?"
		} else {
			query += " AND CAST(json_extract(data, '$." + f.column + "') AS TEXT) = ?"
		}
		args = append(args, f.value)
	}
	query += " ORDER BY created_at ASC LIMIT 1"

	var (
		id                   string
		data                 string
		createdAt, updatedAt time.Time
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&id, &data, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s row", table)
	}
	return decodeRow(id, []byte(data), createdAt, updatedAt)
}

func (s *SQLiteStore) InsertRow(ctx context.Context, table string, fields map[string]any) (Row, error) {
	rows, err := s.InsertRows(ctx, table, []map[string]any{fields})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (s *SQLiteStore) InsertRows(ctx context.Context, table string, rows []map[string]any) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	out := make([]Row, 0, len(rows))
	for _, fields := range rows {
		rec, err := newRecord(fields)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)",
			rec.id, string(rec.data), now, now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert %s row", table)
		}
		row, err := decodeRow(rec.id, rec.data, now, now)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit insert")
	}
	return out, nil
}

func (s *SQLiteStore) UpdateRow(ctx context.Context, table, id string, patch map[string]any) error {
	if err := checkTable(table); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update")
	}
	defer tx.Rollback() //nolint:errcheck

	var data string
	err = tx.QueryRowContext(ctx, "SELECT data FROM "+table+" WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: update %s %s", table, id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read %s %s", table, id)
	}

	merged, err := mergePatch([]byte(data), patch)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE "+table+" SET data = ?, updated_at = ? WHERE id = ?",
		string(merged), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", table, id)
	}
	if err := checkRowsAffected(res, table, id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update")
}

func (s *SQLiteStore) LogEvent(ctx context.Context, pqlID *string, action string, details map[string]any) error {
	_, err := s.InsertRow(ctx, TableActivityLog, ActivityPayload(pqlID, action, details))
	return err
}

func checkRowsAffected(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", table, id)
	}
	return nil
}
