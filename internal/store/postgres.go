package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pql-agent/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresTable = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const postgresIndexes = `
CREATE INDEX IF NOT EXISTS idx_pqls_status ON pqls ((data->>'status'));
CREATE INDEX IF NOT EXISTS idx_enrichments_pql_id ON enrichments ((data->>'pql_id'));
CREATE INDEX IF NOT EXISTS idx_email_drafts_pql_id ON email_drafts ((data->>'pql_id'));
CREATE INDEX IF NOT EXISTS idx_activity_log_pql_id ON activity_log ((data->>'pql_id'));
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	var b strings.Builder
	for _, t := range []string{TablePQLs, TableEnrichments, TableDrafts, TableActivityLog} {
		fmt.Fprintf(&b, postgresTable, t)
	}
	b.WriteString(postgresIndexes)
	_, err := s.pool.Exec(ctx, b.String())
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetRow(ctx context.Context, table string, filters map[string]any) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	conds, err := sortedFilters(filters)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, data, created_at, updated_at FROM " + table + " WHERE 1=1"
	args := make([]any, 0, len(conds))
	for i, f := range conds {
		if f.column == "id" {
			query += fmt.Sprintf(" AND id = $%d", i+1)
		} else {
			query += fmt.Sprintf(" AND data->>'%s' = $%d", f.column, i+1)
		}
		args = append(args, f.value)
	}
	query += " ORDER BY created_at ASC LIMIT 1"

	var (
		id                   string
		data                 []byte
		createdAt, updatedAt time.Time
	)
	err = s.pool.QueryRow(ctx, query, args...).Scan(&id, &data, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s row", table)
	}
	return decodeRow(id, data, createdAt, updatedAt)
}

func (s *PostgresStore) InsertRow(ctx context.Context, table string, fields map[string]any) (Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rec, err := newRecord(fields)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		"INSERT INTO "+table+" (id, data, created_at, updated_at) VALUES ($1, $2::jsonb, $3, $4)",
		rec.id, string(rec.data), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert %s row", table)
	}
	return decodeRow(rec.id, rec.data, now, now)
}

// InsertRows bulk-loads rows with COPY.
func (s *PostgresStore) InsertRows(ctx context.Context, table string, rows []map[string]any) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	copyRows := make([][]any, 0, len(rows))
	out := make([]Row, 0, len(rows))
	for _, fields := range rows {
		rec, err := newRecord(fields)
		if err != nil {
			return nil, err
		}
		copyRows = append(copyRows, []any{rec.id, string(rec.data), now, now})
		row, err := decodeRow(rec.id, rec.data, now, now)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	if _, err := db.CopyFrom(ctx, s.pool, table, []string{"id", "data", "created_at", "updated_at"}, copyRows); err != nil {
		return nil, eris.Wrapf(err, "postgres: bulk insert %s", table)
	}
	return out, nil
}

func (s *PostgresStore) UpdateRow(ctx context.Context, table, id string, patch map[string]any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	data, err := marshalPatch(patch)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE "+table+" SET data = data || $1::jsonb, updated_at = $2 WHERE id = $3",
		string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s %s", table, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update %s %s", table, id)
	}
	return nil
}

func (s *PostgresStore) LogEvent(ctx context.Context, pqlID *string, action string, details map[string]any) error {
	_, err := s.InsertRow(ctx, TableActivityLog, ActivityPayload(pqlID, action, details))
	return err
}
