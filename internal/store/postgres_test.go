package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS pqls`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, 2, 17, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, data, created_at, updated_at FROM enrichments WHERE 1=1 AND data->>'pql_id' = \$1 ORDER BY created_at ASC LIMIT 1`).
		WithArgs("pql-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data", "created_at", "updated_at"}).
			AddRow("enr-1", []byte(`{"pql_id":"pql-1","enrichment_source":"llm_inferred"}`), now, now))

	row, err := s.GetRow(context.Background(), TableEnrichments, map[string]any{"pql_id": "pql-1"})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "enr-1", row["id"])
	assert.Equal(t, "llm_inferred", row["enrichment_source"])
	assert.Equal(t, "2025-02-17T10:00:00Z", row["created_at"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRow_ByID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pqls WHERE 1=1 AND id = \$1`).
		WithArgs("pql-1").
		WillReturnError(pgx.ErrNoRows)

	row, err := s.GetRow(context.Background(), TablePQLs, map[string]any{"id": "pql-1"})
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRow_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pqls`).WithArgs("pql-1").WillReturnError(errors.New("conn reset"))

	_, err := s.GetRow(context.Background(), TablePQLs, map[string]any{"id": "pql-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: get pqls row")
}

func TestPostgresStore_InsertRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO email_drafts \(id, data, created_at, updated_at\)`).
		WithArgs("draft-1", `{"pql_id":"pql-1","subject":"Hi"}`, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	row, err := s.InsertRow(context.Background(), TableDrafts, map[string]any{
		"id":      "draft-1",
		"pql_id":  "pql-1",
		"subject": "Hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "draft-1", row["id"])
	assert.Equal(t, "Hi", row["subject"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"pqls"}, []string{"id", "data", "created_at", "updated_at"}).
		WillReturnResult(2)

	rows, err := s.InsertRows(context.Background(), TablePQLs, []map[string]any{
		{"email": "a@acme.io"},
		{"email": "b@acme.io"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b@acme.io", rows[1]["email"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pqls SET data = data \|\| \$1::jsonb, updated_at = \$2 WHERE id = \$3`).
		WithArgs(`{"status":"qualified"}`, pgxmock.AnyArg(), "pql-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateRow(context.Background(), TablePQLs, "pql-1", map[string]any{"status": "qualified"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRow_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pqls`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRow(context.Background(), TablePQLs, "missing", map[string]any{"status": "qualified"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresStore_LogEvent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO activity_log`).
		WithArgs(pgxmock.AnyArg(), `{"action":"draft_generated","details":{"subject":"Hi"},"pql_id":"pql-1"}`, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id := "pql-1"
	require.NoError(t, s.LogEvent(context.Background(), &id, "draft_generated", map[string]any{"subject": "Hi"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
