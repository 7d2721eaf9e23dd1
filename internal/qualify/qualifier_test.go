package qualify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/recency"
	"github.com/sells-group/pql-agent/internal/store"
)

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) InsertRow(ctx context.Context, table string, fields map[string]any) (store.Row, error) {
	args := m.Called(ctx, table, fields)
	row, _ := args.Get(0).(store.Row)
	return row, args.Error(1)
}

func (m *mockPersister) UpdateRow(ctx context.Context, table, id string, patch map[string]any) error {
	return m.Called(ctx, table, id, patch).Error(0)
}

func (m *mockPersister) LogEvent(ctx context.Context, pqlID *string, action string, details map[string]any) error {
	return m.Called(ctx, pqlID, action, details).Error(0)
}

func fixedClock(day string) func() time.Time {
	t, _ := time.Parse("2006-01-02", day)
	return func() time.Time { return t }
}

func floatp(f float64) *float64 { return &f }
func strp(s string) *string     { return &s }

func TestQualifier_RunQualified(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "pql-1", mock.MatchedBy(func(p map[string]any) bool {
		meta, ok := p["agent_metadata"].(map[string]any)
		return ok && p["status"] == "qualified" &&
			meta[model.MetaLastActiveRaw] == "2025-02-16" &&
			meta[model.MetaDaysSince] == 1
	})).Return(nil)
	st.On("LogEvent", mock.Anything, mock.MatchedBy(func(id *string) bool {
		return id != nil && *id == "pql-1"
	}), ActionEvaluated, mock.MatchedBy(func(d map[string]any) bool {
		return d["status"] == "qualified" && d[model.MetaThreshold] == 7
	})).Return(nil)

	q := New(recency.New(nil), st, 7, WithClock(fixedClock("2025-02-17")))
	out, err := q.Run(context.Background(), model.Lead{
		ID:                "pql-1",
		Email:             "jane@acme.io",
		ProductUsageScore: floatp(8),
		LastActiveDate:    strp("2025-02-16"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.LeadStatusQualified, out.Status)
	assert.Contains(t, out.Rationale, "usage 8")
	assert.Contains(t, out.Rationale, "1 day(s)")
	st.AssertExpectations(t)
}

func TestQualifier_RunRejected(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "pql-2", mock.Anything).Return(nil)
	st.On("LogEvent", mock.Anything, mock.Anything, ActionEvaluated, mock.Anything).Return(nil)

	q := New(recency.New(nil), st, 7, WithClock(fixedClock("2025-02-20")))
	out, err := q.Run(context.Background(), model.Lead{
		ID:                "pql-2",
		ProductUsageScore: floatp(2),
		RawData:           map[string]any{"Last Active": "2025-01-01"},
		Status:            model.LeadStatusPending,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusRejected, out.Status)
	assert.Equal(t, 4, out.Metadata[model.MetaLowUsageCutoff])
	assert.Equal(t, "2025-01-01", out.Metadata[model.MetaLastActiveRaw])
}

func TestQualifier_RequestedThresholdOverridesDefault(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "pql-3", mock.Anything).Return(nil)
	st.On("LogEvent", mock.Anything, mock.Anything, ActionEvaluated, mock.Anything).Return(nil)

	q := New(recency.New(nil), st, 7)
	out, err := q.Run(context.Background(), model.Lead{ID: "pql-3", ProductUsageScore: floatp(4)}, intp(3))
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusQualified, out.Status)
	assert.Equal(t, 3, out.Metadata[model.MetaThreshold])
	assert.Nil(t, out.Metadata[model.MetaLastActiveRaw])
}

func TestQualifier_PersistsUnchangedStatus(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "pql-4", mock.MatchedBy(func(p map[string]any) bool {
		return p["status"] == "qualified"
	})).Return(nil).Once()
	st.On("LogEvent", mock.Anything, mock.Anything, ActionEvaluated, mock.Anything).Return(nil).Once()

	q := New(recency.New(nil), st, 7, WithClock(fixedClock("2025-02-20")))
	out, err := q.Run(context.Background(), model.Lead{
		ID:                "pql-4",
		ProductUsageScore: floatp(5),
		LastActiveDate:    strp("2025-02-17"),
		Status:            model.LeadStatusQualified,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusQualified, out.Status)
	st.AssertExpectations(t)
}

func TestQualifier_UpdateErrorStopsBeforeLog(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "pql-5", mock.Anything).Return(errors.New("db down"))

	q := New(recency.New(nil), st, 7)
	_, err := q.Run(context.Background(), model.Lead{ID: "pql-5"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qualify: persist outcome")
	st.AssertNotCalled(t, "LogEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQualifier_LogError(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "pql-6", mock.Anything).Return(nil)
	st.On("LogEvent", mock.Anything, mock.Anything, ActionEvaluated, mock.Anything).Return(errors.New("insert failed"))

	q := New(recency.New(nil), st, 7)
	_, err := q.Run(context.Background(), model.Lead{ID: "pql-6"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qualify: log evaluation")
}

func TestQualifier_InsertsUnstoredLead(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "inline-1", mock.Anything).
		Return(eris.Wrapf(store.ErrNotFound, "sqlite: update pqls inline-1"))
	st.On("InsertRow", mock.Anything, "pqls", mock.MatchedBy(func(f map[string]any) bool {
		return f["id"] == "inline-1" &&
			f["email"] == "jane@acme.io" &&
			f["company_name"] == "Acme" &&
			f["product_usage_score"] == 8.0 &&
			f["status"] == "qualified" &&
			f["qualification_result"] != nil
	})).Return(store.Row{"id": "inline-1"}, nil)
	st.On("LogEvent", mock.Anything, mock.Anything, ActionEvaluated, mock.Anything).Return(nil)

	q := New(recency.New(nil), st, 7, WithClock(fixedClock("2025-02-17")))
	out, err := q.Run(context.Background(), model.Lead{
		ID:                "inline-1",
		Email:             "jane@acme.io",
		CompanyName:       strp("Acme"),
		ProductUsageScore: floatp(8),
		LastActiveDate:    strp("2025-02-16"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusQualified, out.Status)
	st.AssertExpectations(t)
}

func TestQualifier_InsertErrorStopsBeforeLog(t *testing.T) {
	st := &mockPersister{}
	st.On("UpdateRow", mock.Anything, "pqls", "inline-2", mock.Anything).Return(store.ErrNotFound)
	st.On("InsertRow", mock.Anything, "pqls", mock.Anything).Return(nil, errors.New("constraint failed"))

	q := New(recency.New(nil), st, 7)
	_, err := q.Run(context.Background(), model.Lead{ID: "inline-2", Email: "x@y.io"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint failed")
	st.AssertNotCalled(t, "LogEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
