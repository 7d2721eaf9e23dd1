package qualify

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/recency"
	"github.com/sells-group/pql-agent/internal/store"
)

// ActionEvaluated is the activity log action for a qualification run.
const ActionEvaluated = "qualification_evaluated"

// Persister is the datastore surface the qualifier writes through.
type Persister interface {
	InsertRow(ctx context.Context, table string, fields map[string]any) (store.Row, error)
	UpdateRow(ctx context.Context, table, id string, patch map[string]any) error
	LogEvent(ctx context.Context, pqlID *string, action string, details map[string]any) error
}

// Qualifier resolves recency, decides, and persists the outcome.
type Qualifier struct {
	resolver         *recency.Resolver
	store            Persister
	defaultThreshold int
	now              func() time.Time
}

// Option configures a Qualifier.
type Option func(*Qualifier)

// WithClock overrides the reference clock used for recency.
func WithClock(now func() time.Time) Option {
	return func(q *Qualifier) {
		q.now = now
	}
}

// New creates a Qualifier.
func New(resolver *recency.Resolver, store Persister, defaultThreshold int, opts ...Option) *Qualifier {
	if defaultThreshold == 0 {
		defaultThreshold = DefaultThreshold
	}
	q := &Qualifier{
		resolver:         resolver,
		store:            store,
		defaultThreshold: defaultThreshold,
		now:              time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Run evaluates the lead and writes the outcome back to pqls, even when the
// status is unchanged.
func (q *Qualifier) Run(ctx context.Context, lead model.Lead, requested *int) (model.QualificationOutcome, error) {
	usage := lead.Usage()
	raw := lead.LastActiveRaw()
	days := q.resolver.DaysSince(ctx, raw, q.now())

	outcome := Decide(usage, days, requested, q.defaultThreshold, lead.Status)

	var rawValue any
	if raw != nil {
		rawValue = *raw
	}
	outcome.Metadata[model.MetaLastActiveRaw] = rawValue

	if err := q.persist(ctx, lead, outcome); err != nil {
		return outcome, eris.Wrapf(err, "qualify: persist outcome for %s", lead.ID)
	}

	id := lead.ID
	if err := q.store.LogEvent(ctx, &id, ActionEvaluated, map[string]any{
		model.MetaUsageScore:    usage,
		model.MetaThreshold:     outcome.Metadata[model.MetaThreshold],
		model.MetaLastActiveRaw: rawValue,
		model.MetaDaysSince:     outcome.Metadata[model.MetaDaysSince],
		"status":                string(outcome.Status),
	}); err != nil {
		return outcome, eris.Wrapf(err, "qualify: log evaluation for %s", lead.ID)
	}

	zap.L().Info("lead qualified",
		zap.String("pql_id", lead.ID),
		zap.String("status", string(outcome.Status)),
		zap.Float64("usage_score", usage),
		zap.Any("days_since_last_active", outcome.Metadata[model.MetaDaysSince]),
	)

	return outcome, nil
}

// persist patches the stored lead. Leads submitted inline that were never
// stored are inserted with the outcome instead.
func (q *Qualifier) persist(ctx context.Context, lead model.Lead, outcome model.QualificationOutcome) error {
	patch := map[string]any{
		"qualification_result": outcome.Rationale,
		"agent_metadata":       outcome.Metadata,
		"status":               string(outcome.Status),
	}

	err := q.store.UpdateRow(ctx, store.TablePQLs, lead.ID, patch)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	fields := leadFields(lead)
	for k, v := range patch {
		fields[k] = v
	}
	if _, err := q.store.InsertRow(ctx, store.TablePQLs, fields); err != nil {
		return err
	}
	zap.L().Debug("qualify: stored inline lead", zap.String("pql_id", lead.ID))
	return nil
}

// leadFields renders a lead as a pqls row.
func leadFields(lead model.Lead) map[string]any {
	fields := map[string]any{
		"id":    lead.ID,
		"email": lead.Email,
	}
	if lead.CompanyName != nil {
		fields["company_name"] = *lead.CompanyName
	}
	if lead.ProductUsageScore != nil {
		fields["product_usage_score"] = *lead.ProductUsageScore
	}
	if lead.LastActiveDate != nil {
		fields["last_active_date"] = *lead.LastActiveDate
	}
	if lead.RawData != nil {
		fields["raw_data"] = lead.RawData
	}
	return fields
}
