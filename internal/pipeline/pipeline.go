// Package pipeline runs a lead through qualification, research, and email
// drafting, and isolates per-lead failures within a batch.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/llm"
	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/store"
)

// Stage names reported on failures.
const (
	StageLoad     = "load"
	StageQualify  = "qualify"
	StageResearch = "research"
	StageDraft    = "draft"
)

// ErrLeadNotFound is returned when a stored lead id does not exist.
var ErrLeadNotFound = eris.New("pipeline: lead not found")

// Datastore is the subset of store.Store the pipeline reads and writes.
type Datastore interface {
	GetRow(ctx context.Context, table string, filters map[string]any) (store.Row, error)
	InsertRow(ctx context.Context, table string, fields map[string]any) (store.Row, error)
	UpdateRow(ctx context.Context, table, id string, patch map[string]any) error
	LogEvent(ctx context.Context, pqlID *string, action string, details map[string]any) error
}

// Qualifier decides and persists a lead's qualification status.
type Qualifier interface {
	Run(ctx context.Context, lead model.Lead, requested *int) (model.QualificationOutcome, error)
}

// Gatherer collects web evidence for a research subject.
type Gatherer interface {
	Gather(ctx context.Context, subject string, hintURL *string) model.EvidenceBundle
}

// StageError ties a lead failure to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

// Error reports the underlying message only. The stage travels in Stage.
func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// LeadResult is everything produced for one lead.
type LeadResult struct {
	Outcome    model.QualificationOutcome `json:"outcome"`
	Enrichment *model.Enrichment          `json:"enrichment,omitempty"`
	Draft      *model.EmailDraft          `json:"draft,omitempty"`
}

// BatchResult holds the qualified leads of a batch plus the leads that failed.
type BatchResult struct {
	Qualified []model.QualificationResult `json:"qualified"`
	Failed    []model.LeadFailure         `json:"failed"`
}

// Pipeline orchestrates the per-lead stages.
type Pipeline struct {
	qualifier    Qualifier
	gatherer     Gatherer
	completer    llm.Completer
	store        Datastore
	skipResearch bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSkipResearch stops each lead after qualification.
func WithSkipResearch() Option {
	return func(p *Pipeline) {
		p.skipResearch = true
	}
}

// New creates a Pipeline.
func New(q Qualifier, g Gatherer, c llm.Completer, st Datastore, opts ...Option) *Pipeline {
	p := &Pipeline{
		qualifier: q,
		gatherer:  g,
		completer: c,
		store:     st,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessLead qualifies the lead, then researches it and drafts an email
// regardless of the resulting status. A failed stage stops the lead and is
// returned as a *StageError.
func (p *Pipeline) ProcessLead(ctx context.Context, lead model.Lead, threshold *int) (*LeadResult, error) {
	log := zap.L().With(zap.String("pql_id", lead.ID))
	result := &LeadResult{}

	err := p.trackStage(log, StageQualify, func() error {
		outcome, err := p.qualifier.Run(ctx, lead, threshold)
		result.Outcome = outcome
		return err
	})
	if err != nil {
		return result, err
	}
	if p.skipResearch {
		return result, nil
	}

	err = p.trackStage(log, StageResearch, func() error {
		enrichment, err := p.Research(ctx, lead, result.Outcome.Metadata)
		result.Enrichment = enrichment
		return err
	})
	if err != nil {
		return result, err
	}

	err = p.trackStage(log, StageDraft, func() error {
		draft, err := p.Draft(ctx, DraftInput{
			Lead:          lead,
			Enrichment:    result.Enrichment,
			Qualification: result.Outcome.Metadata,
		})
		result.Draft = draft
		return err
	})
	return result, err
}

// RunBatch processes leads one after another. A lead that fails is recorded
// and the batch moves on; only context cancellation stops it early.
func (p *Pipeline) RunBatch(ctx context.Context, leads []model.Lead, threshold *int) (*BatchResult, error) {
	batch := &BatchResult{
		Qualified: []model.QualificationResult{},
		Failed:    []model.LeadFailure{},
	}

	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			return batch, eris.Wrap(err, "pipeline: batch cancelled")
		}

		res, err := p.ProcessLead(ctx, lead, threshold)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return batch, eris.Wrap(ctxErr, "pipeline: batch cancelled")
			}
			stage := StageQualify
			var se *StageError
			if errors.As(err, &se) {
				stage = se.Stage
			}
			batch.Failed = append(batch.Failed, model.LeadFailure{ID: lead.ID, Stage: stage, Error: err.Error()})
			continue
		}

		if res.Outcome.Status == model.LeadStatusQualified {
			batch.Qualified = append(batch.Qualified, model.QualificationResult{
				ID:                  lead.ID,
				QualificationResult: res.Outcome.Rationale,
				AgentMetadata:       res.Outcome.Metadata,
				Status:              res.Outcome.Status,
			})
		}
	}

	zap.L().Info("pipeline: batch complete",
		zap.Int("leads", len(leads)),
		zap.Int("qualified", len(batch.Qualified)),
		zap.Int("failed", len(batch.Failed)),
	)
	return batch, nil
}

// ProcessStored loads a lead by id and runs the full pipeline on it.
func (p *Pipeline) ProcessStored(ctx context.Context, pqlID string, threshold *int) (*LeadResult, error) {
	row, err := p.loadLeadRow(ctx, pqlID)
	if err != nil {
		return nil, &StageError{Stage: StageLoad, Err: err}
	}
	return p.ProcessLead(ctx, model.LeadFromRow(row), threshold)
}

// ResearchStored loads a lead by id and runs only the research stage.
func (p *Pipeline) ResearchStored(ctx context.Context, pqlID string) (*model.Enrichment, error) {
	row, err := p.loadLeadRow(ctx, pqlID)
	if err != nil {
		return nil, err
	}
	meta, _ := row["agent_metadata"].(map[string]any)
	return p.Research(ctx, model.LeadFromRow(row), meta)
}

// RegenerateDraft writes a new draft for a stored lead using its current
// enrichment and qualification metadata plus reviewer overrides.
func (p *Pipeline) RegenerateDraft(ctx context.Context, pqlID string, override map[string]any) (*model.EmailDraft, error) {
	row, err := p.loadLeadRow(ctx, pqlID)
	if err != nil {
		return nil, err
	}

	enrichRow, err := p.store.GetRow(ctx, store.TableEnrichments, map[string]any{"pql_id": pqlID})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load enrichment for %s", pqlID)
	}

	meta, _ := row["agent_metadata"].(map[string]any)
	return p.Draft(ctx, DraftInput{
		Lead:          model.LeadFromRow(row),
		Enrichment:    enrichmentFromRow(pqlID, enrichRow),
		Qualification: meta,
		Override:      override,
	})
}

func (p *Pipeline) loadLeadRow(ctx context.Context, pqlID string) (store.Row, error) {
	row, err := p.store.GetRow(ctx, store.TablePQLs, map[string]any{"id": pqlID})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load lead %s", pqlID)
	}
	if row == nil {
		return nil, eris.Wrapf(ErrLeadNotFound, "pql %s", pqlID)
	}
	return row, nil
}

// trackStage runs fn, logs its duration, and tags any error with the stage.
func (p *Pipeline) trackStage(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return &StageError{Stage: name, Err: err}
	}
	log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}

func enrichmentFromRow(pqlID string, row store.Row) *model.Enrichment {
	if row == nil {
		return nil
	}
	companyInfo, _ := row["company_info"].(map[string]any)
	source, _ := row["enrichment_source"].(string)
	return &model.Enrichment{
		PQLID:            pqlID,
		CompanyInfo:      companyInfo,
		KeyContacts:      contactsOf(row["key_contacts"]),
		EnrichmentSource: source,
	}
}
