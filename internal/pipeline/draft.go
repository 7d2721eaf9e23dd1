package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pql-agent/internal/evidence"
	"github.com/sells-group/pql-agent/internal/llm"
	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/store"
)

// ActionDraftGenerated is logged for every stored email draft.
const ActionDraftGenerated = "draft_generated"

// DefaultSubject is used when the model returns no subject line.
const DefaultSubject = "Quick follow-up"

const draftSystemPrompt = `
You write short, outbound follow-ups after a successful product call, aimed at booking qualified meetings.

Use:
- Product usage and account context
- Enrichment data (company info and key contacts)

Your goal is to:
- Propose a highly relevant offer (e.g., pilot, ROI analysis, deeper technical workshop)
- Write a concise, confident, human email that clearly asks for the next meeting.

You may receive a website_hint_url. Use it as a lightweight relevance cue only.
Do NOT claim you visited or verified website content.

If override_context is present, treat it as the reviewer's instructions for this draft.

Respond ONLY in JSON with the following shape:
{
  "subject": "<short engaging subject>",
  "body": "<3-5 sentence email body>",
  "proposed_offer": "<short description of the concrete offer>",
  "ai_reasoning": "<why this offer and message are a good fit>"
}
`

// DraftInput is the context for one email draft.
type DraftInput struct {
	Lead          model.Lead
	Enrichment    *model.Enrichment
	Qualification map[string]any
	// Override carries reviewer guidance when a draft is regenerated.
	Override map[string]any
}

// Draft asks the LLM for a follow-up email and always stores it as a new
// email_drafts row.
func (p *Pipeline) Draft(ctx context.Context, in DraftInput) (*model.EmailDraft, error) {
	lead := in.Lead
	hint := evidence.InferWebsiteHint(lead.Email, lead.Company())

	companyInfo := map[string]any{}
	keyContacts := []map[string]any{}
	if in.Enrichment != nil {
		if in.Enrichment.CompanyInfo != nil {
			companyInfo = in.Enrichment.CompanyInfo
		}
		if in.Enrichment.KeyContacts != nil {
			keyContacts = in.Enrichment.KeyContacts
		}
	}
	qualification := in.Qualification
	if qualification == nil {
		qualification = map[string]any{}
	}
	rawData := lead.RawData
	if rawData == nil {
		rawData = map[string]any{}
	}

	payload := map[string]any{
		"pql": map[string]any{
			"id":                  lead.ID,
			"email":               lead.Email,
			"company_name":        lead.CompanyName,
			"product_usage_score": lead.ProductUsageScore,
			"last_active_date":    lead.LastActiveDate,
			"raw_data":            rawData,
		},
		"website_hint_url":    hint.URL,
		"website_hint_source": hint.Source,
		"qualification":       qualification,
		"enrichment": map[string]any{
			"company_info": companyInfo,
			"key_contacts": keyContacts,
		},
	}
	if len(in.Override) > 0 {
		payload["override_context"] = in.Override
	}

	contextJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: marshal draft context for %s", lead.ID)
	}

	user := "Write a follow-up email that will help book a qualified meeting.\n\n" +
		"Use website_hint_url only as a likely domain/homepage cue. " +
		"Do not fabricate claims about site content.\n\n" +
		"Use the JSON below as context and return ONLY the JSON object described.\n\n" +
		string(contextJSON)

	content, err := p.completer.Complete(ctx, draftSystemPrompt, user)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: draft completion for %s", lead.ID)
	}

	draft := parseDraft(content)
	draft.PQLID = lead.ID
	draft.ToEmail = lead.Email

	row, err := p.store.InsertRow(ctx, store.TableDrafts, map[string]any{
		"pql_id":         draft.PQLID,
		"to_email":       draft.ToEmail,
		"subject":        draft.Subject,
		"body":           draft.Body,
		"proposed_offer": draft.ProposedOffer,
		"ai_reasoning":   draft.AIReasoning,
		"is_edited":      false,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: insert draft for %s", lead.ID)
	}
	if id, ok := row["id"].(string); ok {
		draft.ID = id
	}

	id := lead.ID
	if err := p.store.LogEvent(ctx, &id, ActionDraftGenerated, map[string]any{
		"subject":        draft.Subject,
		"proposed_offer": draft.ProposedOffer,
	}); err != nil {
		return nil, eris.Wrapf(err, "pipeline: log draft for %s", lead.ID)
	}

	return draft, nil
}

// parseDraft reads the model's JSON reply. A reply with no JSON object
// becomes the body of a draft with the default subject.
func parseDraft(content string) *model.EmailDraft {
	content = strings.TrimSpace(content)
	parsed, ok := llm.ExtractJSON(content)
	if !ok {
		return &model.EmailDraft{Subject: DefaultSubject, Body: content}
	}

	subject := textField(parsed, "subject")
	if subject == "" {
		subject = DefaultSubject
	}
	return &model.EmailDraft{
		Subject:       subject,
		Body:          textField(parsed, "body"),
		ProposedOffer: textField(parsed, "proposed_offer"),
		AIReasoning:   textField(parsed, "ai_reasoning"),
	}
}

func textField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
