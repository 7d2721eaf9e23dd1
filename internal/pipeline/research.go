package pipeline

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pql-agent/internal/evidence"
	"github.com/sells-group/pql-agent/internal/llm"
	"github.com/sells-group/pql-agent/internal/model"
	"github.com/sells-group/pql-agent/internal/store"
)

// Activity log action and enrichment sources for the research stage.
const (
	ActionResearched = "researched"

	SourceInferred           = "llm_inferred"
	SourceInferredWithWebNav = "llm_inferred_with_web_navigate"
)

const researchSystemPrompt = `
You are a GTM research analyst researching product-qualified leads.

Given basic account + contact context, infer structured information about the company
and key contacts involved in the deal.

You may receive web_navigation context from lightweight web navigation tools.
Use it as supporting evidence when available. If web_navigation is missing or sparse,
proceed conservatively from the provided lead context.

Respond ONLY in JSON with the following shape:
{
  "company_info": {
    "industry": "<string>",
    "size_bucket": "<e.g. SMB, Mid-market, Enterprise>",
    "hq_country": "<string>",
    "key_initiatives": ["strings"],
    "primary_product": "<string>",
    "current_tools": ["strings"]
  },
  "key_contacts": [
    {
      "name": "<string or null>",
      "title": "<string or null>",
      "role_in_deal": "<economic_buyer|champion|user|other>",
      "email": "<string or null>",
      "notes": "<short text>"
    }
  ]
}
`

// Research gathers web evidence for the lead, asks the LLM for company and
// contact context, and upserts the result into enrichments keyed by pql_id.
// qualification is passed through to the prompt and may be nil.
func (p *Pipeline) Research(ctx context.Context, lead model.Lead, qualification map[string]any) (*model.Enrichment, error) {
	hint := evidence.InferWebsiteHint(lead.Email, lead.Company())
	bundle := p.gatherer.Gather(ctx, lead.Subject(), hint.URL)

	if qualification == nil {
		qualification = map[string]any{}
	}
	rawData := lead.RawData
	if rawData == nil {
		rawData = map[string]any{}
	}

	leadJSON, err := json.Marshal(map[string]any{
		"id":                  lead.ID,
		"email":               lead.Email,
		"company_name":        lead.CompanyName,
		"website_hint_url":    hint.URL,
		"website_hint_source": hint.Source,
		"product_usage_score": lead.ProductUsageScore,
		"last_active_date":    lead.LastActiveDate,
		"qualification":       qualification,
		"raw_data":            rawData,
		"web_navigation":      bundle,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: marshal research context for %s", lead.ID)
	}

	user := "Research this product-qualified lead with company and contact insights.\n\n" +
		"Prefer web_navigation evidence when it is present. " +
		"If evidence is weak, return conservative defaults.\n\n" +
		"Lead JSON:\n" + string(leadJSON) + "\n\n" +
		"Return only the JSON object described in the instructions."

	content, err := p.completer.Complete(ctx, researchSystemPrompt, user)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: research completion for %s", lead.ID)
	}

	parsed := llm.ExtractJSONOr(content, map[string]any{})
	companyInfo, _ := parsed["company_info"].(map[string]any)
	if companyInfo == nil {
		companyInfo = map[string]any{}
	}
	keyContacts := contactsOf(parsed["key_contacts"])

	source := SourceInferred
	if len(bundle.Sources) > 0 {
		source = SourceInferredWithWebNav
	}

	enrichment := &model.Enrichment{
		PQLID:            lead.ID,
		CompanyInfo:      companyInfo,
		KeyContacts:      keyContacts,
		EnrichmentSource: source,
	}
	if err := p.upsertEnrichment(ctx, enrichment); err != nil {
		return nil, err
	}

	id := lead.ID
	if err := p.store.LogEvent(ctx, &id, ActionResearched, map[string]any{
		"company_info_keys": sortedKeys(companyInfo),
		"web_source_count":  len(bundle.Sources),
	}); err != nil {
		return nil, eris.Wrapf(err, "pipeline: log research for %s", lead.ID)
	}

	return enrichment, nil
}

func (p *Pipeline) upsertEnrichment(ctx context.Context, e *model.Enrichment) error {
	payload := map[string]any{
		"pql_id":            e.PQLID,
		"company_info":      e.CompanyInfo,
		"key_contacts":      e.KeyContacts,
		"enrichment_source": e.EnrichmentSource,
	}

	existing, err := p.store.GetRow(ctx, store.TableEnrichments, map[string]any{"pql_id": e.PQLID})
	if err != nil {
		return eris.Wrapf(err, "pipeline: look up enrichment for %s", e.PQLID)
	}
	if existing != nil {
		id, _ := existing["id"].(string)
		if err := p.store.UpdateRow(ctx, store.TableEnrichments, id, payload); err != nil {
			return eris.Wrapf(err, "pipeline: update enrichment for %s", e.PQLID)
		}
		return nil
	}

	if _, err := p.store.InsertRow(ctx, store.TableEnrichments, payload); err != nil {
		return eris.Wrapf(err, "pipeline: insert enrichment for %s", e.PQLID)
	}
	return nil
}

// contactsOf keeps the object entries of a key_contacts list.
func contactsOf(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
