package model

// Metadata keys written to pqls.agent_metadata.
const (
	MetaUsageScore     = "usage_score"
	MetaThreshold      = "qualification_threshold"
	MetaLowUsageCutoff = "low_usage_cutoff"
	MetaLastActiveRaw  = "last_active_raw"
	MetaDaysSince      = "days_since_last_active"
	MetaReasoning      = "ai_reasoning"
)

// QualificationOutcome is the derived result of one qualification run. It is
// rebuilt from scratch on every run and never merged with a prior outcome.
type QualificationOutcome struct {
	Status    LeadStatus     `json:"status"`
	Rationale string         `json:"qualification_result"`
	Metadata  map[string]any `json:"agent_metadata"`
}

// QualificationResult is what the batch endpoint reports for a lead.
type QualificationResult struct {
	ID                  string         `json:"id"`
	QualificationResult string         `json:"qualification_result"`
	AgentMetadata       map[string]any `json:"agent_metadata"`
	Status              LeadStatus     `json:"status"`
}

// Enrichment is the LLM-inferred company and contact context for a lead.
type Enrichment struct {
	PQLID            string           `json:"pql_id"`
	CompanyInfo      map[string]any   `json:"company_info"`
	KeyContacts      []map[string]any `json:"key_contacts"`
	EnrichmentSource string           `json:"enrichment_source"`
}

// EmailDraft is a generated outbound follow-up.
type EmailDraft struct {
	ID            string `json:"id,omitempty"`
	PQLID         string `json:"pql_id"`
	ToEmail       string `json:"to_email"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	ProposedOffer string `json:"proposed_offer"`
	AIReasoning   string `json:"ai_reasoning"`
}

// LeadFailure records a lead whose pipeline stopped at a stage.
type LeadFailure struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}
