package model

import "time"

// Report is the complete verification artifact for one job: the claims,
// frames, evidence, and warnings behind the article verdict.
type Report struct {
	JobID     string    `json:"job_id"`
	Subject   string    `json:"subject"`
	InputType InputType `json:"input_type"`
	Input     string    `json:"input"`
	StartedAt time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Variant   string    `json:"pipeline_variant"`

	Claims   []AtomicClaim   `json:"claims"`
	Frames   []Frame         `json:"frames"`
	Scopes   []EvidenceScope `json:"scopes,omitempty"`
	Evidence []EvidenceItem  `json:"evidence"`
	Skipped  []SkippedSource `json:"skipped_sources,omitempty"`

	Reliability map[string]SourceReliabilityRecord `json:"source_reliability,omitempty"`

	Verdict  ArticleVerdict `json:"verdict"`
	Budget   BudgetUsage    `json:"budget"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

// BudgetUsage is the spent portion of the research budget, recorded for
// transparency in the report.
type BudgetUsage struct {
	IterationsPerFrame map[string]int `json:"iterations_per_frame"`
	TotalIterations    int            `json:"total_iterations"`
	TotalTokens        int            `json:"total_tokens"`
}
