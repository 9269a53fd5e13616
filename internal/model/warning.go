package model

// Warning is a structured degradation record. Local degradation is always
// preferred over job failure, and every degradation is surfaced as one of
// these rather than silently swallowed, so aggregate telemetry can detect
// systemic regressions.
type Warning struct {
	Type     WarningType    `json:"type"`
	Severity WarningSeverity `json:"severity"`
	FrameID  string         `json:"frame_id,omitempty"`
	Stage    string         `json:"stage,omitempty"`
	Message  string         `json:"message"`
}

// WarningType classifies a degradation.
type WarningType string

const (
	WarnBudgetExceeded     WarningType = "budget_exceeded"
	WarnFetchDegradation   WarningType = "source_fetch_degradation"
	WarnStructuredOutput   WarningType = "structured_output"
	WarnNoConsensus        WarningType = "no_consensus"
	WarnFrameOversplit     WarningType = "frame_oversplit"
	WarnLowConfidence      WarningType = "low_confidence"
	WarnBudgetOverrun      WarningType = "budget_overrun"
	WarnSkippedSource      WarningType = "skipped_source"
)

// WarningSeverity indicates how much a degradation matters.
type WarningSeverity string

const (
	WarnInfo     WarningSeverity = "info"
	WarnWarning  WarningSeverity = "warning"
	WarnCritical WarningSeverity = "critical"
)
