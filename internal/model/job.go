package model

// JobState is owned by the external job service; this engine consumes and
// reports it but never persists it.
type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobCancelled JobState = "CANCELLED"
)

// InputType distinguishes what kind of input a job carries.
type InputType string

const (
	InputClaim InputType = "claim"
	InputURL   InputType = "url"
)

// Job is the read-only view of a job record fetched from the external
// job service at pipeline start.
type Job struct {
	ID              string    `json:"id"`
	InputType       InputType `json:"input_type"`
	InputValue      string    `json:"input_value"`
	PipelineVariant string    `json:"pipeline_variant"`
}

// ProgressEvent is one entry of a job's monotonic event log. Sequence
// numbers strictly increase per job and observers replay events in order.
type ProgressEvent struct {
	Seq      uint64   `json:"seq"`
	State    JobState `json:"state"`
	Progress int      `json:"progress"` // 0..100
	Level    string   `json:"level"`
	Message  string   `json:"message"`
}

// PipelineVariant is the closed set of execution strategies, resolved
// once at job start instead of branching on strings per call.
type PipelineVariant int

const (
	VariantOrchestrated PipelineVariant = iota
	VariantMonolithicCanonical
	VariantMonolithicDynamic
)

// ParseVariant resolves a job's declared variant string. Unknown values
// fall back to the orchestrated pipeline.
func ParseVariant(s string) PipelineVariant {
	switch s {
	case "monolithic_canonical":
		return VariantMonolithicCanonical
	case "monolithic_dynamic":
		return VariantMonolithicDynamic
	default:
		return VariantOrchestrated
	}
}

func (v PipelineVariant) String() string {
	switch v {
	case VariantMonolithicCanonical:
		return "monolithic_canonical"
	case VariantMonolithicDynamic:
		return "monolithic_dynamic"
	default:
		return "orchestrated"
	}
}
