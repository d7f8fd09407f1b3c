package textclass

// LabelDef is a candidate label with the definition the labeling
// service uses to decide whether a row belongs to it.
type LabelDef struct {
	Name       string `yaml:"name" json:"name"`
	Definition string `yaml:"definition" json:"definition"`
}

// LabeledRow pairs an input row with its assigned label. The i-th
// element of a batch result always corresponds to the i-th input row.
type LabeledRow struct {
	Input string `json:"input"`
	Label string `json:"label"`
}

// Phase identifies which stage of a batch is running. The processing
// phase covers the labeling calls, the writing phase covers assembling
// the ordered output.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseWriting    Phase = "writing"
)

// CostEstimate is the pre-batch cost projection for a set of rows.
type CostEstimate struct {
	Model       string  `json:"model"`
	Rows        int     `json:"rows"`
	TotalTokens int64   `json:"total_tokens"`
	Cost        float64 `json:"cost"`
}

// Snapshot is a point-in-time view of a caller's batch progress,
// shaped for a polling reader.
type Snapshot struct {
	ProcessedRows   int     `json:"processed_rows"`
	TotalRows       int     `json:"total_rows"`
	PercentComplete float64 `json:"percent_complete"`

	// EstimatedTimeRemaining is in seconds. Nil when the batch is
	// inactive or no rows have completed yet.
	EstimatedTimeRemaining *float64 `json:"estimated_time_remaining"`

	Active bool  `json:"active"`
	Phase  Phase `json:"phase"`
}

// Float64Ptr returns a pointer to the given float64.
func Float64Ptr(v float64) *float64 { return &v }
