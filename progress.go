package textclass

import "time"

// Phase weights for the completion percentage: labeling the rows
// accounts for 90% of the bar, writing the ordered output for the
// remaining 10%.
const (
	processingWeight = 90.0
	writingWeight    = 10.0
)

// PercentComplete derives the weighted completion percentage from a
// progress record, clamped to [0,100]. Inactive records and records
// with no rows read as 0.
func PercentComplete(rec ProgressRecord) float64 {
	if !rec.Active || rec.TotalRows <= 0 {
		return 0
	}

	frac := float64(rec.ProcessedRows) / float64(rec.TotalRows)

	var pct float64
	switch rec.Phase {
	case PhaseWriting:
		pct = processingWeight + frac*writingWeight
	default:
		pct = frac * processingWeight
	}

	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// EstimateTimeRemaining derives the remaining seconds for an active
// batch from its processed-row rate, or nil when the batch is inactive
// or has no completed rows to extrapolate from.
func EstimateTimeRemaining(rec ProgressRecord, now time.Time) *float64 {
	if !rec.Active || rec.ProcessedRows <= 0 || rec.TotalRows <= 0 {
		return nil
	}

	elapsed := now.Sub(rec.UpdatedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}

	rate := float64(rec.ProcessedRows) / elapsed
	remaining := float64(rec.TotalRows-rec.ProcessedRows) / rate
	return &remaining
}

// snapshotFrom shapes a progress record for a polling reader.
func snapshotFrom(rec ProgressRecord, now time.Time) Snapshot {
	phase := rec.Phase
	if phase == "" {
		phase = PhaseProcessing
	}
	return Snapshot{
		ProcessedRows:          rec.ProcessedRows,
		TotalRows:              rec.TotalRows,
		PercentComplete:        PercentComplete(rec),
		EstimatedTimeRemaining: EstimateTimeRemaining(rec, now),
		Active:                 rec.Active,
		Phase:                  phase,
	}
}
