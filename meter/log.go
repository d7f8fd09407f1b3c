package meter

import (
	"log/slog"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

// LogMeter logs classification events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ textclass.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnWait(e textclass.WaitEvent) {
	m.Logger.Info("rate_limit_wait",
		"model", e.Model,
		"tokens", e.Tokens,
		"wait_ms", e.Wait.Milliseconds(),
	)
}

func (m *LogMeter) OnRow(e textclass.RowEvent) {
	if e.Err != nil {
		m.Logger.Warn("row_error",
			"batch", e.BatchID,
			"model", e.Model,
			"row", e.Row,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
		return
	}
	m.Logger.Debug("row",
		"batch", e.BatchID,
		"model", e.Model,
		"row", e.Row,
		"tokens", e.Tokens,
		"duration_ms", e.Duration.Milliseconds(),
		"tokenize_error", e.TokenizeErr,
	)
}

func (m *LogMeter) OnBatch(e textclass.BatchEvent) {
	if !e.Done {
		m.Logger.Info("batch_start",
			"batch", e.BatchID,
			"caller", e.CallerID,
			"model", e.Model,
			"rows", e.Rows,
		)
		return
	}
	if e.Err != nil {
		m.Logger.Warn("batch_error",
			"batch", e.BatchID,
			"caller", e.CallerID,
			"model", e.Model,
			"rows", e.Rows,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
		return
	}
	m.Logger.Info("batch_done",
		"batch", e.BatchID,
		"caller", e.CallerID,
		"model", e.Model,
		"rows", e.Rows,
		"duration_ms", e.Duration.Milliseconds(),
	)
}
