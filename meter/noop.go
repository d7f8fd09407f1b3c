package meter

import textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ textclass.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnWait(textclass.WaitEvent)   {}
func (m *NoopMeter) OnRow(textclass.RowEvent)     {}
func (m *NoopMeter) OnBatch(textclass.BatchEvent) {}
