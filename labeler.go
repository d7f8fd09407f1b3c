package textclass

import "context"

// Labeler is the interface that labeling-service adapters must
// implement. It assigns one of the given labels to a piece of text.
//
// Errors from Label are batch-fatal: the engine performs no retries of
// its own, so adapters that want retry behavior wrap it themselves.
type Labeler interface {
	Label(ctx context.Context, text string, labels []LabelDef, model string) (string, error)
}
