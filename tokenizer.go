package textclass

// Tokenizer counts the prompt tokens a row of text will consume for a
// given model. Implementations must be deterministic per model.
type Tokenizer interface {
	Count(text, model string) (int64, error)
}

// HeuristicTokenizer estimates token counts without a model vocabulary.
// Uses the approximation: ~4 chars per token + fixed message overhead.
type HeuristicTokenizer struct{}

var _ Tokenizer = HeuristicTokenizer{}

func (HeuristicTokenizer) Count(text, _ string) (int64, error) {
	// ~4 chars per token, plus overhead for role/formatting and the
	// request envelope.
	return int64(len(text))/4 + 7, nil
}
