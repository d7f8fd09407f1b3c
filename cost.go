package textclass

// EstimateCost computes the dollar cost of labeling numRows rows
// totalling totalTokens prompt tokens under a model's pricing:
// tokens are billed per 1000 at the input rate, and each row's short
// label reply is billed per 1000 rows at the output rate.
func EstimateCost(pricing ModelPricing, totalTokens int64, numRows int) float64 {
	inCost := float64(totalTokens) / 1000 * pricing.InputPer1K
	outCost := float64(numRows) / 1000 * pricing.OutputPer1K
	return inCost + outCost
}
