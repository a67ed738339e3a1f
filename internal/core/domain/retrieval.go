package domain

import "sort"

type RetrievalResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// RankResults orders results by score descending. The sort is stable, so
// equal scores keep the order the store returned them in. At most k results
// are kept when k > 0.
func RankResults(results []RetrievalResult, k int) []RetrievalResult {
	out := make([]RetrievalResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// ComposedPrompt is an augmented prompt together with the results that made
// it into the contexts block after the budget was applied.
type ComposedPrompt struct {
	Text    string            `json:"prompt"`
	Sources []RetrievalResult `json:"sources"`
}

// Turn is the outcome of one augmented ask: the updated conversation, the
// assistant answer, and the sources that were injected into the prompt.
type Turn struct {
	Conversation *Conversation     `json:"conversation"`
	Answer       string            `json:"answer"`
	Sources      []RetrievalResult `json:"sources"`
}
