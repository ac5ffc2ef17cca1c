package app

import "sort"

// rankSuggestions orders class probabilities descending and keeps the top k.
// Ties are broken by label so the table order is stable.
func rankSuggestions(scores map[string]float32, k int) []Suggestion {
	out := make([]Suggestion, 0, len(scores))
	for label, score := range scores {
		out = append(out, Suggestion{Label: label, Score: clamp01(score)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Label < out[j].Label
		}
		return out[i].Score > out[j].Score
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func needsReview(s []Suggestion, th Threshold) bool {
	if len(s) == 0 {
		return true
	}
	if s[0].Score < th.Top1 {
		return true
	}
	return len(s) > 1 && s[0].Score-s[1].Score < th.Margin12
}

func clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
