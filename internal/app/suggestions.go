package app

import "fmt"

func suggestionAt(s []Suggestion, idx int) (Suggestion, bool) {
	if idx < 0 || idx >= len(s) {
		return Suggestion{}, false
	}
	return s[idx], true
}

func formatSuggestionAt(list []Suggestion, idx int) string {
	if sug, ok := suggestionAt(list, idx); ok {
		return fmt.Sprintf("%s\n%.3f", sug.Label, sug.Score)
	}
	return ""
}
