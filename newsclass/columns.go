package newsclass

import "sync"

// ColumnCandidates defines possible header names for auto-detecting CSV/TSV columns.
type ColumnCandidates struct {
	Text        []string `json:"text"`
	Headline    []string `json:"headline"`
	Description []string `json:"description"`
	Index       []string `json:"index"`
}

var (
	columnCandidatesMu  sync.RWMutex
	activeColumnOptions = defaultColumnCandidates()
)

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Text:        []string{"text", "content", "body", "message", "concatenation"},
		Headline:    []string{"headline", "title", "heading"},
		Description: []string{"short_description", "description", "summary", "abstract"},
		Index:       []string{"id", "index", "no", "link", "url"},
	}
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return defaultColumnCandidates().clone()
}

// SetColumnCandidates updates the column detection candidates used during auto-detection.
// Fields left nil fall back to the built-in defaults, allowing callers to override only
// the parts they need.
func SetColumnCandidates(candidates ColumnCandidates) {
	columnCandidatesMu.Lock()
	defer columnCandidatesMu.Unlock()
	activeColumnOptions = candidates.withDefaults()
}

func getColumnCandidates() ColumnCandidates {
	columnCandidatesMu.RLock()
	defer columnCandidatesMu.RUnlock()
	return activeColumnOptions.clone()
}

func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		Text:        pickStrings(c.Text, defaults.Text),
		Headline:    pickStrings(c.Headline, defaults.Headline),
		Description: pickStrings(c.Description, defaults.Description),
		Index:       pickStrings(c.Index, defaults.Index),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		Text:        cloneStrings(c.Text),
		Headline:    cloneStrings(c.Headline),
		Description: cloneStrings(c.Description),
		Index:       cloneStrings(c.Index),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
