package newsclass

import "sort"

// categoryConsolidation collapses near-duplicate and sparse categories into a
// canonical name. No value is itself a key, so applying it twice is a no-op.
var categoryConsolidation = map[string]string{
	"ARTS & CULTURE": "CULTURE & ARTS",
	"HEALTHY LIVING": "WELLNESS",
	"QUEER VOICES":   "VOICES",
	"BUSINESS":       "BUSINESS & FINANCES",
	"PARENTS":        "PARENTING",
	"BLACK VOICES":   "VOICES",
	"THE WORLDPOST":  "WORLD NEWS",
	"STYLE":          "STYLE & BEAUTY",
	"GREEN":          "ENVIRONMENT",
	"TASTE":          "FOOD & DRINK",
	"WORLDPOST":      "WORLD NEWS",
	"SCIENCE":        "SCIENCE & TECH",
	"TECH":           "SCIENCE & TECH",
	"MONEY":          "BUSINESS & FINANCES",
	"ARTS":           "CULTURE & ARTS",
	"COLLEGE":        "EDUCATION",
	"LATINO VOICES":  "VOICES",
	"FIFTY":          "MISCELLANEOUS",
	"GOOD NEWS":      "MISCELLANEOUS",
}

// CanonicalCategory maps a raw category to its canonical name. Categories that
// are not in the consolidation table are returned unchanged.
func CanonicalCategory(category string) string {
	if canonical, ok := categoryConsolidation[category]; ok {
		return canonical
	}
	return category
}

// ConsolidationTable returns a copy of the raw → canonical category table.
func ConsolidationTable() map[string]string {
	out := make(map[string]string, len(categoryConsolidation))
	for k, v := range categoryConsolidation {
		out[k] = v
	}
	return out
}

// ConsolidatedCategories lists the distinct canonical targets of the table, sorted.
func ConsolidatedCategories() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(categoryConsolidation))
	for _, v := range categoryConsolidation {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
