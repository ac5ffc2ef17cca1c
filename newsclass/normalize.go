package newsclass

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Lower lower-cases text without any other rewriting. It is what the dataset
// preparer applies to headlines and descriptions, so inference inputs go
// through it too.
func Lower(text string) string {
	// cases.Caser keeps state between calls and is not safe for concurrent use.
	return cases.Lower(language.Und).String(text)
}
