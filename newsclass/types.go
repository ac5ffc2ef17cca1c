package newsclass

// Record is a cleaned dataset row. Headline and ShortDescription are already
// lower-cased; Concatenation is the model's only text input.
type Record struct {
	Category         string `json:"category"`
	Headline         string `json:"headline"`
	ShortDescription string `json:"short_description"`
	Concatenation    string `json:"concatenation"`
}

// Example is the (label, text) pair handed to the collator.
type Example struct {
	Category string
	Text     string
}

// Batch is a collated, rectangular batch. Labels[i] belongs to Texts[i] and
// every row of Texts has the vocabulary's max length.
type Batch struct {
	Labels []int
	Texts  [][]int
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int {
	return len(b.Labels)
}

// InputRecord represents a text to classify, optionally with the headline and
// description it was assembled from.
type InputRecord struct {
	Index       string `json:"index,omitempty"`
	Headline    string `json:"headline,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text"`
}

// Prediction is the classifier's answer for one input text.
type Prediction struct {
	Text   string             `json:"text"`
	Label  string             `json:"label"`
	Score  float32            `json:"score"`
	Scores map[string]float32 `json:"scores,omitempty"`
}
