package newsclass

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Reserved vocabulary entries.
const (
	PadToken = "<pad>"
	UnkToken = "<unk>"

	padID = 0
	unkID = 1
)

// Vocabulary holds the token and label mappings derived from a cleaned corpus
// together with the padded sequence length. It is immutable after construction
// and safe for concurrent readers.
//
// The token vocabulary covers every token of the corpus it was built from, so
// unknown tokens only occur at inference time. They map to UnknownID rather than
// failing.
type Vocabulary struct {
	tokenize   Tokenizer
	tokens     []string
	tokenIndex map[string]int
	labels     []string
	labelIndex map[string]int
	maxLength  int
	pipeline   func(string) []int
}

// BuildVocabulary scans every record's concatenation with tok. Token ids are
// assigned in sorted token order after the reserved entries, and labels in
// sorted category order, so the same corpus always yields the same ids.
func BuildVocabulary(ds *Dataset, tok Tokenizer) (*Vocabulary, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	if tok == nil {
		return nil, errors.New("newsclass: tokenizer is required")
	}
	seen := make(map[string]struct{})
	maxLen := 0
	for i := 0; i < ds.Len(); i++ {
		toks := tok(ds.records[i].Concatenation)
		if len(toks) > maxLen {
			maxLen = len(toks)
		}
		for _, t := range toks {
			seen[t] = struct{}{}
		}
	}
	corpus := make([]string, 0, len(seen))
	for t := range seen {
		if t == PadToken || t == UnkToken {
			continue
		}
		corpus = append(corpus, t)
	}
	sort.Strings(corpus)
	return newVocabulary(tok, corpus, ds.Categories(), maxLen), nil
}

func newVocabulary(tok Tokenizer, corpus, labels []string, maxLen int) *Vocabulary {
	if maxLen < 1 {
		maxLen = 1
	}
	v := &Vocabulary{
		tokenize:   tok,
		tokens:     make([]string, 0, len(corpus)+2),
		tokenIndex: make(map[string]int, len(corpus)+2),
		labels:     append([]string(nil), labels...),
		labelIndex: make(map[string]int, len(labels)),
		maxLength:  maxLen,
	}
	v.tokens = append(v.tokens, PadToken, UnkToken)
	v.tokens = append(v.tokens, corpus...)
	for id, t := range v.tokens {
		v.tokenIndex[t] = id
	}
	for id, l := range v.labels {
		v.labelIndex[l] = id
	}
	v.pipeline = func(text string) []int {
		return v.ids(v.tokenize(text))
	}
	return v
}

func (v *Vocabulary) ids(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, t := range tokens {
		if id, ok := v.tokenIndex[t]; ok {
			out[i] = id
		} else {
			out[i] = unkID
		}
	}
	return out
}

// TextPipeline returns the composed tokenize-then-lookup function.
func (v *Vocabulary) TextPipeline() func(string) []int {
	return v.pipeline
}

// Encode runs the text pipeline on a single string.
func (v *Vocabulary) Encode(text string) []int {
	return v.pipeline(text)
}

// Tokenize exposes the tokenizer the vocabulary was built with.
func (v *Vocabulary) Tokenize(text string) []string {
	return v.tokenize(text)
}

// Size is the number of token ids, reserved entries included.
func (v *Vocabulary) Size() int { return len(v.tokens) }

// MaxLength is the longest token sequence seen in the corpus.
func (v *Vocabulary) MaxLength() int { return v.maxLength }

// PadID is the id used to right-pad sequences.
func (v *Vocabulary) PadID() int { return padID }

// UnknownID is the fallback id for out-of-vocabulary tokens.
func (v *Vocabulary) UnknownID() int { return unkID }

// NumClasses is the number of canonical categories.
func (v *Vocabulary) NumClasses() int { return len(v.labels) }

// Token returns the token string for an id.
func (v *Vocabulary) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

// TokenID looks a token up, falling back to UnknownID.
func (v *Vocabulary) TokenID(token string) int {
	if id, ok := v.tokenIndex[token]; ok {
		return id
	}
	return unkID
}

// Labels returns the categories in id order.
func (v *Vocabulary) Labels() []string {
	return append([]string(nil), v.labels...)
}

// LabelDict returns a copy of the category → id mapping.
func (v *Vocabulary) LabelDict() map[string]int {
	out := make(map[string]int, len(v.labelIndex))
	for k, id := range v.labelIndex {
		out[k] = id
	}
	return out
}

// LabelID maps a canonical category to its id.
func (v *Vocabulary) LabelID(category string) (int, error) {
	id, ok := v.labelIndex[category]
	if !ok {
		return -1, &UnknownLabelError{Category: category}
	}
	return id, nil
}

// Label maps a label id back to its category.
func (v *Vocabulary) Label(id int) (string, error) {
	if id < 0 || id >= len(v.labels) {
		return "", &UnknownLabelError{ID: id, ByID: true}
	}
	return v.labels[id], nil
}

// ClassWeightVector orders the dataset's class weights by label id. Categories
// absent from the dataset get weight 0.
func ClassWeightVector(ds *Dataset, v *Vocabulary) []float64 {
	weights := ds.ClassWeights()
	out := make([]float64, v.NumClasses())
	for id, label := range v.labels {
		out[id] = weights[label]
	}
	return out
}

type vocabFile struct {
	Tokens    []string `json:"tokens"`
	Labels    []string `json:"labels"`
	MaxLength int      `json:"maxLength"`
}

// Save writes the vocabulary as JSON. The tokenizer is not persisted; callers
// supply the same one to LoadVocabulary.
func (v *Vocabulary) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vocabFile{Tokens: v.tokens, Labels: v.labels, MaxLength: v.maxLength}); err != nil {
		return fmt.Errorf("encode vocabulary: %w", err)
	}
	return nil
}

// LoadVocabulary restores a vocabulary written by Save.
func LoadVocabulary(r io.Reader, tok Tokenizer) (*Vocabulary, error) {
	if tok == nil {
		return nil, errors.New("newsclass: tokenizer is required")
	}
	var f vocabFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}
	if len(f.Tokens) < 2 || f.Tokens[padID] != PadToken || f.Tokens[unkID] != UnkToken {
		return nil, errors.New("newsclass: vocabulary file lacks reserved tokens")
	}
	if len(f.Labels) == 0 {
		return nil, errors.New("newsclass: vocabulary file has no labels")
	}
	return newVocabulary(tok, f.Tokens[2:], f.Labels, f.MaxLength), nil
}
