package newsclass

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer splits a string into an ordered sequence of token strings. It must
// be a pure function: the vocabulary, collator and predictor all call it and
// expect the same tokens for the same input.
type Tokenizer func(text string) []string

// basicEnglishReplacer reproduces torchtext's basic_english rules. None of the
// replacements produce another pattern, so one pass gives the same result as
// applying the rules in sequence.
var basicEnglishReplacer = strings.NewReplacer(
	"'", " '  ",
	"\"", "",
	".", " . ",
	"<br />", " ",
	",", " , ",
	"(", " ( ",
	")", " ) ",
	"!", " ! ",
	"?", " ? ",
	";", " ",
	":", " ",
)

// BasicEnglish lower-cases the text, isolates punctuation and splits on whitespace.
func BasicEnglish(text string) []string {
	return strings.Fields(basicEnglishReplacer.Replace(Lower(text)))
}

// WhitespaceTokenizer splits on whitespace only. Useful in tests and for
// corpora that were tokenized upstream.
func WhitespaceTokenizer(text string) []string {
	return strings.Fields(text)
}

// PretrainedTokenizer loads a HuggingFace tokenizer.json and exposes its token
// strings through the Tokenizer hook. If encoding fails for a particular text
// the basic_english rules are used for it instead.
func PretrainedTokenizer(path string) (Tokenizer, error) {
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	var mu sync.Mutex
	return func(text string) []string {
		mu.Lock()
		enc, err := t.EncodeSingle(text)
		mu.Unlock()
		if err != nil || enc == nil {
			return BasicEnglish(text)
		}
		out := make([]string, len(enc.Tokens))
		copy(out, enc.Tokens)
		return out
	}, nil
}

// TokenizerByName resolves the tokenizer named in a run configuration.
func TokenizerByName(kind, path string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "basic_english":
		return BasicEnglish, nil
	case "whitespace":
		return WhitespaceTokenizer, nil
	case "pretrained":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("pretrained tokenizer requires a path")
		}
		return PretrainedTokenizer(path)
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", kind)
	}
}
