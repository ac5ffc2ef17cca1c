package newsclass_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/newsclass/newsclass"
)

func TestBuildVocabularyAssignsSortedIDs(t *testing.T) {
	ds := toyDataset(t,
		[2]string{"B", "pear apple"},
		[2]string{"A", "fig apple <pad> date"},
	)
	v := toyVocab(t, ds)

	assert.Equal(t, 6, v.Size())
	assert.Equal(t, 4, v.MaxLength())
	for id, want := range []string{newsclass.PadToken, newsclass.UnkToken, "apple", "date", "fig", "pear"} {
		got, ok := v.Token(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
		assert.Equal(t, id, v.TokenID(want))
	}
	_, ok := v.Token(6)
	assert.False(t, ok)

	assert.Equal(t, 0, v.PadID())
	assert.Equal(t, 1, v.UnknownID())
	assert.Equal(t, []string{"A", "B"}, v.Labels())
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, v.LabelDict())
	assert.Equal(t, 2, v.NumClasses())
}

func TestVocabularyEncode(t *testing.T) {
	v := toyVocab(t, toyDataset(t, [2]string{"A", "b a"}, [2]string{"B", "c a d"}))

	assert.Equal(t, []int{3, 2, 5}, v.Encode("b a d"))
	assert.Equal(t, []int{2, v.UnknownID()}, v.Encode("a zebra"))
	assert.Equal(t, v.Encode("c"), v.TextPipeline()("c"))
	assert.Empty(t, v.Encode(""))
}

func TestVocabularyLabels(t *testing.T) {
	v := toyVocab(t, toyDataset(t, [2]string{"A", "x"}, [2]string{"B", "y"}))

	id, err := v.LabelID("B")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	_, err = v.LabelID("C")
	require.ErrorIs(t, err, newsclass.ErrUnknownLabel)
	var ule *newsclass.UnknownLabelError
	require.True(t, errors.As(err, &ule))
	assert.Equal(t, "C", ule.Category)
	assert.False(t, ule.ByID)

	label, err := v.Label(0)
	require.NoError(t, err)
	assert.Equal(t, "A", label)

	_, err = v.Label(7)
	require.True(t, errors.As(err, &ule))
	assert.True(t, ule.ByID)
	assert.Equal(t, 7, ule.ID)
}

func TestVocabularySaveLoad(t *testing.T) {
	v := toyVocab(t, toyDataset(t, [2]string{"A", "b a"}, [2]string{"B", "c a d"}))
	var buf bytes.Buffer
	require.NoError(t, v.Save(&buf))

	loaded, err := newsclass.LoadVocabulary(&buf, newsclass.WhitespaceTokenizer)
	require.NoError(t, err)
	assert.Equal(t, v.Size(), loaded.Size())
	assert.Equal(t, v.MaxLength(), loaded.MaxLength())
	assert.Equal(t, v.Labels(), loaded.Labels())
	assert.Equal(t, v.Encode("d c b a q"), loaded.Encode("d c b a q"))
}

func TestLoadVocabularyRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"not json":         "{",
		"missing reserved": `{"tokens":["a","b"],"labels":["A"],"maxLength":2}`,
		"no labels":        `{"tokens":["<pad>","<unk>","a"],"labels":[],"maxLength":2}`,
		"too few tokens":   `{"tokens":["<pad>"],"labels":["A"],"maxLength":2}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newsclass.LoadVocabulary(strings.NewReader(body), newsclass.WhitespaceTokenizer)
			assert.Error(t, err)
		})
	}
}

func TestBuildVocabularyErrors(t *testing.T) {
	_, err := newsclass.BuildVocabulary(nil, newsclass.WhitespaceTokenizer)
	assert.ErrorIs(t, err, newsclass.ErrEmptyDataset)

	_, err = newsclass.BuildVocabulary(toyDataset(t, [2]string{"A", "x"}), nil)
	assert.Error(t, err)
}

func TestBasicEnglish(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", ",", "world", "!"}},
		{`She said "no".`, []string{"she", "said", "no", "."}},
		{"It's (really) fine?", []string{"it", "'", "s", "(", "really", ")", "fine", "?"}},
		{"a;b:c<br />d", []string{"a", "b", "c", "d"}},
		{"   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := newsclass.BasicEnglish(tt.in)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizerByName(t *testing.T) {
	tok, err := newsclass.TokenizerByName("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "."}, tok("A."))

	tok, err = newsclass.TokenizerByName("whitespace", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A."}, tok("A."))

	_, err = newsclass.TokenizerByName("pretrained", "")
	assert.Error(t, err)
	_, err = newsclass.PretrainedTokenizer(filepath.Join(t.TempDir(), "tokenizer.json"))
	assert.ErrorContains(t, err, "load tokenizer")
	_, err = newsclass.TokenizerByName("bpe", "")
	assert.Error(t, err)
}

func TestLower(t *testing.T) {
	assert.Equal(t, "straße", newsclass.Lower("STRAßE"))
	// No compatibility folding: full-width and ligature forms survive.
	assert.Equal(t, "ａｂｃ ﬁsh", newsclass.Lower("ＡＢＣ ﬁsh"))
}
