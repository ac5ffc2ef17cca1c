package newsclass_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/newsclass/newsclass"
)

func collateFixture(t *testing.T, policy newsclass.OverflowPolicy) (*newsclass.Vocabulary, *newsclass.Collator) {
	t.Helper()
	v := toyVocab(t, toyDataset(t, [2]string{"A", "a b c"}, [2]string{"B", "b"}))
	return v, newsclass.NewCollator(v, policy)
}

func TestCollatePadsToMaxLength(t *testing.T) {
	v, c := collateFixture(t, newsclass.OverflowTruncate)
	require.Equal(t, 3, c.MaxLength())

	b, err := c.Collate([]newsclass.Example{
		{Category: "B", Text: "b"},
		{Category: "A", Text: "a b c"},
		{Category: "A", Text: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{1, 0, 0}, b.Labels)
	assert.Equal(t, [][]int{
		{3, v.PadID(), v.PadID()},
		{2, 3, 4},
		{0, 0, 0},
	}, b.Texts)
}

func TestCollateOverflow(t *testing.T) {
	examples := []newsclass.Example{
		{Category: "A", Text: "a"},
		{Category: "B", Text: "c b a c"},
	}

	_, c := collateFixture(t, newsclass.OverflowTruncate)
	b, err := c.Collate(examples)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2}, b.Texts[1])

	_, c = collateFixture(t, newsclass.OverflowError)
	_, err = c.Collate(examples)
	require.ErrorIs(t, err, newsclass.ErrSequenceTooLong)
	var tooLong *newsclass.SequenceTooLongError
	require.True(t, errors.As(err, &tooLong))
	assert.Equal(t, newsclass.SequenceTooLongError{Index: 1, Length: 4, MaxLength: 3}, *tooLong)
}

func TestCollateUnknownLabel(t *testing.T) {
	_, c := collateFixture(t, newsclass.OverflowTruncate)
	_, err := c.Collate([]newsclass.Example{{Category: "A", Text: "a"}, {Category: "ZZZ", Text: "a"}})
	require.ErrorIs(t, err, newsclass.ErrUnknownLabel)
	assert.Contains(t, err.Error(), "batch row 1")
}

func TestCollateUnknownTokensUseUnk(t *testing.T) {
	v, c := collateFixture(t, newsclass.OverflowTruncate)
	rows, err := c.EncodeTexts([]string{"never seen", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{v.UnknownID(), v.UnknownID(), 0}, {2, 0, 0}}, rows)
}

func TestBatchTensors(t *testing.T) {
	_, c := collateFixture(t, newsclass.OverflowTruncate)
	b, err := c.Collate([]newsclass.Example{{Category: "A", Text: "a"}, {Category: "B", Text: "b c"}})
	require.NoError(t, err)

	labels, texts := b.Tensors()
	require.NotNil(t, labels)
	assert.Equal(t, []int{2}, []int(labels.Shape()))
	assert.Equal(t, []int{2, 3}, []int(texts.Shape()))
	assert.Equal(t, []int{2, 0, 0, 3, 4, 0}, texts.Data())

	labels, texts = newsclass.Batch{}.Tensors()
	assert.Nil(t, labels)
	assert.Nil(t, texts)
}

func TestParseOverflowPolicy(t *testing.T) {
	for in, want := range map[string]newsclass.OverflowPolicy{
		"":         newsclass.OverflowTruncate,
		"truncate": newsclass.OverflowTruncate,
		" Error ":  newsclass.OverflowError,
	} {
		got, err := newsclass.ParseOverflowPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, want, mustParse(t, got.String()))
	}
	_, err := newsclass.ParseOverflowPolicy("drop")
	assert.Error(t, err)
}

func mustParse(t *testing.T, s string) newsclass.OverflowPolicy {
	t.Helper()
	p, err := newsclass.ParseOverflowPolicy(s)
	require.NoError(t, err)
	return p
}
