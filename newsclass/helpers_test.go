package newsclass_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"yashubustudio/newsclass/newsclass"
)

func ndjsonLine(t *testing.T, category, headline, desc string) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"category":          category,
		"headline":          headline,
		"short_description": desc,
	})
	require.NoError(t, err)
	return string(b)
}

func ndjson(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n") + "\n")
}

// toyDataset builds already-cleaned records whose texts use whitespace tokens.
func toyDataset(t *testing.T, pairs ...[2]string) *newsclass.Dataset {
	t.Helper()
	records := make([]newsclass.Record, len(pairs))
	for i, p := range pairs {
		records[i] = newsclass.Record{Category: p[0], Concatenation: p[1]}
	}
	ds, err := newsclass.NewDataset(records)
	require.NoError(t, err)
	return ds
}

func toyVocab(t *testing.T, ds *newsclass.Dataset) *newsclass.Vocabulary {
	t.Helper()
	v, err := newsclass.BuildVocabulary(ds, newsclass.WhitespaceTokenizer)
	require.NoError(t, err)
	return v
}
