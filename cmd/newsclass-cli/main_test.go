package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/newsclass/newsclass"
)

func TestWritePredictionsCSV(t *testing.T) {
	records := []newsclass.InputRecord{
		{Index: "1", Headline: "Big Show", Description: "A review.", Text: "Big Show A review."},
		{Index: "2", Text: "plain line"},
	}
	preds := []newsclass.Prediction{
		{Label: "CULTURE & ARTS", Score: 0.8123},
		{Label: "POLITICS", Score: 0.5},
	}
	var buf bytes.Buffer
	require.NoError(t, writePredictionsCSV(&buf, records, preds))
	assert.Equal(t,
		"index,headline,short_description,category,score\n"+
			"1,Big Show,A review.,CULTURE & ARTS,0.812\n"+
			"2,,plain line,POLITICS,0.500\n",
		buf.String())

	assert.Error(t, writePredictionsCSV(&buf, records, preds[:1]))
}

func TestTopScores(t *testing.T) {
	got := topScores(map[string]float32{"A": 0.1, "B": 0.6, "C": 0.1, "D": 0.2}, 3)
	assert.Equal(t, []labelScore{{"B", 0.6}, {"D", 0.2}, {"A", 0.1}}, got)
}

func TestSummarizeRecord(t *testing.T) {
	assert.Equal(t, "#7 Big Show", summarizeRecord(newsclass.InputRecord{Index: " 7 ", Headline: "Big Show", Text: "Big Show x"}))
	assert.Equal(t, "(empty text)", summarizeRecord(newsclass.InputRecord{}))
	long := summarizeRecord(newsclass.InputRecord{Text: strings.Repeat("x", 70)})
	assert.Equal(t, strings.Repeat("x", 60)+"…", long)
}

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveOutputPath("", filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out"), filepath.Dir(got))
	assert.True(t, strings.HasPrefix(filepath.Base(got), "predictions_"))

	explicit := filepath.Join(dir, "nested", "p.csv")
	got, err = resolveOutputPath(explicit, "")
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}
