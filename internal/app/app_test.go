package app

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/newsclass/newsclass"
)

func TestRankSuggestions(t *testing.T) {
	got := rankSuggestions(map[string]float32{"POLITICS": 0.2, "SPORTS": 0.5, "CRIME": 0.2, "TECH": 1.2}, 3)
	assert.Equal(t, []Suggestion{
		{Label: "TECH", Score: 1},
		{Label: "SPORTS", Score: 0.5},
		{Label: "CRIME", Score: 0.2},
	}, got)

	assert.Len(t, rankSuggestions(map[string]float32{"A": 0.1}, 3), 1)
	assert.Empty(t, rankSuggestions(nil, 3))
}

func TestNeedsReview(t *testing.T) {
	th := Threshold{Top1: 0.45, Margin12: 0.05}
	tests := []struct {
		name string
		in   []Suggestion
		want bool
	}{
		{"empty", nil, true},
		{"low top", []Suggestion{{"A", 0.4}}, true},
		{"narrow margin", []Suggestion{{"A", 0.5}, {"B", 0.47}}, true},
		{"confident", []Suggestion{{"A", 0.7}, {"B", 0.2}}, false},
		{"single confident", []Suggestion{{"A", 0.9}}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, needsReview(tt.in, th), tt.name)
	}
}

func TestBuildRow(t *testing.T) {
	cfg := defaultConfig()
	cfg.TopK = 2
	row := buildRow(newsclass.Prediction{
		Text:   "rain expected",
		Label:  "WEATHER",
		Score:  0.9,
		Scores: map[string]float32{"WEATHER": 0.9, "SPORTS": 0.06, "CRIME": 0.04},
	}, cfg)
	assert.Equal(t, "rain expected", row.Text)
	require.Len(t, row.Suggestions, 2)
	assert.Equal(t, "WEATHER", row.Suggestions[0].Label)
	assert.False(t, row.NeedReview)
	assert.Equal(t, "WEATHER\n0.900", formatSuggestionAt(row.Suggestions, 0))
	assert.Empty(t, formatSuggestionAt(row.Suggestions, 5))
}

func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{TopK: 9, Thresh: Threshold{Margin12: -1}, RunConfigPath: " run.toml "})
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, Threshold{Top1: 0.45, Margin12: 0.05}, cfg.Thresh)
	assert.Equal(t, "run.toml", cfg.RunConfigPath)
	assert.Equal(t, 1, sanitizeConfig(Config{}).TopK)
}

func TestReadInputFile(t *testing.T) {
	recs, layout, err := readInputFile("news.csv", []byte("id,Headline,short_description\n7,Big Show,tonight only\n,Rain,\n"))
	require.NoError(t, err)
	assert.Nil(t, layout)
	require.Len(t, recs, 2)
	assert.Equal(t, "Big Show tonight only", recs[0].Text)
	assert.Equal(t, "7", recs[0].Index)
	assert.Equal(t, "Rain", recs[1].Text)

	recs, layout, err = readInputFile("notes.txt", []byte("first\n\n second \n"))
	require.NoError(t, err)
	assert.Nil(t, layout)
	assert.Equal(t, []string{"first", "second"}, newsclass.InputTexts(recs))

	_, _, err = readInputFile("empty.tsv", nil)
	assert.Error(t, err)
}

func TestReadInputFileAsksForColumn(t *testing.T) {
	recs, layout, err := readInputFile("scores.csv", []byte("1,markets rally,0.3\n2,storm warning,0.9\n"))
	require.NoError(t, err)
	assert.Nil(t, recs)
	require.NotNil(t, layout)
	assert.Equal(t, []string{"[1] column 1", "[2] column 2", "[3] column 3"}, columnLabels(*layout))

	recs, err = recordsFromColumn(*layout, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"markets rally", "storm warning"}, newsclass.InputTexts(recs))
}

func TestInputLines(t *testing.T) {
	recs := []newsclass.InputRecord{{Text: "two\nlines"}, {Text: "  spaced   out "}}
	assert.Equal(t, "two lines\nspaced out", inputLines(recs))

	texts, err := entryTexts("two lines\n\n  spaced out\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"two lines", "spaced out"}, texts)
}

func TestSettingsFormApply(t *testing.T) {
	cfg := defaultConfig()
	form := formFromConfig(cfg)
	assert.Equal(t, settingsForm{TopK: "3", Top1: "0.45", Margin: "0.05"}, form)

	got := settingsForm{TopK: "5", Top1: " 0.6 ", Margin: "abc"}.apply(cfg)
	assert.Equal(t, 5, got.TopK)
	assert.InDelta(t, 0.6, got.Thresh.Top1, 1e-6)
	assert.Equal(t, cfg.Thresh.Margin12, got.Thresh.Margin12)
}

func TestResultColumns(t *testing.T) {
	cols := resultColumns(2)
	require.Len(t, cols, 4)
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.title
	}
	assert.Equal(t, []string{"Text", "#1", "#2", "Review"}, titles)

	row := ResultRow{Text: "t", Suggestions: []Suggestion{{"A", 0.75}}, NeedReview: true}
	assert.Equal(t, "A\n0.750", cols[1].value(row))
	assert.Empty(t, cols[2].value(row))
	assert.Equal(t, "review", cols[3].value(row))
}

func TestLogViewKeepsRecentLines(t *testing.T) {
	l := newLogView()
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	for i := range logKeepLines + 5 {
		l.Append(strconv.Itoa(i))
	}
	lines := l.snapshot()
	require.Len(t, lines, logKeepLines)
	assert.Equal(t, "[03:04:05] 5", lines[0])

	assert.Eventually(t, func() bool {
		text, err := l.text.Get()
		return err == nil && strings.HasSuffix(text, strconv.Itoa(logKeepLines+4))
	}, time.Second, 10*time.Millisecond)
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := lineWriter(func(s string) { lines = append(lines, s) })
	in := []byte("first\r\n\n second \n")
	n, err := w.Write(in)
	require.NoError(t, err)
	assert.Equal(t, len(in), n)
	assert.Equal(t, []string{"first", "second"}, lines)
}

func TestWriteResultCSV(t *testing.T) {
	rows := []ResultRow{
		{Text: "a", Suggestions: []Suggestion{{"X", 0.8}, {"Y", 0.1}}},
		{Text: "b", Suggestions: []Suggestion{{"Y", 0.3}}, NeedReview: true},
	}
	var buf bytes.Buffer
	require.NoError(t, writeResultCSV(&buf, rows, 2))
	assert.Equal(t,
		"text,category1,score1,category2,score2,need_review\n"+
			"a,X,0.800,Y,0.100,no\n"+
			"b,Y,0.300,,,yes\n",
		buf.String())
}
