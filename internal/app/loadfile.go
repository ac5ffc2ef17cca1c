package app

import (
	"bytes"
	"fmt"
	"strings"

	"yashubustudio/newsclass/newsclass"
)

// readInputFile parses data in the format named by the file extension. A
// delimited file without a recognizable text column is returned as a layout so
// the user can pick the column.
func readInputFile(name string, data []byte) ([]newsclass.InputRecord, *newsclass.ColumnLayout, error) {
	format := newsclass.FormatForPath(name)
	if !format.Delimited() {
		recs, err := newsclass.ReadInputRecords(bytes.NewReader(data), format, newsclass.InputParseOptions{})
		return recs, nil, err
	}
	layout, err := newsclass.InspectColumns(bytes.NewReader(data), format)
	if err != nil {
		return nil, nil, err
	}
	if layout.Detected || layout.Width() == 1 {
		recs, err := layout.Records(newsclass.InputParseOptions{})
		return recs, nil, err
	}
	return nil, &layout, nil
}

// recordsFromColumn reads the texts of the 0-based column col.
func recordsFromColumn(layout newsclass.ColumnLayout, col int) ([]newsclass.InputRecord, error) {
	return layout.Records(newsclass.InputParseOptions{TextColumn: fmt.Sprintf("#%d", col+1)})
}

// columnLabels lists every column of layout for a select widget.
func columnLabels(layout newsclass.ColumnLayout) []string {
	out := make([]string, layout.Width())
	for i := range out {
		out[i] = layout.ColumnLabel(i)
	}
	return out
}

// inputLines flattens records to one text per line for the input entry.
func inputLines(recs []newsclass.InputRecord) string {
	texts := newsclass.InputTexts(recs)
	for i, t := range texts {
		texts[i] = strings.Join(strings.Fields(t), " ")
	}
	return strings.Join(texts, "\n")
}

// entryTexts splits the input entry into texts to classify.
func entryTexts(text string) ([]string, error) {
	recs, err := newsclass.ReadInputRecords(strings.NewReader(text), newsclass.FormatLines, newsclass.InputParseOptions{})
	if err != nil {
		return nil, err
	}
	return newsclass.InputTexts(recs), nil
}
