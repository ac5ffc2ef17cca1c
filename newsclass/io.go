package newsclass

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InputFormat selects how ReadInputRecords splits its input into records.
type InputFormat int

const (
	// FormatLines treats every non-empty line as one text.
	FormatLines InputFormat = iota
	FormatCSV
	FormatTSV
	// FormatJSONL reads dataset-shaped objects, one per line.
	FormatJSONL
)

// FormatForPath picks the input format from a file extension.
func FormatForPath(path string) InputFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL
	default:
		return FormatLines
	}
}

// Delimited reports whether the format has columns.
func (f InputFormat) Delimited() bool { return f == FormatCSV || f == FormatTSV }

func (f InputFormat) comma() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

// InputParseOptions names the columns of a delimited file. A value is either a
// header name (case-insensitive) or a 1-based position such as "#2". Empty
// values are detected from ColumnCandidates.
type InputParseOptions struct {
	IndexColumn       string
	HeadlineColumn    string
	DescriptionColumn string
	TextColumn        string
}

// ColumnLayout describes the columns detected in a delimited file.
type ColumnLayout struct {
	Header []string
	// HasHeader is set when at least one column was recognized by name.
	HasHeader bool
	// Detected is set when a headline or text column was found by name.
	Detected bool
	Rows     [][]string
}

// ColumnLabel is a display name for column col ("[2] title").
func (l ColumnLayout) ColumnLabel(col int) string {
	name := fmt.Sprintf("column %d", col+1)
	if l.HasHeader && col < len(l.Header) && l.Header[col] != "" {
		name = l.Header[col]
	}
	return fmt.Sprintf("[%d] %s", col+1, name)
}

// Width is the largest row width seen, header included.
func (l ColumnLayout) Width() int {
	w := len(l.Header)
	for _, row := range l.Rows {
		w = max(w, len(row))
	}
	return w
}

// ParseInputRecords reads texts to classify from path.
func ParseInputRecords(path string) ([]InputRecord, error) {
	return ParseInputRecordsWithOptions(path, InputParseOptions{})
}

// ParseInputRecordsWithOptions opens path and reads it in the format its
// extension names.
func ParseInputRecordsWithOptions(path string, opts InputParseOptions) ([]InputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	records, err := ReadInputRecords(f, FormatForPath(path), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// ParseTextFile returns only the texts of ParseInputRecords.
func ParseTextFile(path string) ([]string, error) {
	records, err := ParseInputRecords(path)
	if err != nil {
		return nil, err
	}
	return InputTexts(records), nil
}

// InputTexts extracts the Text of every record.
func InputTexts(records []InputRecord) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Text
	}
	return out
}

// ReadInputRecords reads records from r. Records whose text ends up empty are
// skipped; Index falls back to the 1-based row or line number.
func ReadInputRecords(r io.Reader, format InputFormat, opts InputParseOptions) ([]InputRecord, error) {
	switch format {
	case FormatCSV, FormatTSV:
		layout, err := InspectColumns(r, format)
		if err != nil {
			return nil, err
		}
		return layout.Records(opts)
	case FormatJSONL:
		return readJSONLInputs(r)
	default:
		return readLineInputs(r)
	}
}

// InspectColumns reads a delimited input and detects its column layout.
func InspectColumns(r io.Reader, format InputFormat) (ColumnLayout, error) {
	cr := csv.NewReader(r)
	cr.Comma = format.comma()
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return ColumnLayout{}, fmt.Errorf("read delimited input: %w", err)
	}
	if len(rows) == 0 {
		return ColumnLayout{}, errors.New("delimited input is empty")
	}
	header := make([]string, len(rows[0]))
	for i, v := range rows[0] {
		header[i] = trimCell(v)
	}
	layout := ColumnLayout{Header: header, Rows: rows}
	cols, named, err := resolveColumns(header, InputParseOptions{})
	if err != nil {
		return ColumnLayout{}, err
	}
	layout.HasHeader = named
	layout.Detected = named && (cols.headline >= 0 || cols.text >= 0)
	return layout, nil
}

// Records maps every data row to an InputRecord. The headline and description
// are joined like dataset concatenations; the text column is used when both
// are empty.
func (l ColumnLayout) Records(opts InputParseOptions) ([]InputRecord, error) {
	cols, named, err := resolveColumns(l.Header, opts)
	if err != nil {
		return nil, err
	}
	rows := l.Rows
	if named {
		rows = rows[1:]
	}
	out := make([]InputRecord, 0, len(rows))
	for n, row := range rows {
		rec := InputRecord{
			Index:       cell(row, cols.index),
			Headline:    cell(row, cols.headline),
			Description: cell(row, cols.description),
		}
		rec.Text = joinHeadline(rec.Headline, rec.Description)
		if rec.Text == "" {
			rec.Text = cell(row, cols.text)
		}
		if rec.Text == "" {
			continue
		}
		if rec.Index == "" {
			rec.Index = strconv.Itoa(n + 1)
		}
		out = append(out, rec)
	}
	return out, nil
}

func readLineInputs(r io.Reader) ([]InputRecord, error) {
	var out []InputRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if text := trimCell(sc.Text()); text != "" {
			out = append(out, InputRecord{Index: strconv.Itoa(len(out) + 1), Text: text})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return out, nil
}

type jsonInput struct {
	ID               string `json:"id"`
	Headline         string `json:"headline"`
	ShortDescription string `json:"short_description"`
	Text             string `json:"text"`
}

func readJSONLInputs(r io.Reader) ([]InputRecord, error) {
	var out []InputRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for line := 1; sc.Scan(); line++ {
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		var in jsonInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec := InputRecord{
			Index:       in.ID,
			Headline:    trimCell(in.Headline),
			Description: trimCell(in.ShortDescription),
		}
		if rec.Text = joinHeadline(rec.Headline, rec.Description); rec.Text == "" {
			rec.Text = trimCell(in.Text)
		}
		if rec.Text == "" {
			continue
		}
		if rec.Index == "" {
			rec.Index = strconv.Itoa(line)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return out, nil
}

// joinHeadline mirrors the dataset concatenation for inference inputs. A
// description that repeats the headline is not doubled.
func joinHeadline(headline, desc string) string {
	if desc == "" || desc == headline {
		return headline
	}
	if headline == "" {
		return desc
	}
	return headline + " " + desc
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return trimCell(row[col])
}

func trimCell(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "\ufeff")
}

type columnMap struct {
	index, headline, description, text int
}

// resolveColumns maps options onto header positions. named reports whether
// any column was matched by header name, which marks the first row as a
// header. Without any match the first column holds the text.
func resolveColumns(header []string, opts InputParseOptions) (cols columnMap, named bool, err error) {
	cands := getColumnCandidates()
	fields := []struct {
		dst      *int
		explicit string
		cands    []string
	}{
		{&cols.index, opts.IndexColumn, cands.Index},
		{&cols.headline, opts.HeadlineColumn, cands.Headline},
		{&cols.description, opts.DescriptionColumn, cands.Description},
		{&cols.text, opts.TextColumn, cands.Text},
	}
	for _, f := range fields {
		idx, byName, err := lookupColumn(header, f.explicit, f.cands)
		if err != nil {
			return columnMap{}, false, err
		}
		*f.dst = idx
		named = named || byName
	}
	if !named && cols.text < 0 && cols.headline < 0 && len(header) > 0 {
		cols.text = 0
	}
	return cols, named, nil
}

func lookupColumn(header []string, explicit string, cands []string) (int, bool, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit == "" {
		for i, h := range header {
			for _, c := range cands {
				if strings.EqualFold(h, c) {
					return i, true, nil
				}
			}
		}
		return -1, false, nil
	}
	for i, h := range header {
		if strings.EqualFold(h, explicit) {
			return i, true, nil
		}
	}
	pos, ok := strings.CutPrefix(explicit, "#")
	if !ok {
		return -1, false, fmt.Errorf("column %q not found", explicit)
	}
	n, err := strconv.Atoi(strings.TrimSpace(pos))
	if err != nil || n < 1 {
		return -1, false, fmt.Errorf("invalid column position %q (positions are 1-based)", explicit)
	}
	if n > len(header) {
		return -1, false, fmt.Errorf("column position %s is out of range", explicit)
	}
	return n - 1, false, nil
}
