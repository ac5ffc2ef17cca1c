package newsclass

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"
)

// Length limits applied to the raw headline and short description, counted in
// code points. The 120..131 band of description lengths is excluded as-is; the
// rule has no documented rationale and is kept literally.
const (
	MaxHeadlineLen          = 120
	MaxDescriptionLen       = 320
	DescriptionDeadZoneLow  = 120
	DescriptionDeadZoneHigh = 131
)

const maxLineBytes = 1 << 20

// DatasetStats counts how many rows each cleaning rule removed.
type DatasetStats struct {
	Lines              int `json:"lines"`
	Kept               int `json:"kept"`
	DroppedMissing     int `json:"droppedMissing"`
	DroppedHeadline    int `json:"droppedHeadline"`
	DroppedDescription int `json:"droppedDescription"`
	DroppedDeadZone    int `json:"droppedDeadZone"`
}

// Dataset is the cleaned, in-memory record set. It is immutable once built.
type Dataset struct {
	records []Record
	stats   DatasetStats
}

type rawRecord struct {
	Category         json.RawMessage `json:"category"`
	Headline         json.RawMessage `json:"headline"`
	ShortDescription json.RawMessage `json:"short_description"`
}

// LoadDataset reads a newline-delimited JSON file and returns the cleaned records.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDataLoad, filepath.Base(path), err)
	}
	defer f.Close()
	ds, err := ReadDataset(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// ReadDataset applies the cleaning pipeline to newline-delimited JSON read from r.
// Rows are processed in order: missing fields dropped, length filters on the raw
// strings, category consolidation, lower-casing, then concatenation.
func ReadDataset(r io.Reader) (*Dataset, error) {
	ds := &Dataset{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		ds.stats.Lines++
		var raw rawRecord
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrDataLoad, line, err)
		}
		category, okCat := stringField(raw.Category)
		headline, okHead := stringField(raw.Headline)
		desc, okDesc := stringField(raw.ShortDescription)
		if !okCat || !okHead || !okDesc {
			ds.stats.DroppedMissing++
			continue
		}
		switch lengthRule(headline, desc) {
		case dropHeadline:
			ds.stats.DroppedHeadline++
			continue
		case dropDescription:
			ds.stats.DroppedDescription++
			continue
		case dropDeadZone:
			ds.stats.DroppedDeadZone++
			continue
		}
		rec := Record{
			Category:         CanonicalCategory(category),
			Headline:         Lower(headline),
			ShortDescription: Lower(desc),
		}
		rec.Concatenation = rec.Headline + " " + rec.ShortDescription
		ds.records = append(ds.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", ErrDataLoad, line+1, err)
	}
	ds.stats.Kept = len(ds.records)
	if len(ds.records) == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// NewDataset builds a dataset from records that are already cleaned.
func NewDataset(records []Record) (*Dataset, error) {
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}
	out := make([]Record, len(records))
	copy(out, records)
	return &Dataset{records: out, stats: DatasetStats{Lines: len(out), Kept: len(out)}}, nil
}

// stringField reports false for missing, null and non-string values, which the
// preparer treats alike.
func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

type dropReason int

const (
	keep dropReason = iota
	dropHeadline
	dropDescription
	dropDeadZone
)

func lengthRule(headline, desc string) dropReason {
	h := utf8.RuneCountInString(headline)
	if h == 0 || h > MaxHeadlineLen {
		return dropHeadline
	}
	d := utf8.RuneCountInString(desc)
	if d == 0 || d >= MaxDescriptionLen {
		return dropDescription
	}
	if d >= DescriptionDeadZoneLow && d <= DescriptionDeadZoneHigh {
		return dropDeadZone
	}
	return keep
}

// PassesLengthRules reports whether a raw headline/description pair survives the
// length filters.
func PassesLengthRules(headline, desc string) bool {
	return lengthRule(headline, desc) == keep
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Record returns the record at index i.
func (d *Dataset) Record(i int) Record {
	return d.records[i]
}

// Example returns the (category, concatenation) pair at index i.
func (d *Dataset) Example(i int) Example {
	rec := d.records[i]
	return Example{Category: rec.Category, Text: rec.Concatenation}
}

// Records returns a copy of all records.
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Stats returns the per-rule drop counters gathered while loading.
func (d *Dataset) Stats() DatasetStats {
	return d.stats
}

// ClassCounts returns the number of records per canonical category.
func (d *Dataset) ClassCounts() map[string]int {
	counts := make(map[string]int)
	for _, rec := range d.records {
		counts[rec.Category]++
	}
	return counts
}

// Categories returns the distinct canonical categories, sorted.
func (d *Dataset) Categories() []string {
	counts := d.ClassCounts()
	out := make([]string, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ClassWeights returns total / (numClasses * count) for every category.
func (d *Dataset) ClassWeights() map[string]float64 {
	counts := d.ClassCounts()
	total := float64(len(d.records))
	n := float64(len(counts))
	out := make(map[string]float64, len(counts))
	for c, cnt := range counts {
		out[c] = total / (n * float64(cnt))
	}
	return out
}
