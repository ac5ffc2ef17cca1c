package app

import (
	"encoding/csv"
	"fmt"
	"io"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
)

const minRowHeight = 32

type resultColumn struct {
	title string
	width float32
	value func(ResultRow) string
}

// resultColumns lays out the text, one column per suggestion rank and the
// review flag.
func resultColumns(topK int) []resultColumn {
	cols := make([]resultColumn, 0, topK+2)
	cols = append(cols, resultColumn{"Text", 360, func(r ResultRow) string { return r.Text }})
	for rank := range topK {
		cols = append(cols, resultColumn{
			title: fmt.Sprintf("#%d", rank+1),
			width: 170,
			value: func(r ResultRow) string { return formatSuggestionAt(r.Suggestions, rank) },
		})
	}
	return append(cols, resultColumn{"Review", 80, func(r ResultRow) string {
		if r.NeedReview {
			return "review"
		}
		return ""
	}})
}

type resultTable struct {
	*widget.Table
	cols []resultColumn
	rows []ResultRow
}

func newResultTable(topK int) *resultTable {
	rt := &resultTable{cols: resultColumns(topK)}
	rt.Table = widget.NewTableWithHeaders(
		func() (int, int) { return len(rt.rows), len(rt.cols) },
		func() fyne.CanvasObject {
			lbl := widget.NewLabel("")
			lbl.Wrapping = fyne.TextWrapWord
			return lbl
		},
		rt.updateCell,
	)
	rt.ShowHeaderColumn = false
	rt.CreateHeader = func() fyne.CanvasObject { return widget.NewLabel("") }
	rt.UpdateHeader = func(id widget.TableCellID, obj fyne.CanvasObject) {
		lbl := obj.(*widget.Label)
		lbl.TextStyle = fyne.TextStyle{Bold: true}
		lbl.SetText("")
		if id.Col >= 0 && id.Col < len(rt.cols) {
			lbl.SetText(rt.cols[id.Col].title)
		}
	}
	rt.applyWidths()
	return rt
}

func (rt *resultTable) updateCell(id widget.TableCellID, obj fyne.CanvasObject) {
	lbl := obj.(*widget.Label)
	if id.Row >= len(rt.rows) || id.Col >= len(rt.cols) {
		lbl.SetText("")
		return
	}
	col := rt.cols[id.Col]
	val := col.value(rt.rows[id.Row])
	lbl.SetText(val)
	if id.Col == 0 {
		rt.SetRowHeight(id.Row, max(textHeight(val, col.width), minRowHeight))
	}
}

func (rt *resultTable) applyWidths() {
	for i, col := range rt.cols {
		rt.SetColumnWidth(i, col.width)
	}
}

// SetTopK rebuilds the suggestion columns. Call from the UI goroutine.
func (rt *resultTable) SetTopK(topK int) {
	rt.cols = resultColumns(topK)
	rt.applyWidths()
	rt.Refresh()
}

// SetRows replaces the table contents. Call from the UI goroutine.
func (rt *resultTable) SetRows(rows []ResultRow) {
	rt.rows = rows
	rt.Refresh()
}

func textHeight(text string, width float32) float32 {
	lbl := widget.NewLabel(text)
	lbl.Wrapping = fyne.TextWrapWord
	lbl.Resize(fyne.NewSize(width, 0))
	return lbl.MinSize().Height + 8
}

// writeResultCSV exports rows with topK label/score pairs each.
func writeResultCSV(out io.Writer, rows []ResultRow, topK int) error {
	w := csv.NewWriter(out)
	header := []string{"text"}
	for i := 1; i <= topK; i++ {
		header = append(header, fmt.Sprintf("category%d", i), fmt.Sprintf("score%d", i))
	}
	if err := w.Write(append(header, "need_review")); err != nil {
		return err
	}
	for _, r := range rows {
		rec := make([]string, 0, len(header)+1)
		rec = append(rec, r.Text)
		for i := range topK {
			sug, ok := suggestionAt(r.Suggestions, i)
			if !ok {
				rec = append(rec, "", "")
				continue
			}
			rec = append(rec, sug.Label, fmt.Sprintf("%.3f", sug.Score))
		}
		flag := "no"
		if r.NeedReview {
			flag = "yes"
		}
		if err := w.Write(append(rec, flag)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
