package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"yashubustudio/newsclass/newsclass"
)

var inputExtensions = []string{".txt", ".csv", ".tsv", ".jsonl", ".ndjson"}

type mainWindow struct {
	win     fyne.Window
	svc     *Service
	cfg     Config
	log     *logView
	results *resultTable

	input    *widget.Entry
	summary  *widget.Label
	status   binding.String
	done     binding.Float
	progress *widget.ProgressBar
	actions  []*widget.Button
}

func newMainWindow(a fyne.App, svc *Service) *mainWindow {
	m := &mainWindow{
		win:     a.NewWindow("News Classifier"),
		svc:     svc,
		cfg:     svc.Config(),
		log:     newLogView(),
		status:  binding.NewString(),
		done:    binding.NewFloat(),
		summary: widget.NewLabel(""),
	}
	_ = m.status.Set("Ready")
	m.results = newResultTable(m.cfg.TopK)

	m.input = widget.NewMultiLineEntry()
	m.input.SetPlaceHolder("One headline and description per line")
	m.input.Wrapping = fyne.TextWrapWord

	logBox := widget.NewEntryWithData(m.log.text)
	logBox.MultiLine = true
	logBox.Wrapping = fyne.TextWrapWord
	logBox.Disable()

	m.progress = widget.NewProgressBarWithData(m.done)
	m.progress.Hide()

	m.actions = []*widget.Button{
		widget.NewButtonWithIcon("Classify", theme.MediaPlayIcon(), m.classify),
		widget.NewButtonWithIcon("Open", theme.FolderOpenIcon(), m.openInput),
		widget.NewButtonWithIcon("Export", theme.DocumentSaveIcon(), m.export),
	}
	toolbar := container.NewHBox(m.actions[0], m.actions[1], m.actions[2],
		widget.NewButtonWithIcon("", theme.SettingsIcon(), m.settings))

	footer := container.NewVBox(m.progress, widget.NewLabelWithData(m.status), m.summary)
	inputPane := container.NewBorder(toolbar, footer, nil, nil, m.input)
	side := container.NewVSplit(inputPane, container.NewBorder(
		widget.NewLabelWithStyle("Log", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		nil, nil, nil, logBox))
	side.Offset = 0.7

	body := container.NewHSplit(side, m.results.Table)
	body.Offset = 0.35
	m.win.SetContent(body)
	m.win.Resize(fyne.NewSize(1180, 760))
	m.refreshSummary()
	return m
}

// Logf writes to the log pane. Safe from any goroutine.
func (m *mainWindow) Logf(format string, args ...any) {
	m.log.Append(fmt.Sprintf(format, args...))
}

func (m *mainWindow) refreshSummary() {
	m.summary.SetText(fmt.Sprintf("%s: %d categories, top %d, review below %.2f or margin %.2f",
		m.svc.RunName(), len(m.svc.Labels()), m.cfg.TopK, m.cfg.Thresh.Top1, m.cfg.Thresh.Margin12))
}

func (m *mainWindow) setBusy(busy bool) {
	fyne.Do(func() {
		for _, b := range m.actions {
			if busy {
				b.Disable()
			} else {
				b.Enable()
			}
		}
		if busy {
			m.progress.Show()
		} else {
			m.progress.Hide()
		}
	})
}

func (m *mainWindow) showError(err error) {
	fyne.Do(func() { dialog.ShowError(err, m.win) })
}

func (m *mainWindow) classify() {
	texts, err := entryTexts(m.input.Text)
	if err != nil {
		m.showError(err)
		return
	}
	if len(texts) == 0 {
		dialog.ShowInformation("Classify", "Enter or open some text first", m.win)
		return
	}
	m.progress.Max = float64(len(texts))
	_ = m.done.Set(0)
	m.setBusy(true)
	m.Logf("Classifying %d texts", len(texts))

	go func() {
		defer m.setBusy(false)
		start := time.Now()
		rows, err := m.svc.ClassifyAll(context.Background(), texts, func(done, total int) {
			_ = m.done.Set(float64(done))
			_ = m.status.Set(fmt.Sprintf("Classifying %d/%d", done, total))
		})
		if err != nil {
			_ = m.status.Set("Classification failed")
			m.Logf("Classification failed: %v", err)
			m.showError(err)
			return
		}
		fyne.Do(func() { m.results.SetRows(rows) })
		took := time.Since(start).Seconds()
		_ = m.status.Set(fmt.Sprintf("Classified %d texts in %.1fs", len(rows), took))
		m.Logf("Classified %d texts in %.1fs", len(rows), took)
	}()
}

func (m *mainWindow) export() {
	rows, topK := m.results.rows, m.cfg.TopK
	if len(rows) == 0 {
		dialog.ShowInformation("Export", "Nothing has been classified yet", m.win)
		return
	}
	save := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		defer wc.Close()
		if err := writeResultCSV(wc, rows, topK); err != nil {
			m.showError(err)
			return
		}
		m.Logf("Exported %d rows to %s", len(rows), wc.URI().Name())
	}, m.win)
	save.SetFileName("predictions.csv")
	save.Show()
}

func (m *mainWindow) settings() {
	showSettings(m.win, m.cfg, func(cfg Config) {
		m.cfg = m.svc.UpdateConfig(cfg)
		m.results.SetTopK(m.cfg.TopK)
		m.refreshSummary()
		m.Logf("Settings saved")
	})
}

func (m *mainWindow) openInput() {
	open := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil || rc == nil {
			return
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			m.showError(err)
			return
		}
		name := filepath.Base(rc.URI().Path())
		recs, layout, err := readInputFile(name, data)
		switch {
		case err != nil:
			m.showError(fmt.Errorf("%s: %w", name, err))
		case layout != nil:
			m.pickColumn(name, *layout)
		default:
			m.setInput(name, recs)
		}
	}, m.win)
	open.SetFilter(storage.NewExtensionFileFilter(inputExtensions))
	open.Show()
}

func (m *mainWindow) pickColumn(name string, layout newsclass.ColumnLayout) {
	labels := columnLabels(layout)
	if len(labels) == 0 {
		m.showError(errors.New(name + " has no columns"))
		return
	}
	choice := widget.NewRadioGroup(labels, nil)
	choice.SetSelected(labels[0])
	dialog.ShowCustomConfirm("Text column in "+name, "Load", "Cancel", choice, func(ok bool) {
		if !ok {
			return
		}
		col := 0
		for i, l := range labels {
			if l == choice.Selected {
				col = i
			}
		}
		recs, err := recordsFromColumn(layout, col)
		if err != nil {
			m.showError(err)
			return
		}
		m.setInput(name, recs)
	}, m.win)
}

func (m *mainWindow) setInput(name string, recs []newsclass.InputRecord) {
	m.input.SetText(inputLines(recs))
	m.Logf("Loaded %d texts from %s", len(recs), name)
}
