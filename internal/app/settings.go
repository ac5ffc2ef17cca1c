package app

import (
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

var topKChoices = []string{"1", "2", "3", "4", "5"}

// settingsForm holds the raw values of the settings dialog.
type settingsForm struct {
	TopK, Top1, Margin string
}

func formFromConfig(cfg Config) settingsForm {
	return settingsForm{
		TopK:   strconv.Itoa(cfg.TopK),
		Top1:   fmt.Sprintf("%.2f", cfg.Thresh.Top1),
		Margin: fmt.Sprintf("%.2f", cfg.Thresh.Margin12),
	}
}

// apply overlays the parsable form values onto cfg. Unparsable fields keep
// the current value.
func (f settingsForm) apply(cfg Config) Config {
	if v, err := strconv.Atoi(strings.TrimSpace(f.TopK)); err == nil {
		cfg.TopK = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(f.Top1), 32); err == nil {
		cfg.Thresh.Top1 = float32(v)
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(f.Margin), 32); err == nil {
		cfg.Thresh.Margin12 = float32(v)
	}
	return cfg
}

func showSettings(w fyne.Window, cfg Config, onSave func(Config)) {
	cur := formFromConfig(cfg)
	topK := widget.NewSelect(topKChoices, nil)
	topK.SetSelected(cur.TopK)
	top1 := widget.NewEntry()
	top1.SetText(cur.Top1)
	margin := widget.NewEntry()
	margin.SetText(cur.Margin)

	items := []*widget.FormItem{
		widget.NewFormItem("Suggestions", topK),
		widget.NewFormItem("Review below", top1),
		widget.NewFormItem("Review margin", margin),
	}
	dialog.ShowForm("Settings", "Save", "Cancel", items, func(ok bool) {
		if ok {
			onSave(settingsForm{TopK: topK.Selected, Top1: top1.Text, Margin: margin.Text}.apply(cfg))
		}
	}, w)
}
