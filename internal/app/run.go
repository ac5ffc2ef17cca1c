package app

import (
	"io"
	"log"
	"os"
	"strings"

	fyneapp "fyne.io/fyne/v2/app"
)

// Run loads the trained model and starts the desktop UI.
func Run() error {
	cfg := defaultConfig()
	if len(os.Args) > 1 {
		cfg.RunConfigPath = os.Args[1]
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)
	svc, err := NewService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	a := fyneapp.NewWithID(fyneAppID)
	win := newMainWindow(a, svc)
	logger.SetOutput(io.MultiWriter(os.Stdout, lineWriter(win.log.Append)))
	win.win.ShowAndRun()
	return nil
}

// lineWriter forwards each non-empty written line to fn.
type lineWriter func(string)

func (f lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.ReplaceAll(string(p), "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			f(line)
		}
	}
	return len(p), nil
}
