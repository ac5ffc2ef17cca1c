package app

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2/data/binding"
)

const (
	logKeepLines = 200
	logFlushWait = 150 * time.Millisecond
)

// logView keeps the most recent log lines and pushes them into a binding at
// most once per flush window.
type logView struct {
	text binding.String
	now  func() time.Time

	mu      sync.Mutex
	lines   []string
	pending *time.Timer
}

func newLogView() *logView {
	return &logView{text: binding.NewString(), now: time.Now}
}

// Append records msg with a timestamp and schedules a refresh.
func (l *logView) Append(msg string) {
	line := fmt.Sprintf("[%s] %s", l.now().Format("15:04:05"), msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	if over := len(l.lines) - logKeepLines; over > 0 {
		l.lines = append(l.lines[:0], l.lines[over:]...)
	}
	if l.pending == nil {
		l.pending = time.AfterFunc(logFlushWait, l.flush)
	}
}

func (l *logView) flush() {
	l.mu.Lock()
	text := strings.Join(l.lines, "\n")
	l.pending = nil
	l.mu.Unlock()
	_ = l.text.Set(text)
}

func (l *logView) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}
