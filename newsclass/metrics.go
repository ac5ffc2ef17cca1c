package newsclass

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MetricsSink receives named scalar metrics (Log, appended per step) and run
// parameters (Set, written once). Implementations must tolerate concurrent use.
type MetricsSink interface {
	Log(name string, value float64)
	Set(name string, value any)
	Close() error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Log(string, float64) {}
func (NopSink) Set(string, any)     {}
func (NopSink) Close() error        { return nil }

// LoggerSink prints metrics through a *log.Logger.
type LoggerSink struct {
	Logger *log.Logger
}

func (s LoggerSink) Log(name string, value float64) {
	if s.Logger != nil {
		s.Logger.Printf("metric %s=%.6f", name, value)
	}
}

func (s LoggerSink) Set(name string, value any) {
	if s.Logger != nil {
		s.Logger.Printf("param %s=%v", name, value)
	}
}

func (LoggerSink) Close() error { return nil }

// MetricEvent is one line of a JSONLSink file.
type MetricEvent struct {
	Time  time.Time `json:"time"`
	Kind  string    `json:"kind"`
	Name  string    `json:"name"`
	Step  int       `json:"step"`
	Value any       `json:"value"`
}

// JSONLSink appends one JSON object per metric to a file. Steps are counted
// per metric name.
type JSONLSink struct {
	mu    sync.Mutex
	f     *os.File
	enc   *json.Encoder
	steps map[string]int
	err   error
}

// NewJSONLSink creates (or truncates) path.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create metrics dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create metrics file: %w", err)
	}
	return &JSONLSink{f: f, enc: json.NewEncoder(f), steps: make(map[string]int)}, nil
}

func (s *JSONLSink) Log(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.steps[name]
	s.steps[name] = step + 1
	s.write(MetricEvent{Time: time.Now(), Kind: "metric", Name: name, Step: step, Value: value})
}

func (s *JSONLSink) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(MetricEvent{Time: time.Now(), Kind: "param", Name: name, Value: value})
}

func (s *JSONLSink) write(ev MetricEvent) {
	if s.err != nil || s.enc == nil {
		return
	}
	s.err = s.enc.Encode(ev)
}

// Close flushes the file and returns the first write error, if any.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return s.err
	}
	closeErr := s.f.Close()
	s.f = nil
	s.enc = nil
	if s.err != nil {
		return fmt.Errorf("write metrics: %w", s.err)
	}
	return closeErr
}

// NewMetricsSink builds the sink a MetricsConfig names.
func NewMetricsSink(cfg MetricsConfig, logger *log.Logger) (MetricsSink, error) {
	switch cfg.Kind {
	case "", "log":
		return LoggerSink{Logger: logger}, nil
	case "none":
		return NopSink{}, nil
	case "jsonl":
		if cfg.Path == "" {
			return nil, fmt.Errorf("jsonl metrics sink requires a path")
		}
		return NewJSONLSink(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown metrics sink %q", cfg.Kind)
	}
}
