package newsclass

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.json"

// SplitConfig mirrors SplitOptions in a serializable form.
type SplitConfig struct {
	// Test and Val are nil when unset; an explicit 0 disables that split.
	Test    *float64 `json:"test,omitempty" toml:"test" yaml:"test,omitempty"`
	Val     *float64 `json:"val,omitempty" toml:"val" yaml:"val,omitempty"`
	Shuffle *bool    `json:"shuffle,omitempty" toml:"shuffle" yaml:"shuffle,omitempty"`
	Seed    *int64   `json:"seed,omitempty" toml:"seed" yaml:"seed,omitempty"`
}

// ModelConfig holds the recurrent classifier's hyperparameters.
type ModelConfig struct {
	EmbedSize         int     `json:"embedSize" toml:"embed_size" yaml:"embed_size"`
	HiddenSize        int     `json:"hiddenSize" toml:"hidden_size" yaml:"hidden_size"`
	LearningRate      float64 `json:"learningRate" toml:"learning_rate" yaml:"learning_rate"`
	EmbedLearningRate float64 `json:"embedLearningRate" toml:"embed_learning_rate" yaml:"embed_learning_rate"`
	// Dropout applies to the embedded tokens, LSTMDropout to the final hidden
	// state. Both act only while training.
	Dropout     *float64 `json:"dropout,omitempty" toml:"dropout" yaml:"dropout,omitempty"`
	LSTMDropout *float64 `json:"lstmDropout,omitempty" toml:"lstm_dropout" yaml:"lstm_dropout,omitempty"`
	OnnxPath    string   `json:"onnxPath,omitempty" toml:"onnx_path" yaml:"onnx_path,omitempty"`
	OrtLibrary  string   `json:"ortLibrary,omitempty" toml:"ort_library" yaml:"ort_library,omitempty"`
}

// TokenizerConfig selects the tokenizer hook.
type TokenizerConfig struct {
	Kind string `json:"kind" toml:"kind" yaml:"kind"`
	Path string `json:"path,omitempty" toml:"path" yaml:"path,omitempty"`
}

// MetricsConfig selects the metrics sink: "log", "jsonl" or "none".
type MetricsConfig struct {
	Kind string `json:"kind" toml:"kind" yaml:"kind"`
	Path string `json:"path,omitempty" toml:"path" yaml:"path,omitempty"`
}

// RunConfig aggregates every setting of a training run.
type RunConfig struct {
	DataPath        string          `json:"dataPath" toml:"data_path" yaml:"data_path"`
	OutputDir       string          `json:"outputDir" toml:"output_dir" yaml:"output_dir"`
	RunName         string          `json:"runName" toml:"run_name" yaml:"run_name"`
	Split           SplitConfig     `json:"split" toml:"split" yaml:"split"`
	BatchSize       int             `json:"batchSize" toml:"batch_size" yaml:"batch_size"`
	EvalBatchSize   int             `json:"evalBatchSize" toml:"eval_batch_size" yaml:"eval_batch_size"`
	Epochs          int             `json:"epochs" toml:"epochs" yaml:"epochs"`
	UseClassWeights *bool           `json:"useClassWeights,omitempty" toml:"use_class_weights" yaml:"use_class_weights,omitempty"`
	Overflow        string          `json:"overflow" toml:"overflow" yaml:"overflow"`
	Prefetch        int             `json:"prefetch" toml:"prefetch" yaml:"prefetch"`
	LogInterval     int             `json:"logInterval" toml:"log_interval" yaml:"log_interval"`
	EvalLogInterval int             `json:"evalLogInterval" toml:"eval_log_interval" yaml:"eval_log_interval"`
	Model           ModelConfig     `json:"model" toml:"model" yaml:"model"`
	Tokenizer       TokenizerConfig `json:"tokenizer" toml:"tokenizer" yaml:"tokenizer"`
	Metrics         MetricsConfig   `json:"metrics" toml:"metrics" yaml:"metrics"`
	Scheduler       SchedulerConfig `json:"scheduler" toml:"scheduler" yaml:"scheduler"`
}

// DefaultRunConfig returns the defaults used when no config file exists.
func DefaultRunConfig() RunConfig {
	var cfg RunConfig
	cfg.ApplyDefaults()
	return cfg
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c RunConfig) Clone() RunConfig {
	buf, _ := json.Marshal(c)
	var out RunConfig
	_ = json.Unmarshal(buf, &out)
	return out
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *RunConfig) ApplyDefaults() {
	if c.DataPath == "" {
		c.DataPath = "data/News_Category_Dataset_v2.json"
	}
	if c.OutputDir == "" {
		c.OutputDir = "model_weights"
	}
	if c.RunName == "" {
		c.RunName = "newsclass"
	}
	if c.Split.Test == nil {
		c.Split.Test = floatPtr(0.1)
	}
	if c.Split.Val == nil {
		c.Split.Val = floatPtr(0.1)
	}
	if c.Split.Shuffle == nil {
		c.Split.Shuffle = boolPtr(true)
	}
	if c.Split.Seed == nil {
		c.Split.Seed = SeedOf(123)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 300
	}
	if c.EvalBatchSize <= 0 {
		c.EvalBatchSize = 300
	}
	if c.Epochs <= 0 {
		c.Epochs = 50
	}
	if c.UseClassWeights == nil {
		c.UseClassWeights = boolPtr(true)
	}
	if c.Overflow == "" {
		c.Overflow = OverflowTruncate.String()
	}
	if c.Prefetch < 0 {
		c.Prefetch = 0
	}
	if c.LogInterval <= 0 {
		c.LogInterval = 100
	}
	if c.EvalLogInterval <= 0 {
		c.EvalLogInterval = 25
	}
	if c.Model.EmbedSize <= 0 {
		c.Model.EmbedSize = 136
	}
	if c.Model.HiddenSize <= 0 {
		c.Model.HiddenSize = 87
	}
	if c.Model.LearningRate <= 0 {
		c.Model.LearningRate = 0.001
	}
	if c.Model.EmbedLearningRate <= 0 {
		c.Model.EmbedLearningRate = 0.1
	}
	if c.Model.Dropout == nil {
		c.Model.Dropout = floatPtr(0.207)
	}
	if c.Model.LSTMDropout == nil {
		c.Model.LSTMDropout = floatPtr(0.244)
	}
	if c.Tokenizer.Kind == "" {
		c.Tokenizer.Kind = "basic_english"
	}
	if c.Metrics.Kind == "" {
		c.Metrics.Kind = "log"
	}
	c.Scheduler.applyDefaults()
}

// Validate reports settings that ApplyDefaults cannot repair.
func (c RunConfig) Validate() error {
	if _, err := ParseOverflowPolicy(c.Overflow); err != nil {
		return err
	}
	if _, err := c.SplitOptions(); err != nil {
		return err
	}
	embed, lstm := c.Model.DropoutRates()
	if embed < 0 || embed >= 1 || lstm < 0 || lstm >= 1 {
		return fmt.Errorf("dropout rates %v and %v must be in [0, 1)", embed, lstm)
	}
	if _, err := NewScheduler(c.Scheduler); err != nil {
		return err
	}
	return nil
}

// DropoutRates returns the embedding and LSTM dropout probabilities; unset
// rates are 0.
func (c ModelConfig) DropoutRates() (embed, lstm float64) {
	if c.Dropout != nil {
		embed = *c.Dropout
	}
	if c.LSTMDropout != nil {
		lstm = *c.LSTMDropout
	}
	return embed, lstm
}

// SplitOptions converts the split section for SplitIndices. Fractions are
// checked here so an invalid split fails before any data is read.
func (c RunConfig) SplitOptions() (SplitOptions, error) {
	opts := SplitOptions{
		TestFraction: derefFloat(c.Split.Test),
		ValFraction:  derefFloat(c.Split.Val),
		Shuffle:      c.Split.Shuffle == nil || *c.Split.Shuffle,
		Seed:         c.Split.Seed,
	}
	if opts.TestFraction < 0 || opts.ValFraction < 0 || opts.TestFraction+opts.ValFraction >= 1 {
		return opts, fmt.Errorf("%w: test=%v val=%v", ErrInvalidSplit, opts.TestFraction, opts.ValFraction)
	}
	return opts, nil
}

// ClassWeightsEnabled reports whether the loss is class-weighted.
func (c RunConfig) ClassWeightsEnabled() bool {
	return c.UseClassWeights == nil || *c.UseClassWeights
}

// LoadConfig loads configuration from the given path or the default config.json.
// The format follows the extension: .json, .toml, .yaml or .yml.
func LoadConfig(path string) (RunConfig, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg RunConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == defaultConfigFile {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk in the format its extension names.
func SaveConfig(path string, cfg RunConfig) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func boolPtr(v bool) *bool {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
