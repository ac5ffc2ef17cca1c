package newsclass_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/newsclass/newsclass"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"run.json": `{"runName": "exp", "split": {"test": 0.2, "val": 0.05, "seed": 7}, "batchSize": 64, "model": {"hiddenSize": 32}}`,
		"run.toml": "run_name = \"exp\"\nbatch_size = 64\n\n[split]\ntest = 0.2\nval = 0.05\nseed = 7\n\n[model]\nhidden_size = 32\n",
		"run.yaml": "run_name: exp\nbatch_size: 64\nsplit:\n  test: 0.2\n  val: 0.05\n  seed: 7\nmodel:\n  hidden_size: 32\n",
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg, err := newsclass.LoadConfig(writeFile(t, dir, name, content))
			require.NoError(t, err)
			assert.Equal(t, "exp", cfg.RunName)
			assert.Equal(t, 64, cfg.BatchSize)
			assert.Equal(t, 300, cfg.EvalBatchSize)
			assert.Equal(t, 32, cfg.Model.HiddenSize)
			assert.Equal(t, 136, cfg.Model.EmbedSize)
			require.NotNil(t, cfg.Split.Seed)
			assert.Equal(t, int64(7), *cfg.Split.Seed)

			opts, err := cfg.SplitOptions()
			require.NoError(t, err)
			assert.InDelta(t, 0.2, opts.TestFraction, 1e-12)
			assert.InDelta(t, 0.05, opts.ValFraction, 1e-12)
			assert.True(t, opts.Shuffle)
			assert.True(t, cfg.ClassWeightsEnabled())
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := newsclass.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, newsclass.DefaultRunConfig(), cfg)
	assert.Equal(t, 50, cfg.Epochs)
	assert.Equal(t, "truncate", cfg.Overflow)
	assert.Equal(t, "basic_english", cfg.Tokenizer.Kind)
	assert.Equal(t, int64(123), *cfg.Split.Seed)

	_, err = newsclass.LoadConfig("missing.toml")
	assert.Error(t, err)
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	_, err := newsclass.LoadConfig(writeFile(t, dir, "split.json", `{"split": {"test": 0.6, "val": 0.5}}`))
	assert.ErrorIs(t, err, newsclass.ErrInvalidSplit)

	_, err = newsclass.LoadConfig(writeFile(t, dir, "overflow.json", `{"overflow": "drop"}`))
	assert.ErrorContains(t, err, "validate config")

	_, err = newsclass.LoadConfig(writeFile(t, dir, "broken.yaml", "split: [1, 2"))
	assert.ErrorContains(t, err, "decode config")
}

func TestLoadConfigKeepsZeroSplit(t *testing.T) {
	dir := t.TempDir()
	cfg, err := newsclass.LoadConfig(writeFile(t, dir, "nosplit.yaml", "split:\n  test: 0\n  val: 0.2\n"))
	require.NoError(t, err)
	opts, err := cfg.SplitOptions()
	require.NoError(t, err)
	assert.Zero(t, opts.TestFraction)
	assert.InDelta(t, 0.2, opts.ValFraction, 1e-12)

	def := newsclass.DefaultRunConfig()
	opts, err = def.SplitOptions()
	require.NoError(t, err)
	assert.InDelta(t, 0.1, opts.TestFraction, 1e-12)
	assert.InDelta(t, 0.1, opts.ValFraction, 1e-12)
}

func TestLoadConfigModelRegularization(t *testing.T) {
	dir := t.TempDir()
	cfg := newsclass.DefaultRunConfig()
	embed, lstm := cfg.Model.DropoutRates()
	assert.InDelta(t, 0.207, embed, 1e-12)
	assert.InDelta(t, 0.244, lstm, 1e-12)
	assert.Equal(t, newsclass.SchedulerPlateau, cfg.Scheduler.Kind)
	require.NotNil(t, cfg.Scheduler.Patience)
	assert.Equal(t, 10, *cfg.Scheduler.Patience)

	cfg, err := newsclass.LoadConfig(writeFile(t, dir, "nodrop.json", `{"model": {"dropout": 0}, "scheduler": {"kind": "none"}}`))
	require.NoError(t, err)
	embed, _ = cfg.Model.DropoutRates()
	assert.Zero(t, embed)
	sched, err := newsclass.NewScheduler(cfg.Scheduler)
	require.NoError(t, err)
	assert.Nil(t, sched)

	_, err = newsclass.LoadConfig(writeFile(t, dir, "drop.json", `{"model": {"lstmDropout": 1.5}}`))
	assert.ErrorContains(t, err, "dropout")
	_, err = newsclass.LoadConfig(writeFile(t, dir, "sched.toml", "[scheduler]\nkind = \"cosine\"\n"))
	assert.ErrorContains(t, err, "unknown scheduler")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := newsclass.DefaultRunConfig()
	cfg.RunName = "roundtrip"
	cfg.Epochs = 3
	cfg.UseClassWeights = new(bool)
	cfg.Metrics = newsclass.MetricsConfig{Kind: "jsonl", Path: "metrics.jsonl"}

	for _, name := range []string{"out.json", "out.toml", "nested/out.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, newsclass.SaveConfig(path, cfg))
			_, err := os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))

			got, err := newsclass.LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
			assert.False(t, got.ClassWeightsEnabled())
		})
	}
}

func TestRunConfigClone(t *testing.T) {
	cfg := newsclass.DefaultRunConfig()
	clone := cfg.Clone()
	*clone.Split.Seed = 99
	assert.Equal(t, int64(123), *cfg.Split.Seed)
}
