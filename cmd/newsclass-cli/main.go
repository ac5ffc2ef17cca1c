package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v2"

	"yashubustudio/newsclass/model"
	"yashubustudio/newsclass/newsclass"
)

type cliOptions struct {
	mode       string
	configPath string
	dataPath   string
	outputDir  string
	epochs     int
	inputPath  string
	outputPath string
	inputOpts  newsclass.InputParseOptions
	progress   bool
	stdout     bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		log.Fatalf("newsclass-cli: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, opts); err != nil {
		log.Fatalf("newsclass-cli: %v", err)
	}
}

func parseFlags() (cliOptions, error) {
	var opts cliOptions
	flag.StringVar(&opts.mode, "mode", "train", "One of train, predict or stats")
	flag.StringVar(&opts.configPath, "config", "", "Path to a .json, .toml or .yaml run config (default: ./config.json)")
	flag.StringVar(&opts.dataPath, "data", "", "NDJSON dataset path (overrides the config)")
	flag.StringVar(&opts.outputDir, "output-dir", "", "Directory for checkpoints and the vocabulary (overrides the config)")
	flag.IntVar(&opts.epochs, "epochs", 0, "Number of training epochs (overrides the config)")
	flag.StringVar(&opts.inputPath, "input", "", "CSV/TSV/JSONL/text file of texts to classify (predict mode)")
	flag.StringVar(&opts.outputPath, "output", "", "CSV file for predictions (default: <output-dir>/predictions_*.csv)")
	flag.StringVar(&opts.inputOpts.IndexColumn, "input-index-column", "", "Column name or #index for the row id column")
	flag.StringVar(&opts.inputOpts.HeadlineColumn, "input-headline-column", "", "Column name or #index for the headline column")
	flag.StringVar(&opts.inputOpts.DescriptionColumn, "input-description-column", "", "Column name or #index for the description column")
	flag.StringVar(&opts.inputOpts.TextColumn, "input-text-column", "", "Column name or #index for the fallback text column")
	flag.BoolVar(&opts.progress, "progress", true, "Show a progress bar while training")
	flag.BoolVar(&opts.stdout, "stdout", false, "Print predictions to STDOUT")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -mode train|predict|stats [options]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.mode = strings.ToLower(strings.TrimSpace(opts.mode))
	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.dataPath = strings.TrimSpace(opts.dataPath)
	opts.outputDir = strings.TrimSpace(opts.outputDir)
	opts.inputPath = strings.TrimSpace(opts.inputPath)
	opts.outputPath = strings.TrimSpace(opts.outputPath)

	switch opts.mode {
	case "train", "stats":
	case "predict":
		if opts.inputPath == "" {
			flag.Usage()
			return opts, errors.New("missing required -input file")
		}
	default:
		flag.Usage()
		return opts, fmt.Errorf("unknown mode %q", opts.mode)
	}
	return opts, nil
}

func run(ctx context.Context, opts cliOptions) error {
	cfg, err := newsclass.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.dataPath != "" {
		cfg.DataPath = opts.dataPath
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.epochs > 0 {
		cfg.Epochs = opts.epochs
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	switch opts.mode {
	case "stats":
		return runStats(cfg, logger)
	case "predict":
		return runPredict(ctx, cfg, opts, logger)
	default:
		return runTrain(ctx, cfg, opts, logger)
	}
}

func runStats(cfg newsclass.RunConfig, logger *log.Logger) error {
	ds, err := newsclass.LoadDataset(cfg.DataPath)
	if err != nil {
		return err
	}
	st := ds.Stats()
	logger.Printf("Read %d lines, kept %d records", st.Lines, st.Kept)
	logger.Printf("Dropped: missing=%d headline=%d description=%d dead_zone=%d",
		st.DroppedMissing, st.DroppedHeadline, st.DroppedDescription, st.DroppedDeadZone)
	counts := ds.ClassCounts()
	weights := ds.ClassWeights()
	for _, label := range ds.Categories() {
		fmt.Printf("%-16s %7d  weight=%.4f\n", label, counts[label], weights[label])
	}
	return nil
}

func runTrain(ctx context.Context, cfg newsclass.RunConfig, opts cliOptions, logger *log.Logger) error {
	tok, err := newsclass.TokenizerByName(cfg.Tokenizer.Kind, cfg.Tokenizer.Path)
	if err != nil {
		return err
	}
	splitOpts, err := cfg.SplitOptions()
	if err != nil {
		return err
	}
	policy, err := newsclass.ParseOverflowPolicy(cfg.Overflow)
	if err != nil {
		return err
	}

	logger.Printf("Loading dataset %s", cfg.DataPath)
	ds, err := newsclass.LoadDataset(cfg.DataPath)
	if err != nil {
		return err
	}
	st := ds.Stats()
	logger.Printf("Kept %d of %d records in %d categories", st.Kept, st.Lines, len(ds.Categories()))

	vocab, err := newsclass.BuildVocabulary(ds, tok)
	if err != nil {
		return fmt.Errorf("build vocabulary: %w", err)
	}
	logger.Printf("Vocabulary size %d, max length %d", vocab.Size(), vocab.MaxLength())

	store, err := newsclass.NewDirStore(cfg.OutputDir)
	if err != nil {
		return err
	}
	if err := store.Save(newsclass.VocabularyName(cfg.RunName), vocab.Save); err != nil {
		return fmt.Errorf("save vocabulary: %w", err)
	}

	split, err := newsclass.SplitIndices(ds.Len(), splitOpts)
	if err != nil {
		return err
	}
	logger.Printf("Split: train=%d val=%d test=%d", len(split.Train), len(split.Val), len(split.Test))

	collator := newsclass.NewCollator(vocab, policy)
	trainLoader, err := newsclass.NewLoader(ds, split.Train, collator, newsclass.LoaderOptions{
		BatchSize: cfg.BatchSize,
		Shuffle:   true,
		Seed:      cfg.Split.Seed,
		Prefetch:  cfg.Prefetch,
	})
	if err != nil {
		return err
	}
	evalOpts := newsclass.LoaderOptions{BatchSize: cfg.EvalBatchSize, Prefetch: cfg.Prefetch}
	valLoader, err := newsclass.NewLoader(ds, split.Val, collator, evalOpts)
	if err != nil {
		return err
	}
	testLoader, err := newsclass.NewLoader(ds, split.Test, collator, evalOpts)
	if err != nil {
		return err
	}

	lstm, err := model.NewLSTMFor(cfg, vocab)
	if err != nil {
		return err
	}
	sink, err := newsclass.NewMetricsSink(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	sched, err := newsclass.NewScheduler(cfg.Scheduler)
	if err != nil {
		return err
	}

	var weights []float64
	if cfg.ClassWeightsEnabled() {
		weights = newsclass.ClassWeightVector(ds, vocab)
	}
	mc := lstm.Config()
	trainerOpts := newsclass.TrainerOptions{
		Epochs:          cfg.Epochs,
		ClassWeights:    weights,
		LogInterval:     cfg.LogInterval,
		EvalLogInterval: cfg.EvalLogInterval,
		Store:           store,
		BestName:        newsclass.BestCheckpointName(cfg.RunName),
		FinalName:       newsclass.FinalCheckpointName(cfg.RunName),
		Sink:            sink,
		Logger:          logger,
		Scheduler:       sched,
		Params: map[string]any{
			"Number of hidden layers": 1,
			"Size of hidden layer":    mc.HiddenSize,
			"Embedding size":          mc.EmbedSize,
			"Vocabulary size":         vocab.Size(),
			"Batch size":              cfg.BatchSize,
			"Epochs":                  cfg.Epochs,
			"Learning rate":           mc.LearningRate,
			"Optimizer":               "Adam",
			"Class weights":           weights != nil,
			"Max length":              vocab.MaxLength(),
			"Dropout":                 mc.Dropout,
			"Dropout (lstm)":          mc.LSTMDropout,
			"Scheduler":               cfg.Scheduler.Kind,
		},
	}
	if opts.progress {
		var bar *progressbar.ProgressBar
		trainerOpts.OnBatch = func(epoch, batch, total int, loss float64) {
			if batch == 1 {
				bar = progressbar.New(total)
			}
			bar.Add(1)
			if batch == total {
				bar.Finish()
				fmt.Println()
			}
		}
	}
	trainer, err := newsclass.NewTrainer(lstm, trainerOpts)
	if err != nil {
		return err
	}

	start := time.Now()
	hist, err := trainer.Train(ctx, trainLoader, valLoader)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	logger.Printf("Training finished in %s; best epoch %d (val_loss %.4f)", time.Since(start).Round(time.Second), hist.BestEpoch+1, hist.BestValLoss)

	if testLoader.Len() == 0 {
		return nil
	}
	if err := newsclass.RestoreCheckpoint(store, trainerOpts.BestName, lstm); err != nil {
		return err
	}
	eval, err := trainer.Evaluate(ctx, testLoader)
	if err != nil {
		return fmt.Errorf("test: %w", err)
	}
	sink.Log("test/loss", eval.Loss)
	sink.Log("test/accuracy", eval.Accuracy)
	logger.Printf("Test: loss %.4f | accuracy %3.2f%% (%d/%d)", eval.Loss, eval.Accuracy, eval.Correct, eval.Count)
	return nil
}

func runPredict(ctx context.Context, cfg newsclass.RunConfig, opts cliOptions, logger *log.Logger) error {
	loaded, err := model.LoadPredictor(cfg, logger)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer loaded.Close()

	records, err := newsclass.ParseInputRecordsWithOptions(opts.inputPath, opts.inputOpts)
	if err != nil {
		return fmt.Errorf("read input records: %w", err)
	}
	if len(records) == 0 {
		return errors.New("input file does not contain any texts")
	}
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}
	preds, err := loaded.Predictor.PredictAll(ctx, texts)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	outputPath, err := resolveOutputPath(opts.outputPath, cfg.OutputDir)
	if err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	defer f.Close()
	if err := writePredictionsCSV(f, records, preds); err != nil {
		return err
	}
	logger.Printf("Saved %d predictions to %s", len(preds), outputPath)
	if opts.stdout {
		printSummary(os.Stdout, records, preds)
	}
	return nil
}

func resolveOutputPath(path, dir string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("predictions_%s.csv", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

func writePredictionsCSV(w io.Writer, records []newsclass.InputRecord, preds []newsclass.Prediction) error {
	if len(records) != len(preds) {
		return fmt.Errorf("records/predictions length mismatch: %d vs %d", len(records), len(preds))
	}
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"index", "headline", "short_description", "category", "score"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		desc := rec.Description
		if desc == "" && rec.Headline == "" {
			desc = rec.Text
		}
		row := []string{rec.Index, rec.Headline, desc, preds[i].Label, fmt.Sprintf("%.3f", preds[i].Score)}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush result: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, records []newsclass.InputRecord, preds []newsclass.Prediction) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "==== Predictions ====")
	for i, rec := range records {
		fmt.Fprintf(w, "%d. %s\n", i+1, summarizeRecord(rec))
		for _, s := range topScores(preds[i].Scores, 3) {
			fmt.Fprintf(w, "      - %s (p=%.3f)\n", s.label, s.score)
		}
	}
}

type labelScore struct {
	label string
	score float32
}

func topScores(scores map[string]float32, limit int) []labelScore {
	out := make([]labelScore, 0, len(scores))
	for label, score := range scores {
		out = append(out, labelScore{label, score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score == out[j].score {
			return out[i].label < out[j].label
		}
		return out[i].score > out[j].score
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func summarizeRecord(rec newsclass.InputRecord) string {
	var parts []string
	if strings.TrimSpace(rec.Index) != "" {
		parts = append(parts, "#"+strings.TrimSpace(rec.Index))
	}
	text := strings.TrimSpace(rec.Headline)
	if text == "" {
		text = strings.TrimSpace(rec.Text)
	}
	runeText := []rune(text)
	if len(runeText) > 60 {
		text = string(runeText[:60]) + "…"
	}
	if text == "" {
		text = "(empty text)"
	}
	return strings.Join(append(parts, text), " ")
}
