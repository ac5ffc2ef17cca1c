package model

import (
	"fmt"
	"io"
	"log"

	"yashubustudio/newsclass/newsclass"
)

// NewLSTMFor sizes an LSTM from a run configuration and a vocabulary.
func NewLSTMFor(cfg newsclass.RunConfig, v *newsclass.Vocabulary) (*LSTMClassifier, error) {
	var seed uint64
	embedDrop, lstmDrop := cfg.Model.DropoutRates()
	if cfg.Split.Seed != nil {
		seed = uint64(*cfg.Split.Seed)
	}
	return NewLSTM(LSTMConfig{
		VocabSize:         v.Size(),
		NumClasses:        v.NumClasses(),
		MaxLength:         v.MaxLength(),
		EmbedSize:         cfg.Model.EmbedSize,
		HiddenSize:        cfg.Model.HiddenSize,
		BatchSize:         max(cfg.BatchSize, cfg.EvalBatchSize),
		LearningRate:      cfg.Model.LearningRate,
		EmbedLearningRate: cfg.Model.EmbedLearningRate,
		Dropout:           embedDrop,
		LSTMDropout:       lstmDrop,
		Seed:              seed,
	})
}

// Loaded bundles a predictor with the resources it holds open.
type Loaded struct {
	Predictor *newsclass.Predictor
	Vocab     *newsclass.Vocabulary
	closer    io.Closer
}

// Close releases the underlying model.
func (l *Loaded) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// LoadPredictor restores the vocabulary of a finished run and pairs it with
// either the exported ONNX model or the best LSTM checkpoint.
func LoadPredictor(cfg newsclass.RunConfig, logger *log.Logger) (*Loaded, error) {
	cfg.ApplyDefaults()
	tok, err := newsclass.TokenizerByName(cfg.Tokenizer.Kind, cfg.Tokenizer.Path)
	if err != nil {
		return nil, err
	}
	policy, err := newsclass.ParseOverflowPolicy(cfg.Overflow)
	if err != nil {
		return nil, err
	}
	store, err := newsclass.NewDirStore(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	v, err := loadVocabulary(store, newsclass.VocabularyName(cfg.RunName), tok)
	if err != nil {
		return nil, err
	}

	var (
		clf    newsclass.SequenceClassifier
		closer io.Closer
	)
	if cfg.Model.OnnxPath != "" {
		ortClf, err := NewORTClassifier(ORTConfig{
			ModelPath:  cfg.Model.OnnxPath,
			OrtLibrary: cfg.Model.OrtLibrary,
			MaxLength:  v.MaxLength(),
			NumClasses: v.NumClasses(),
		})
		if err != nil {
			return nil, err
		}
		clf, closer = ortClf, ortClf
		if logger != nil {
			logger.Printf("Loaded onnx model %s", cfg.Model.OnnxPath)
		}
	} else {
		lstm, err := NewLSTMFor(cfg, v)
		if err != nil {
			return nil, err
		}
		name := newsclass.BestCheckpointName(cfg.RunName)
		if err := newsclass.RestoreCheckpoint(store, name, lstm); err != nil {
			return nil, err
		}
		clf = lstm
		if logger != nil {
			logger.Printf("Loaded checkpoint %s", store.Path(name))
		}
	}
	pred, err := newsclass.NewPredictor(v, clf, newsclass.PredictorOptions{
		Overflow: policy,
		Logger:   logger,
	})
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	return &Loaded{Predictor: pred, Vocab: v, closer: closer}, nil
}

func loadVocabulary(store newsclass.ArtifactStore, name string, tok newsclass.Tokenizer) (*newsclass.Vocabulary, error) {
	rc, err := store.Open(name)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary (train first?): %w", err)
	}
	defer rc.Close()
	return newsclass.LoadVocabulary(rc, tok)
}
