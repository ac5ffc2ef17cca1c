package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"yashubustudio/newsclass/model"
	"yashubustudio/newsclass/newsclass"
)

const classifyChunk = 32

// predictor is the part of newsclass.Predictor the UI needs.
type predictor interface {
	PredictAll(ctx context.Context, texts []string) ([]newsclass.Prediction, error)
}

type Service struct {
	mu     sync.RWMutex
	cfg    Config
	run    newsclass.RunConfig
	pred   predictor
	labels []string
	closer interface{ Close() error }
	logger *log.Logger
}

// NewService loads the run config named by cfg and the model it points at.
func NewService(cfg Config, logger *log.Logger) (*Service, error) {
	cfg = sanitizeConfig(cfg)
	run, err := newsclass.LoadConfig(cfg.RunConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load run config: %w", err)
	}
	loaded, err := model.LoadPredictor(run, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		run:    run,
		pred:   loaded.Predictor,
		labels: loaded.Vocab.Labels(),
		closer: loaded,
		logger: logger,
	}, nil
}

func (s *Service) Close() {
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			s.logf("close model: %v", err)
		}
	}
}

func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) UpdateConfig(cfg Config) Config {
	cfg = sanitizeConfig(cfg)
	s.mu.Lock()
	cfg.RunConfigPath = s.cfg.RunConfigPath
	s.cfg = cfg
	s.mu.Unlock()
	return cfg
}

// RunName identifies the loaded training run.
func (s *Service) RunName() string { return s.run.RunName }

// Labels returns the categories the model predicts.
func (s *Service) Labels() []string {
	return append([]string(nil), s.labels...)
}

// ClassifyAll predicts texts in chunks and reports progress after each chunk.
func (s *Service) ClassifyAll(ctx context.Context, texts []string, progress func(done, total int)) ([]ResultRow, error) {
	if s.pred == nil {
		return nil, errors.New("model is not loaded")
	}
	cfg := s.Config()
	rows := make([]ResultRow, 0, len(texts))
	for start := 0; start < len(texts); start += classifyChunk {
		end := min(start+classifyChunk, len(texts))
		preds, err := s.pred.PredictAll(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		for _, p := range preds {
			rows = append(rows, buildRow(p, cfg))
		}
		if progress != nil {
			progress(end, len(texts))
		}
	}
	return rows, nil
}

func buildRow(p newsclass.Prediction, cfg Config) ResultRow {
	sugs := rankSuggestions(p.Scores, cfg.TopK)
	return ResultRow{
		Text:        p.Text,
		Suggestions: sugs,
		NeedReview:  needsReview(rankSuggestions(p.Scores, 2), cfg.Thresh),
		Scores:      p.Scores,
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
