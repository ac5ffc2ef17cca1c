package newsclass

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// PredictorOptions configures a Predictor. A zero CacheTTL keeps predictions
// for ten minutes; a negative one disables the cache.
type PredictorOptions struct {
	Overflow OverflowPolicy
	CacheTTL time.Duration
	Logger   *log.Logger
}

// Predictor classifies free text with a trained model and its vocabulary.
type Predictor struct {
	vocab    *Vocabulary
	collator *Collator
	model    SequenceClassifier
	cache    *cache.Cache
	logger   *log.Logger

	mu sync.Mutex
}

// NewPredictor checks that the model and vocabulary agree on the label set.
func NewPredictor(v *Vocabulary, model SequenceClassifier, opts PredictorOptions) (*Predictor, error) {
	if v == nil {
		return nil, errors.New("newsclass: vocabulary is required")
	}
	if model == nil {
		return nil, errors.New("newsclass: model is required")
	}
	if model.NumClasses() != v.NumClasses() {
		return nil, fmt.Errorf("newsclass: model has %d classes, vocabulary has %d", model.NumClasses(), v.NumClasses())
	}
	p := &Predictor{
		vocab:    v,
		collator: NewCollator(v, opts.Overflow),
		model:    model,
		logger:   opts.Logger,
	}
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	if ttl > 0 {
		p.cache = cache.New(ttl, 2*ttl)
	}
	return p, nil
}

// Vocabulary returns the predictor's vocabulary.
func (p *Predictor) Vocabulary() *Vocabulary { return p.vocab }

// Predict classifies one text.
func (p *Predictor) Predict(ctx context.Context, text string) (Prediction, error) {
	preds, err := p.PredictAll(ctx, []string{text})
	if err != nil {
		return Prediction{}, err
	}
	return preds[0], nil
}

// PredictAll classifies texts in order. Inputs are lower-cased the way
// training records were; cached answers are reused.
func (p *Predictor) PredictAll(ctx context.Context, texts []string) ([]Prediction, error) {
	out := make([]Prediction, len(texts))
	var pending []int
	var keys []string
	for i, text := range texts {
		key := Lower(text)
		if pred, ok := p.cached(key); ok {
			pred.Text = text
			out[i] = pred
			continue
		}
		pending = append(pending, i)
		keys = append(keys, key)
	}
	if len(pending) == 0 {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := p.collator.EncodeTexts(keys)
	if err != nil {
		return nil, fmt.Errorf("encode texts: %w", err)
	}
	p.mu.Lock()
	scores, err := p.model.Scores(rows)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("score texts: %w", err)
	}
	if len(scores) != len(rows) {
		return nil, fmt.Errorf("newsclass: model returned %d rows for %d texts", len(scores), len(rows))
	}
	for j, i := range pending {
		pred, err := p.decode(scores[j])
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		p.store(keys[j], pred)
		pred.Text = texts[i]
		out[i] = pred
	}
	p.logf("Classified %d texts (%d from cache)", len(texts), len(texts)-len(pending))
	return out, nil
}

func (p *Predictor) decode(logits []float32) (Prediction, error) {
	probs := Softmax(logits)
	best := Argmax(probs)
	label, err := p.vocab.Label(best)
	if err != nil {
		return Prediction{}, err
	}
	pred := Prediction{
		Label:  label,
		Score:  probs[best],
		Scores: make(map[string]float32, len(probs)),
	}
	for id, prob := range probs {
		name, err := p.vocab.Label(id)
		if err != nil {
			return Prediction{}, err
		}
		pred.Scores[name] = prob
	}
	return pred, nil
}

func (p *Predictor) cached(key string) (Prediction, bool) {
	if p.cache == nil {
		return Prediction{}, false
	}
	v, ok := p.cache.Get(key)
	if !ok {
		return Prediction{}, false
	}
	return clonePrediction(v.(Prediction)), true
}

func (p *Predictor) store(key string, pred Prediction) {
	if p.cache == nil {
		return
	}
	p.cache.Set(key, clonePrediction(pred), cache.DefaultExpiration)
}

func clonePrediction(pred Prediction) Prediction {
	scores := make(map[string]float32, len(pred.Scores))
	for k, v := range pred.Scores {
		scores[k] = v
	}
	pred.Scores = scores
	return pred
}

func (p *Predictor) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
