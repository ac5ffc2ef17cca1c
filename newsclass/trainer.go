package newsclass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"time"
)

// TrainerOptions configures a Trainer. Zero values fall back to defaults:
// one epoch, log every 100 training / 25 evaluation batches, no store and a
// no-op metrics sink.
type TrainerOptions struct {
	Epochs int
	// ClassWeights are indexed by label id; nil trains unweighted.
	ClassWeights    []float64
	LogInterval     int
	EvalLogInterval int
	Store           ArtifactStore
	BestName        string
	FinalName       string
	Sink            MetricsSink
	Logger          *log.Logger
	// Params are written to the sink once, under "parameters/<key>".
	Params map[string]any
	// OnBatch is called after every training step.
	OnBatch func(epoch, batch, total int, loss float64)
	// Scheduler is stepped with the validation loss after every epoch. It is
	// ignored when the model does not implement LearningRateAdjuster.
	Scheduler LRScheduler
}

// EpochResult summarizes one epoch.
type EpochResult struct {
	Epoch       int
	TrainLoss   float64
	ValLoss     float64
	ValAccuracy float64
	// LearningRate is the rate in effect after the scheduler step; zero when
	// no scheduler ran.
	LearningRate float64
	Best         bool
	Duration     time.Duration
}

// History is the outcome of Train.
type History struct {
	Epochs      []EpochResult
	BestEpoch   int
	BestValLoss float64
}

// Evaluation holds the weighted mean loss and the accuracy in percent.
type Evaluation struct {
	Loss     float64
	Accuracy float64
	Correct  int
	Count    int
}

// Trainer runs the epoch loop over a TrainableClassifier.
type Trainer struct {
	model TrainableClassifier
	opts  TrainerOptions
}

// NewTrainer checks the class weight vector against the model.
func NewTrainer(model TrainableClassifier, opts TrainerOptions) (*Trainer, error) {
	if model == nil {
		return nil, errors.New("newsclass: model is required")
	}
	if opts.ClassWeights != nil && len(opts.ClassWeights) != model.NumClasses() {
		return nil, fmt.Errorf("newsclass: %d class weights for %d classes", len(opts.ClassWeights), model.NumClasses())
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 1
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = 100
	}
	if opts.EvalLogInterval <= 0 {
		opts.EvalLogInterval = 25
	}
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	if opts.BestName == "" {
		opts.BestName = BestCheckpointName("newsclass")
	}
	if opts.FinalName == "" {
		opts.FinalName = FinalCheckpointName("newsclass")
	}
	return &Trainer{model: model, opts: opts}, nil
}

// Train runs every epoch: a pass over train, an evaluation over val, a best
// checkpoint whenever the validation loss improves, and a final checkpoint at
// the end. Cancelling ctx stops between batches without a final checkpoint.
func (t *Trainer) Train(ctx context.Context, train, val *Loader) (History, error) {
	hist := History{BestEpoch: -1, BestValLoss: math.Inf(1)}
	t.logParams()
	for epoch := 0; epoch < t.opts.Epochs; epoch++ {
		start := time.Now()
		t.logf("Initiating training...")
		trainLoss, err := t.TrainEpoch(ctx, train, epoch)
		if err != nil {
			return hist, err
		}
		t.opts.Sink.Log("train/avg_epoch_loss", trainLoss)

		t.logf("Initiating evaluation...")
		eval, err := t.Evaluate(ctx, val)
		if err != nil {
			return hist, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		t.opts.Sink.Log("validation/epoch_val_accuracy", eval.Accuracy)
		t.opts.Sink.Log("validation/epoch_val_loss", eval.Loss)

		res := EpochResult{
			Epoch:       epoch,
			TrainLoss:   trainLoss,
			ValLoss:     eval.Loss,
			ValAccuracy: eval.Accuracy,
		}
		res.LearningRate = t.stepScheduler(eval.Loss)
		if eval.Loss < hist.BestValLoss {
			hist.BestValLoss = eval.Loss
			hist.BestEpoch = epoch
			res.Best = true
			if err := t.save(t.opts.BestName); err != nil {
				return hist, err
			}
		}
		res.Duration = time.Since(start)
		hist.Epochs = append(hist.Epochs, res)
		t.logf("Finished epoch: %d/%d | Val_loss %.4f | Val_accuracy: %3.2f%% |", epoch+1, t.opts.Epochs, eval.Loss, eval.Accuracy)
	}
	if err := t.save(t.opts.FinalName); err != nil {
		return hist, err
	}
	return hist, nil
}

// TrainEpoch performs one optimizer step per batch and returns the mean batch loss.
func (t *Trainer) TrainEpoch(ctx context.Context, loader *Loader, epoch int) (float64, error) {
	total := loader.NumBatches()
	if total == 0 {
		return 0, errors.New("newsclass: no training batches")
	}
	// Returning mid-epoch must release the loader's producer.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.opts.Sink.Log("train/n_data", float64(total))
	start := time.Now()
	var sum float64
	n := 0
	for lb := range loader.Batches(ctx) {
		if lb.Err != nil {
			return 0, fmt.Errorf("epoch %d batch %d: %w", epoch+1, n+1, lb.Err)
		}
		loss, err := t.model.TrainBatch(lb.Batch, t.opts.ClassWeights)
		if err != nil {
			return 0, fmt.Errorf("epoch %d batch %d: %w", epoch+1, n+1, err)
		}
		sum += loss
		n++
		t.opts.Sink.Log("train/avg_batch_loss", loss)
		if t.opts.OnBatch != nil {
			t.opts.OnBatch(epoch, n, total, loss)
		}
		if n%t.opts.LogInterval == 0 || n == total {
			t.logf("| %4d /%4d batches | train_loss %5.3f | Time elapsed %5.1fs |", n, total, loss, time.Since(start).Seconds())
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return sum / float64(n), nil
}

// Evaluate scores every batch of loader without training. The loss is the
// class-weighted negative log-likelihood summed over rows and divided by the
// row count.
func (t *Trainer) Evaluate(ctx context.Context, loader *Loader) (Evaluation, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var ev Evaluation
	var lossSum float64
	total := loader.NumBatches()
	start := time.Now()
	idx := 0
	for lb := range loader.Batches(ctx) {
		idx++
		if lb.Err != nil {
			return ev, fmt.Errorf("eval batch %d: %w", idx, lb.Err)
		}
		scores, err := t.model.Scores(lb.Batch.Texts)
		if err != nil {
			return ev, fmt.Errorf("eval batch %d: %w", idx, err)
		}
		if len(scores) != lb.Batch.Len() {
			return ev, fmt.Errorf("eval batch %d: %d score rows for %d labels", idx, len(scores), lb.Batch.Len())
		}
		batchLoss, _ := weightedCrossEntropy(scores, lb.Batch.Labels, t.opts.ClassWeights)
		lossSum += batchLoss
		for i, row := range scores {
			if Argmax(row) == lb.Batch.Labels[i] {
				ev.Correct++
			}
		}
		ev.Count += lb.Batch.Len()
		ev.Loss = lossSum / float64(ev.Count)
		ev.Accuracy = 100 * float64(ev.Correct) / float64(ev.Count)
		if idx%t.opts.EvalLogInterval == 0 || idx == total {
			t.logf("| %3d/%3d batches | val_loss: %.4f | val_accuracy: %3.2f%% | time elapsed: %5.1fs |", idx, total, ev.Loss, ev.Accuracy, time.Since(start).Seconds())
		}
	}
	if err := ctx.Err(); err != nil {
		return ev, err
	}
	return ev, nil
}

// stepScheduler feeds the validation loss to the scheduler and applies the
// learning rate it returns.
func (t *Trainer) stepScheduler(valLoss float64) float64 {
	adj, ok := t.model.(LearningRateAdjuster)
	if t.opts.Scheduler == nil || !ok {
		return 0
	}
	cur := adj.LearningRate()
	next := t.opts.Scheduler.Step(valLoss, cur)
	if next != cur {
		adj.SetLearningRate(next)
		t.logf("Reducing learning rate: %.3g -> %.3g", cur, next)
	}
	t.opts.Sink.Log("train/learning_rate", next)
	return next
}

func (t *Trainer) save(name string) error {
	if t.opts.Store == nil {
		return nil
	}
	if err := t.opts.Store.Save(name, func(w io.Writer) error {
		return t.model.Checkpoint(w)
	}); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	t.logf("Saved checkpoint %s", name)
	return nil
}

func (t *Trainer) logParams() {
	keys := make([]string, 0, len(t.opts.Params))
	for k := range t.opts.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		t.opts.Sink.Set("parameters/"+k, t.opts.Params[k])
	}
}

func (t *Trainer) logf(format string, args ...any) {
	if t.opts.Logger != nil {
		t.opts.Logger.Printf(format, args...)
	}
}
