package newsclass_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/newsclass/newsclass"
)

// fakeModel predicts the label encoded in the first token id of a row with a
// confidence that depends on how many training steps it has taken.
type fakeModel struct {
	classes     int
	confidences []float32
	scoreFn     func(row []int) []float32
	steps       int
	failTrain   error
	failScores  error
}

func (m *fakeModel) NumClasses() int { return m.classes }

func (m *fakeModel) confidence() float32 {
	if m.steps == 0 || len(m.confidences) == 0 {
		return 0
	}
	return m.confidences[min(m.steps, len(m.confidences))-1]
}

func (m *fakeModel) Scores(texts [][]int) ([][]float32, error) {
	if m.failScores != nil {
		return nil, m.failScores
	}
	out := make([][]float32, len(texts))
	for i, row := range texts {
		if m.scoreFn != nil {
			out[i] = m.scoreFn(row)
			continue
		}
		s := make([]float32, m.classes)
		s[(row[0]-2)%m.classes] = m.confidence()
		out[i] = s
	}
	return out, nil
}

func (m *fakeModel) TrainBatch(b newsclass.Batch, _ []float64) (float64, error) {
	if m.failTrain != nil {
		return 0, m.failTrain
	}
	m.steps++
	return 1 / float64(m.steps), nil
}

func (m *fakeModel) Checkpoint(w io.Writer) error {
	_, err := fmt.Fprintf(w, "conf=%v", m.confidence())
	return err
}

func (m *fakeModel) Restore(r io.Reader) error {
	_, err := io.ReadAll(r)
	return err
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore { return &memStore{files: make(map[string][]byte)} }

func (s *memStore) Save(name string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = buf.Bytes()
	return nil
}

func (s *memStore) Open(name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("no artifact %s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type recordingSink struct {
	mu     sync.Mutex
	logs   map[string][]float64
	params map[string]any
}

func newRecordingSink() *recordingSink {
	return &recordingSink{logs: make(map[string][]float64), params: make(map[string]any)}
}

func (s *recordingSink) Log(name string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[name] = append(s.logs[name], v)
}

func (s *recordingSink) Set(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[name] = v
}

func (s *recordingSink) Close() error { return nil }

// trainFixture builds a two-class corpus where token "a" (id 2) is class A
// (label 0) and token "b" (id 3) is class B (label 1).
func trainFixture(t *testing.T) (train, val *newsclass.Loader) {
	t.Helper()
	ds := toyDataset(t, [2]string{"A", "a"}, [2]string{"B", "b"}, [2]string{"A", "a"}, [2]string{"B", "b"})
	c := newsclass.NewCollator(toyVocab(t, ds), newsclass.OverflowTruncate)
	train, err := newsclass.NewLoader(ds, []int{0, 1}, c, newsclass.LoaderOptions{BatchSize: 2})
	require.NoError(t, err)
	val, err = newsclass.NewLoader(ds, []int{2, 3}, c, newsclass.LoaderOptions{BatchSize: 1})
	require.NoError(t, err)
	return train, val
}

func TestTrainerKeepsBestCheckpoint(t *testing.T) {
	train, val := trainFixture(t)
	model := &fakeModel{classes: 2, confidences: []float32{1, 3, 2}}
	store := newMemStore()
	sink := newRecordingSink()
	var batches int

	tr, err := newsclass.NewTrainer(model, newsclass.TrainerOptions{
		Epochs:    3,
		Store:     store,
		BestName:  "best",
		FinalName: "final",
		Sink:      sink,
		Params:    map[string]any{"epochs": 3},
		OnBatch:   func(epoch, batch, total int, loss float64) { batches++ },
	})
	require.NoError(t, err)

	hist, err := tr.Train(context.Background(), train, val)
	require.NoError(t, err)
	require.Len(t, hist.Epochs, 3)
	assert.Equal(t, 1, hist.BestEpoch)
	assert.Equal(t, []bool{true, true, false}, []bool{hist.Epochs[0].Best, hist.Epochs[1].Best, hist.Epochs[2].Best})
	assert.InDelta(t, math.Log1p(math.Exp(-3)), hist.BestValLoss, 1e-6)
	for _, ep := range hist.Epochs {
		assert.Equal(t, 100.0, ep.ValAccuracy)
	}
	assert.Greater(t, hist.Epochs[0].ValLoss, hist.Epochs[2].ValLoss)
	assert.Greater(t, hist.Epochs[2].ValLoss, hist.Epochs[1].ValLoss)

	assert.Equal(t, "conf=3", string(store.files["best"]))
	assert.Equal(t, "conf=2", string(store.files["final"]))

	assert.Equal(t, 3, batches)
	assert.Len(t, sink.logs["train/avg_batch_loss"], 3)
	assert.Len(t, sink.logs["train/avg_epoch_loss"], 3)
	assert.Len(t, sink.logs["validation/epoch_val_loss"], 3)
	assert.Equal(t, []float64{100, 100, 100}, sink.logs["validation/epoch_val_accuracy"])
	assert.Equal(t, 3, sink.params["parameters/epochs"])
}

func TestTrainerEvaluateWeightedLoss(t *testing.T) {
	_, val := trainFixture(t)
	model := &fakeModel{classes: 2, scoreFn: func([]int) []float32 { return []float32{0, 0} }}
	tr, err := newsclass.NewTrainer(model, newsclass.TrainerOptions{ClassWeights: []float64{2, 1}})
	require.NoError(t, err)

	ev, err := tr.Evaluate(context.Background(), val)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Count)
	// row A: weight 2, p=0.5; row B: weight 1, p=0.5, predicted as A
	assert.InDelta(t, 1.5*math.Ln2, ev.Loss, 1e-6)
	assert.Equal(t, 1, ev.Correct)
	assert.Equal(t, 50.0, ev.Accuracy)
}

func TestTrainerCancel(t *testing.T) {
	train, val := trainFixture(t)
	store := newMemStore()
	tr, err := newsclass.NewTrainer(&fakeModel{classes: 2}, newsclass.TrainerOptions{Epochs: 2, Store: store})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Train(ctx, train, val)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.files)
}

func TestTrainerValidation(t *testing.T) {
	_, err := newsclass.NewTrainer(&fakeModel{classes: 3}, newsclass.TrainerOptions{ClassWeights: []float64{1, 1}})
	assert.Error(t, err)
	_, err = newsclass.NewTrainer(nil, newsclass.TrainerOptions{})
	assert.Error(t, err)

	ds := toyDataset(t, [2]string{"A", "a"})
	empty, err := newsclass.NewLoader(ds, nil, newsclass.NewCollator(toyVocab(t, ds), newsclass.OverflowTruncate), newsclass.LoaderOptions{BatchSize: 1})
	require.NoError(t, err)
	tr, err := newsclass.NewTrainer(&fakeModel{classes: 1}, newsclass.TrainerOptions{})
	require.NoError(t, err)
	_, err = tr.TrainEpoch(context.Background(), empty, 0)
	assert.Error(t, err)
}

func TestTrainerReleasesLoaderOnError(t *testing.T) {
	rows := make([][2]string, 40)
	for i := range rows {
		rows[i] = [2]string{"A", "a"}
	}
	ds := toyDataset(t, rows...)
	c := newsclass.NewCollator(toyVocab(t, ds), newsclass.OverflowTruncate)
	indices := make([]int, len(rows))
	for i := range indices {
		indices[i] = i
	}
	boom := errors.New("boom")
	model := &fakeModel{classes: 1, failTrain: boom, failScores: boom}
	tr, err := newsclass.NewTrainer(model, newsclass.TrainerOptions{})
	require.NoError(t, err)

	for _, prefetch := range []int{0, 4} {
		t.Run(fmt.Sprintf("prefetch=%d", prefetch), func(t *testing.T) {
			loader, err := newsclass.NewLoader(ds, indices, c, newsclass.LoaderOptions{BatchSize: 1, Prefetch: prefetch})
			require.NoError(t, err)
			before := runtime.NumGoroutine()
			for range 20 {
				_, err := tr.TrainEpoch(context.Background(), loader, 0)
				require.ErrorIs(t, err, boom)
				_, err = tr.Evaluate(context.Background(), loader)
				require.ErrorIs(t, err, boom)
			}
			assert.Eventually(t, func() bool {
				return runtime.NumGoroutine() <= before
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

// tunableModel records the learning rates the trainer applies.
type tunableModel struct {
	*fakeModel
	lr  float64
	set []float64
}

func (m *tunableModel) LearningRate() float64 { return m.lr }

func (m *tunableModel) SetLearningRate(lr float64) {
	m.lr = lr
	m.set = append(m.set, lr)
}

func TestTrainerStepsScheduler(t *testing.T) {
	train, val := trainFixture(t)
	// Constant scores keep the validation loss flat.
	model := &tunableModel{
		fakeModel: &fakeModel{classes: 2, scoreFn: func([]int) []float32 { return []float32{0, 0} }},
		lr:        0.01,
	}
	sched, err := newsclass.NewPlateauScheduler(newsclass.PlateauOptions{Factor: 0.5, Patience: 1})
	require.NoError(t, err)
	sink := newRecordingSink()
	tr, err := newsclass.NewTrainer(model, newsclass.TrainerOptions{Epochs: 4, Scheduler: sched, Sink: sink})
	require.NoError(t, err)

	hist, err := tr.Train(context.Background(), train, val)
	require.NoError(t, err)
	require.Len(t, hist.Epochs, 4)
	assert.Equal(t, []float64{0.005}, model.set)
	assert.InDeltaSlice(t, []float64{0.01, 0.01, 0.005, 0.005}, sink.logs["train/learning_rate"], 1e-12)
	assert.InDelta(t, 0.005, hist.Epochs[3].LearningRate, 1e-12)

	// Models without an adjustable rate ignore the scheduler.
	plain := &fakeModel{classes: 2}
	tr, err = newsclass.NewTrainer(plain, newsclass.TrainerOptions{Scheduler: sched})
	require.NoError(t, err)
	hist, err = tr.Train(context.Background(), train, val)
	require.NoError(t, err)
	assert.Zero(t, hist.Epochs[0].LearningRate)
}
