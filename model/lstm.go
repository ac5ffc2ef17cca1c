package model

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/exp/rand"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"yashubustudio/newsclass/newsclass"
)

// LSTMConfig sizes an LSTMClassifier. BatchSize fixes the row count of the
// compiled graph; shorter batches are padded with rows that carry no weight.
type LSTMConfig struct {
	VocabSize         int
	NumClasses        int
	MaxLength         int
	EmbedSize         int
	HiddenSize        int
	BatchSize         int
	LearningRate      float64
	EmbedLearningRate float64
	// Dropout drops embedded tokens and LSTMDropout drops units of the final
	// hidden state, during TrainBatch only. Zero disables either.
	Dropout     float64
	LSTMDropout float64
	Seed        uint64
}

// ApplyDefaults fills unset hyperparameters.
func (c *LSTMConfig) ApplyDefaults() {
	if c.EmbedSize <= 0 {
		c.EmbedSize = 136
	}
	if c.HiddenSize <= 0 {
		c.HiddenSize = 87
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 300
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.001
	}
	if c.EmbedLearningRate <= 0 {
		c.EmbedLearningRate = 0.1
	}
}

func (c LSTMConfig) validate() error {
	if c.VocabSize < 2 {
		return fmt.Errorf("model: vocabulary size %d is too small", c.VocabSize)
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("model: invalid class count %d", c.NumClasses)
	}
	if c.MaxLength <= 0 {
		return fmt.Errorf("model: invalid max length %d", c.MaxLength)
	}
	for _, p := range []float64{c.Dropout, c.LSTMDropout} {
		if p < 0 || p >= 1 {
			return fmt.Errorf("model: dropout %v must be in [0, 1)", p)
		}
	}
	return nil
}

type gate struct {
	wx, wh, b *gorgonia.Node
}

// LSTMClassifier is a single-layer LSTM over token embeddings followed by a
// linear layer on the last hidden state. The embedding table lives outside the
// graph and receives sparse SGD updates; id 0 is padding and stays zero.
type LSTMClassifier struct {
	cfg LSTMConfig

	embedding []float32

	g          *gorgonia.ExprGraph
	xs         []*gorgonia.Node
	xGrads     []*gorgonia.Node
	target     *gorgonia.Node
	training   *gorgonia.Node
	logits     *gorgonia.Node
	cost       *gorgonia.Node
	learnables []*gorgonia.Node
	vm         gorgonia.VM
	solver     gorgonia.Solver

	mu sync.Mutex
}

// NewLSTM builds the training graph.
func NewLSTM(cfg LSTMConfig) (*LSTMClassifier, error) {
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &LSTMClassifier{cfg: cfg}
	m.initEmbedding()
	if err := m.build(); err != nil {
		return nil, fmt.Errorf("build lstm graph: %w", err)
	}
	m.vm = gorgonia.NewTapeMachine(m.g, gorgonia.BindDualValues(m.learnables...))
	m.solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(cfg.LearningRate))
	return m, nil
}

func (m *LSTMClassifier) initEmbedding() {
	rng := rand.New(rand.NewSource(m.cfg.Seed))
	e := m.cfg.EmbedSize
	m.embedding = make([]float32, m.cfg.VocabSize*e)
	for i := e; i < len(m.embedding); i++ {
		m.embedding[i] = float32(rng.NormFloat64())
	}
}

// builder collects the first graph construction error.
type builder struct {
	err error
}

func (b *builder) do(fn func() (*gorgonia.Node, error)) *gorgonia.Node {
	if b.err != nil {
		return nil
	}
	n, err := fn()
	if err != nil {
		b.err = err
	}
	return n
}

func (b *builder) mul(x, y *gorgonia.Node) *gorgonia.Node {
	return b.do(func() (*gorgonia.Node, error) { return gorgonia.Mul(x, y) })
}

func (b *builder) add(x, y *gorgonia.Node) *gorgonia.Node {
	return b.do(func() (*gorgonia.Node, error) { return gorgonia.Add(x, y) })
}

func (b *builder) bias(x, bias *gorgonia.Node) *gorgonia.Node {
	return b.do(func() (*gorgonia.Node, error) { return gorgonia.BroadcastAdd(x, bias, nil, []byte{0}) })
}

func (b *builder) sub(x, y *gorgonia.Node) *gorgonia.Node {
	return b.do(func() (*gorgonia.Node, error) { return gorgonia.Sub(x, y) })
}

func (b *builder) hadamard(x, y *gorgonia.Node) *gorgonia.Node {
	return b.do(func() (*gorgonia.Node, error) { return gorgonia.HadamardProd(x, y) })
}

func (b *builder) sigmoid(x *gorgonia.Node) *gorgonia.Node {
	return b.do(func() (*gorgonia.Node, error) { return gorgonia.Sigmoid(x) })
}

func (b *builder) tanh(x *gorgonia.Node) *gorgonia.Node {
	return b.do(func() (*gorgonia.Node, error) { return gorgonia.Tanh(x) })
}

func (b *builder) gate(gt gate, x, h *gorgonia.Node) *gorgonia.Node {
	return b.bias(b.add(b.mul(x, gt.wx), b.mul(h, gt.wh)), gt.b)
}

// dropout returns x + on*(Dropout(x)-x): the dropped-out x while the scalar
// on is 1 and x itself while it is 0.
func (b *builder) dropout(x, on *gorgonia.Node, p float64) *gorgonia.Node {
	if p <= 0 {
		return x
	}
	dropped := b.do(func() (*gorgonia.Node, error) { return gorgonia.Dropout(x, p) })
	return b.add(x, b.mul(on, b.sub(dropped, x)))
}

func (m *LSTMClassifier) newGate(name string) gate {
	e, h := m.cfg.EmbedSize, m.cfg.HiddenSize
	return gate{
		wx: gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(e, h), gorgonia.WithName("wx_"+name), gorgonia.WithInit(gorgonia.GlorotU(1.0))),
		wh: gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(h, h), gorgonia.WithName("wh_"+name), gorgonia.WithInit(gorgonia.GlorotU(1.0))),
		b:  gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(1, h), gorgonia.WithName("b_"+name), gorgonia.WithInit(gorgonia.Zeroes())),
	}
}

func (m *LSTMClassifier) build() error {
	cfg := m.cfg
	m.g = gorgonia.NewGraph()
	bs, e, h, c := cfg.BatchSize, cfg.EmbedSize, cfg.HiddenSize, cfg.NumClasses

	in, forget, cell, out := m.newGate("i"), m.newGate("f"), m.newGate("g"), m.newGate("o")
	wOut := gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(h, c), gorgonia.WithName("w_out"), gorgonia.WithInit(gorgonia.GlorotU(1.0)))
	bOut := gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(1, c), gorgonia.WithName("b_out"), gorgonia.WithInit(gorgonia.Zeroes()))
	for _, gt := range []gate{in, forget, cell, out} {
		m.learnables = append(m.learnables, gt.wx, gt.wh, gt.b)
	}
	m.learnables = append(m.learnables, wOut, bOut)

	b := &builder{}
	m.training = gorgonia.NewScalar(m.g, tensor.Float32, gorgonia.WithName("training"), gorgonia.WithValue(float32(0)))
	hPrev := gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(bs, h), gorgonia.WithName("h0"), gorgonia.WithInit(gorgonia.Zeroes()))
	cPrev := gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(bs, h), gorgonia.WithName("c0"), gorgonia.WithInit(gorgonia.Zeroes()))
	m.xs = make([]*gorgonia.Node, cfg.MaxLength)
	for t := range m.xs {
		x := gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(bs, e), gorgonia.WithName(fmt.Sprintf("x_%d", t)), gorgonia.WithInit(gorgonia.Zeroes()))
		m.xs[t] = x
		x = b.dropout(x, m.training, cfg.Dropout)
		i := b.sigmoid(b.gate(in, x, hPrev))
		f := b.sigmoid(b.gate(forget, x, hPrev))
		g := b.tanh(b.gate(cell, x, hPrev))
		o := b.sigmoid(b.gate(out, x, hPrev))
		cPrev = b.add(b.hadamard(f, cPrev), b.hadamard(i, g))
		hPrev = b.hadamard(o, b.tanh(cPrev))
	}
	m.logits = b.bias(b.mul(b.dropout(hPrev, m.training, cfg.LSTMDropout), wOut), bOut)

	// target holds one-hot rows scaled by class weight over the batch weight
	// sum, so the cost is the weighted mean negative log-likelihood.
	m.target = gorgonia.NewMatrix(m.g, tensor.Float32, gorgonia.WithShape(bs, c), gorgonia.WithName("target"), gorgonia.WithInit(gorgonia.Zeroes()))
	probs := b.do(func() (*gorgonia.Node, error) { return gorgonia.SoftMax(m.logits, 1) })
	eps := gorgonia.NewConstant(float32(1e-7))
	shifted := b.add(probs, eps)
	logp := b.do(func() (*gorgonia.Node, error) { return gorgonia.Log(shifted) })
	picked := b.hadamard(logp, m.target)
	weighted := b.do(func() (*gorgonia.Node, error) { return gorgonia.Sum(picked) })
	m.cost = b.do(func() (*gorgonia.Node, error) { return gorgonia.Neg(weighted) })
	if b.err != nil {
		return b.err
	}

	wrt := append(append([]*gorgonia.Node{}, m.learnables...), m.xs...)
	grads, err := gorgonia.Grad(m.cost, wrt...)
	if err != nil {
		return fmt.Errorf("differentiate: %w", err)
	}
	m.xGrads = grads[len(m.learnables):]
	return nil
}

// Config returns the model's configuration with defaults applied.
func (m *LSTMClassifier) Config() LSTMConfig { return m.cfg }

// LearningRate is the current Adam learning rate.
func (m *LSTMClassifier) LearningRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.LearningRate
}

// SetLearningRate switches Adam to lr. The solver is recreated, so its moment
// estimates start over. Non-positive rates are ignored.
func (m *LSTMClassifier) SetLearningRate(lr float64) {
	if lr <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.LearningRate = lr
	m.solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(lr))
}

func (m *LSTMClassifier) setTraining(on bool) error {
	var v float32
	if on {
		v = 1
	}
	if err := gorgonia.Let(m.training, gorgonia.NewF32(v)); err != nil {
		return fmt.Errorf("set training mode: %w", err)
	}
	return nil
}

// NumClasses returns the width of each score row.
func (m *LSTMClassifier) NumClasses() int { return m.cfg.NumClasses }

// Scores returns logits for every row, running the graph in chunks of BatchSize.
func (m *LSTMClassifier) Scores(texts [][]int) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setTraining(false); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	c := m.cfg.NumClasses
	for start := 0; start < len(texts); start += m.cfg.BatchSize {
		end := min(start+m.cfg.BatchSize, len(texts))
		chunk := texts[start:end]
		if err := m.fill(chunk, nil, nil); err != nil {
			return nil, fmt.Errorf("rows %d-%d: %w", start, end-1, err)
		}
		if err := m.run(); err != nil {
			return nil, err
		}
		data := m.logits.Value().Data().([]float32)
		for i := range chunk {
			row := make([]float32, c)
			copy(row, data[i*c:(i+1)*c])
			out = append(out, row)
		}
	}
	return out, nil
}

// TrainBatch runs one forward and backward pass, steps Adam over the dense
// parameters and applies SGD to the embedding rows the batch touched.
func (m *LSTMClassifier) TrainBatch(batch newsclass.Batch, classWeights []float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := batch.Len()
	if n == 0 {
		return 0, errors.New("model: empty batch")
	}
	if n > m.cfg.BatchSize {
		return 0, fmt.Errorf("model: batch of %d exceeds graph size %d", n, m.cfg.BatchSize)
	}
	if classWeights != nil && len(classWeights) != m.cfg.NumClasses {
		return 0, fmt.Errorf("model: %d class weights for %d classes", len(classWeights), m.cfg.NumClasses)
	}
	if err := m.fill(batch.Texts, batch.Labels, classWeights); err != nil {
		return 0, err
	}
	if err := m.setTraining(true); err != nil {
		return 0, err
	}
	if err := m.run(); err != nil {
		return 0, err
	}
	loss := m.cost.Value().Data().(float32)
	m.updateEmbedding(batch.Texts)
	if err := m.solver.Step(gorgonia.NodesToValueGrads(m.learnables)); err != nil {
		return 0, fmt.Errorf("solver step: %w", err)
	}
	return float64(loss), nil
}

func (m *LSTMClassifier) run() error {
	m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return fmt.Errorf("run lstm graph: %w", err)
	}
	return nil
}

// fill copies embeddings of rows into the per-step inputs and writes the loss
// targets. Unused rows are zero; with nil labels every target is zero.
func (m *LSTMClassifier) fill(rows [][]int, labels []int, weights []float64) error {
	e, c := m.cfg.EmbedSize, m.cfg.NumClasses
	for r, row := range rows {
		if len(row) != m.cfg.MaxLength {
			return fmt.Errorf("model: row %d has length %d, want %d", r, len(row), m.cfg.MaxLength)
		}
		for _, id := range row {
			if id < 0 || id >= m.cfg.VocabSize {
				return fmt.Errorf("model: token id %d out of range [0,%d)", id, m.cfg.VocabSize)
			}
		}
	}
	for t, x := range m.xs {
		data := x.Value().Data().([]float32)
		clear(data)
		for r, row := range rows {
			copy(data[r*e:(r+1)*e], m.embedding[row[t]*e:(row[t]+1)*e])
		}
	}
	target := m.target.Value().Data().([]float32)
	clear(target)
	if labels == nil {
		return nil
	}
	var sum float64
	for _, label := range labels {
		if label < 0 || label >= c {
			return fmt.Errorf("model: label %d out of range [0,%d)", label, c)
		}
		sum += classWeight(weights, label)
	}
	if sum <= 0 {
		return errors.New("model: class weights of batch sum to zero")
	}
	for r, label := range labels {
		target[r*c+label] = float32(classWeight(weights, label) / sum)
	}
	return nil
}

func classWeight(weights []float64, label int) float64 {
	if weights == nil {
		return 1
	}
	return weights[label]
}

func (m *LSTMClassifier) updateEmbedding(rows [][]int) {
	e := m.cfg.EmbedSize
	lr := float32(m.cfg.EmbedLearningRate)
	for t, gn := range m.xGrads {
		grad := gn.Value().Data().([]float32)
		for r, row := range rows {
			id := row[t]
			if id == 0 {
				continue
			}
			dst := m.embedding[id*e : (id+1)*e]
			for k, g := range grad[r*e : (r+1)*e] {
				dst[k] -= lr * g
			}
		}
	}
}

type lstmCheckpoint struct {
	Config    LSTMConfig
	Embedding []float32
	Params    map[string][]float32
}

// Checkpoint writes the embedding table and every dense parameter.
func (m *LSTMClassifier) Checkpoint(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ck := lstmCheckpoint{
		Config:    m.cfg,
		Embedding: append([]float32(nil), m.embedding...),
		Params:    make(map[string][]float32, len(m.learnables)),
	}
	for _, n := range m.learnables {
		ck.Params[n.Name()] = append([]float32(nil), n.Value().Data().([]float32)...)
	}
	return gob.NewEncoder(w).Encode(ck)
}

// Restore loads a checkpoint written by a model of the same shape. The graph
// batch size may differ.
func (m *LSTMClassifier) Restore(r io.Reader) error {
	var ck lstmCheckpoint
	if err := gob.NewDecoder(r).Decode(&ck); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	got, want := ck.Config, m.cfg
	if got.VocabSize != want.VocabSize || got.NumClasses != want.NumClasses || got.MaxLength != want.MaxLength ||
		got.EmbedSize != want.EmbedSize || got.HiddenSize != want.HiddenSize {
		return fmt.Errorf("model: checkpoint shape %dx%dx%d (embed %d, hidden %d) does not match %dx%dx%d (embed %d, hidden %d)",
			got.VocabSize, got.NumClasses, got.MaxLength, got.EmbedSize, got.HiddenSize,
			want.VocabSize, want.NumClasses, want.MaxLength, want.EmbedSize, want.HiddenSize)
	}
	if len(ck.Embedding) != len(m.embedding) {
		return fmt.Errorf("model: checkpoint embedding has %d values, want %d", len(ck.Embedding), len(m.embedding))
	}
	for _, n := range m.learnables {
		src, ok := ck.Params[n.Name()]
		dst := n.Value().Data().([]float32)
		if !ok || len(src) != len(dst) {
			return fmt.Errorf("model: checkpoint is missing parameter %s", n.Name())
		}
	}
	copy(m.embedding, ck.Embedding)
	for _, n := range m.learnables {
		copy(n.Value().Data().([]float32), ck.Params[n.Name()])
	}
	return nil
}
