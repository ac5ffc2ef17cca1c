package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ORTConfig describes an exported classifier: a graph taking int64 input_ids
// of shape [1, MaxLength] and producing float logits of shape [1, NumClasses].
type ORTConfig struct {
	ModelPath  string
	OrtLibrary string
	MaxLength  int
	NumClasses int
	InputName  string
	OutputName string
}

// ORTClassifier runs an exported classifier through onnxruntime, one row at a time.
type ORTClassifier struct {
	cfg     ORTConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[int64]
	output  *ort.Tensor[float32]
	mu      sync.Mutex
}

var ortInitMu sync.Mutex

// NewORTClassifier initializes the runtime environment on first use and binds
// fixed input and output tensors to a session.
func NewORTClassifier(cfg ORTConfig) (*ORTClassifier, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, errors.New("model: onnx model path is empty")
	}
	if cfg.MaxLength <= 0 || cfg.NumClasses <= 0 {
		return nil, fmt.Errorf("model: invalid onnx shape %dx%d", cfg.MaxLength, cfg.NumClasses)
	}
	if cfg.InputName == "" {
		cfg.InputName = "input_ids"
	}
	if err := initRuntime(cfg.OrtLibrary); err != nil {
		return nil, err
	}
	outName, dims, err := selectOutput(cfg.ModelPath, cfg.OutputName)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", filepath.Base(cfg.ModelPath), err)
	}
	cfg.OutputName = outName

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	input, err := ort.NewEmptyTensor[int64](ort.NewShape(1, int64(cfg.MaxLength)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](outputShape(dims, cfg.NumClasses))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &ORTClassifier{cfg: cfg, session: session, input: input, output: output}, nil
}

func initRuntime(lib string) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if lib == "" {
		lib = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

func selectOutput(path, want string) (string, []int64, error) {
	_, outputs, err := ort.GetInputOutputInfoWithOptions(path, nil)
	if err != nil {
		return "", nil, err
	}
	if len(outputs) == 0 {
		return "", nil, errors.New("no outputs found")
	}
	if want == "" {
		want = "logits"
	}
	for _, out := range outputs {
		if strings.EqualFold(out.Name, want) {
			return out.Name, out.Dimensions, nil
		}
	}
	if len(outputs) == 1 {
		return outputs[0].Name, outputs[0].Dimensions, nil
	}
	return "", nil, fmt.Errorf("no output named %q", want)
}

// outputShape keeps the rank reported by the model and fills dynamic
// dimensions: the last one with the class count, the rest with 1.
func outputShape(dims []int64, numClasses int) ort.Shape {
	if len(dims) == 0 {
		return ort.NewShape(1, int64(numClasses))
	}
	shape := make([]int64, len(dims))
	for i, v := range dims {
		switch {
		case i == len(dims)-1:
			shape[i] = int64(numClasses)
		case v > 0:
			shape[i] = v
		default:
			shape[i] = 1
		}
	}
	return ort.Shape(shape)
}

// NumClasses returns the width of each score row.
func (o *ORTClassifier) NumClasses() int { return o.cfg.NumClasses }

// Scores runs the session once per row and returns the logits.
func (o *ORTClassifier) Scores(texts [][]int) ([][]float32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, errors.New("model: onnx classifier is closed")
	}
	out := make([][]float32, len(texts))
	in := o.input.GetData()
	for r, row := range texts {
		if len(row) != len(in) {
			return nil, fmt.Errorf("model: row %d has length %d, want %d", r, len(row), len(in))
		}
		for i, id := range row {
			in[i] = int64(id)
		}
		if err := o.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx run: %w", err)
		}
		data := o.output.GetData()
		if len(data) < o.cfg.NumClasses {
			return nil, fmt.Errorf("model: onnx output has %d values, want %d", len(data), o.cfg.NumClasses)
		}
		scores := make([]float32, o.cfg.NumClasses)
		copy(scores, data[len(data)-o.cfg.NumClasses:])
		out[r] = scores
	}
	return out, nil
}

// Close releases the session and tensors.
func (o *ORTClassifier) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	if o.session != nil {
		errs = append(errs, o.session.Destroy())
		o.session = nil
	}
	if o.input != nil {
		errs = append(errs, o.input.Destroy())
		o.input = nil
	}
	if o.output != nil {
		errs = append(errs, o.output.Destroy())
		o.output = nil
	}
	return errors.Join(errs...)
}
