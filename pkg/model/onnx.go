package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mchmarny/credscore/pkg/table"
)

// ProbabilityOutput is the output name classifier exporters use for the
// class probability matrix.
const ProbabilityOutput = "probabilities"

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(lib string) error {
	ortOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXScorer runs an exported binary classifier with onnxruntime. The
// model takes either one float tensor [N, features] or one [N, 1] tensor per
// feature column, and returns class probabilities [N, 2].
type ONNXScorer struct {
	session  *ort.DynamicAdvancedSession
	inputs   []ort.InputOutputInfo
	output   ort.InputOutputInfo
	features int64
}

// NewONNX opens the model at path. lib overrides the onnxruntime shared
// library location.
func NewONNX(path, lib string) (*ONNXScorer, error) {
	if err := initRuntime(lib); err != nil {
		return nil, fmt.Errorf("error initializing onnxruntime: %w", err)
	}

	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("error reading model %s: %w", path, err)
	}
	if len(ins) == 0 {
		return nil, errors.New("model has no inputs")
	}
	for _, in := range ins {
		if in.DataType != ort.TensorElementDataTypeFloat {
			return nil, fmt.Errorf("input %s: unsupported element type %v", in.Name, in.DataType)
		}
	}

	out, err := probabilityOutput(outs)
	if err != nil {
		return nil, err
	}

	s := &ONNXScorer{inputs: ins, output: out, features: -1}
	if len(ins) == 1 && len(ins[0].Dimensions) == 2 {
		s.features = ins[0].Dimensions[1]
	}

	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.Name
	}
	s.session, err = ort.NewDynamicAdvancedSession(path, names, []string{out.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating session for %s: %w", path, err)
	}

	slog.Debug("onnx model loaded", "path", path, "inputs", len(ins), "output", out.Name)
	return s, nil
}

func probabilityOutput(outs []ort.InputOutputInfo) (ort.InputOutputInfo, error) {
	var found *ort.InputOutputInfo
	for i := range outs {
		if outs[i].Name == ProbabilityOutput {
			found = &outs[i]
			break
		}
	}
	if found == nil && len(outs) == 2 {
		found = &outs[1]
	}
	if found == nil {
		return ort.InputOutputInfo{}, fmt.Errorf("model has no %q output", ProbabilityOutput)
	}
	if found.OrtValueType != ort.ONNXTypeTensor || found.DataType != ort.TensorElementDataTypeFloat {
		return ort.InputOutputInfo{}, fmt.Errorf("output %s must be a float tensor, export without zipmap", found.Name)
	}
	return *found, nil
}

// Score implements Scorer.
func (s *ONNXScorer) Score(ctx context.Context, t *table.Table) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int64(t.Len())
	if n == 0 {
		return []float64{}, nil
	}

	inputs, err := s.tensors(t)
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	if err != nil {
		return nil, err
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 2))
	if err != nil {
		return nil, fmt.Errorf("error allocating output: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run(inputs, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("error running model: %w", err)
	}

	data := out.GetData()
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = float64(data[i*2+1])
	}
	return probs, nil
}

func (s *ONNXScorer) tensors(t *table.Table) ([]ort.Value, error) {
	n := int64(t.Len())

	if len(s.inputs) == 1 {
		cols := t.Columns()
		if s.features > 0 && s.features != int64(len(cols)) {
			return nil, fmt.Errorf("model expects %d features, got %d", s.features, len(cols))
		}
		data, err := matrix(t, cols, nil)
		if err != nil {
			return nil, err
		}
		x, err := ort.NewTensor(ort.NewShape(n, int64(len(cols))), float32s(data))
		if err != nil {
			return nil, fmt.Errorf("error creating input tensor: %w", err)
		}
		return []ort.Value{x}, nil
	}

	vals := make([]ort.Value, 0, len(s.inputs))
	for _, in := range s.inputs {
		data, err := matrix(t, []string{in.Name}, nil)
		if err != nil {
			return vals, err
		}
		x, err := ort.NewTensor(ort.NewShape(n, 1), float32s(data))
		if err != nil {
			return vals, fmt.Errorf("error creating input tensor %s: %w", in.Name, err)
		}
		vals = append(vals, x)
	}
	return vals, nil
}

func float32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// Close releases the session.
func (s *ONNXScorer) Close() error {
	if s.session == nil {
		return nil
	}
	return s.session.Destroy()
}
