// Package model evaluates the small multilayer perceptron that predicts
// harmonic log amplitudes from (pitch, velocity, harmonic, time).
package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	approx "github.com/cwbudde/algo-approx"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/algo-harmonics/quant"
)

// InputSize is the number of model inputs.
const InputSize = 4

// Layer is a dense layer with weights stored as [out][in].
type Layer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// In returns the input width.
func (l Layer) In() int {
	if len(l.Weights) == 0 {
		return 0
	}
	return len(l.Weights[0])
}

// Out returns the output width.
func (l Layer) Out() int { return len(l.Weights) }

// MLP applies SiLU after every layer except the last.
type MLP struct {
	Layers []Layer `json:"layers"`
}

// Validate checks that layer shapes chain from InputSize inputs to a
// single output and that every parameter is finite.
func (m *MLP) Validate() error {
	if m == nil || len(m.Layers) == 0 {
		return fmt.Errorf("%w: model has no layers", fault.ErrInputShape)
	}
	in := InputSize
	for i, l := range m.Layers {
		if l.Out() == 0 || len(l.Biases) != l.Out() {
			return fmt.Errorf("%w: layer %d: %d rows, %d biases", fault.ErrInputShape, i, l.Out(), len(l.Biases))
		}
		for r, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("%w: layer %d row %d: %d inputs, want %d", fault.ErrInputShape, i, r, len(row), in)
			}
			for _, v := range row {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("%w: layer %d has non-finite weight", fault.ErrDataIntegrity, i)
				}
			}
		}
		for _, v := range l.Biases {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: layer %d has non-finite bias", fault.ErrDataIntegrity, i)
			}
		}
		in = l.Out()
	}
	if in != 1 {
		return fmt.Errorf("%w: model has %d outputs, want 1", fault.ErrInputShape, in)
	}
	return nil
}

// Sizes returns the input width followed by each layer's output width.
func (m *MLP) Sizes() []int {
	sizes := []int{InputSize}
	for _, l := range m.Layers {
		sizes = append(sizes, l.Out())
	}
	return sizes
}

// Predict returns the predicted log amplitude.
func (m *MLP) Predict(pitchNorm, velocityNorm, harmonicNorm, t float64) float64 {
	x := []float64{pitchNorm, velocityNorm, harmonicNorm, t}
	last := len(m.Layers) - 1
	for i, l := range m.Layers {
		y := make([]float64, l.Out())
		for r, row := range l.Weights {
			sum := l.Biases[r]
			for j, w := range row {
				sum += w * x[j]
			}
			if i < last {
				sum = silu(sum)
			}
			y[r] = sum
		}
		x = y
	}
	return x[0]
}

// Predict32 evaluates the model in single precision with an approximate
// exponential in the activation, matching what an embedded target computes.
func (m *MLP) Predict32(pitchNorm, velocityNorm, harmonicNorm, t float32) float32 {
	x := []float32{pitchNorm, velocityNorm, harmonicNorm, t}
	last := len(m.Layers) - 1
	for i, l := range m.Layers {
		y := make([]float32, l.Out())
		for r, row := range l.Weights {
			sum := float32(l.Biases[r])
			for j, w := range row {
				sum += float32(w) * x[j]
			}
			if i < last {
				sum = sum / (1 + approx.FastExp(-sum))
			}
			y[r] = sum
		}
		x = y
	}
	return x[0]
}

func silu(x float64) float64 {
	return x / (1 + math.Exp(-x))
}

// Decode reads a model exported as {"layers": [{"weights": [[...]], "biases": [...]}]}.
func Decode(r io.Reader) (*MLP, error) {
	var m MLP
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", fault.ErrDataIntegrity, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadJSON reads a model file.
func LoadJSON(path string) (*MLP, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// SaveJSON writes the model to path.
func (m *MLP) SaveJSON(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// Quantize encodes every layer with independent weight and bias ranges.
func (m *MLP) Quantize() ([]quant.Layer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := make([]quant.Layer, len(m.Layers))
	for i, l := range m.Layers {
		name := fmt.Sprintf("layer%d", i+1)
		if i == len(m.Layers)-1 {
			name = "out"
		}
		ql, err := quant.QuantizeLayer(name, l.Weights, l.Biases)
		if err != nil {
			return nil, err
		}
		out[i] = ql
	}
	return out, nil
}

// FromQuantized rebuilds a model from quantized layers, yielding the
// parameters an embedded consumer would reconstruct.
func FromQuantized(layers []quant.Layer) (*MLP, error) {
	return fromQuantized(layers, quant.Layer.Dense)
}

// FromQuantized32 is FromQuantized for a consumer that dequantizes in
// single precision.
func FromQuantized32(layers []quant.Layer) (*MLP, error) {
	return fromQuantized(layers, quant.Layer.Dense32)
}

func fromQuantized(layers []quant.Layer, dense func(quant.Layer) ([][]float64, []float64)) (*MLP, error) {
	m := &MLP{Layers: make([]Layer, len(layers))}
	for i, ql := range layers {
		if err := ql.Validate(); err != nil {
			return nil, err
		}
		w, b := dense(ql)
		m.Layers[i] = Layer{Weights: w, Biases: b}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Float32 evaluates an MLP through Predict32.
type Float32 struct {
	*MLP
}

// Predict implements synth.Predictor in single precision.
func (f Float32) Predict(pitchNorm, velocityNorm, harmonicNorm, t float64) float64 {
	return float64(f.Predict32(float32(pitchNorm), float32(velocityNorm), float32(harmonicNorm), float32(t)))
}
