package quant

import (
	"fmt"

	"github.com/cwbudde/algo-harmonics/fault"
)

// Layer is a quantized dense layer. Weights are stored row-major as
// [Out][In]; weights and biases carry independent ranges.
type Layer struct {
	Name    string `json:"name"`
	In      int    `json:"in"`
	Out     int    `json:"out"`
	Weights Tensor `json:"weights"`
	Biases  Tensor `json:"biases"`
}

// QuantizeLayer encodes a dense layer given as [out][in] weights and out biases.
func QuantizeLayer(name string, weights [][]float64, biases []float64) (Layer, error) {
	out := len(weights)
	if out == 0 || len(biases) != out {
		return Layer{}, fmt.Errorf("%w: layer %s: %d weight rows, %d biases", fault.ErrInputShape, name, out, len(biases))
	}
	in := len(weights[0])
	flat := make([]float64, 0, out*in)
	for r, row := range weights {
		if len(row) != in {
			return Layer{}, fmt.Errorf("%w: layer %s: row %d has %d inputs, want %d", fault.ErrInputShape, name, r, len(row), in)
		}
		flat = append(flat, row...)
	}
	w, err := Encode(flat)
	if err != nil {
		return Layer{}, fmt.Errorf("layer %s weights: %w", name, err)
	}
	b, err := Encode(biases)
	if err != nil {
		return Layer{}, fmt.Errorf("layer %s biases: %w", name, err)
	}
	return Layer{Name: name, In: in, Out: out, Weights: w, Biases: b}, nil
}

// Validate checks that tensor sizes agree with the layer shape.
func (l Layer) Validate() error {
	if l.In < 1 || l.Out < 1 {
		return fmt.Errorf("%w: layer %s: shape %dx%d", fault.ErrInputShape, l.Name, l.Out, l.In)
	}
	if len(l.Weights.Bytes) != l.In*l.Out {
		return fmt.Errorf("%w: layer %s: %d weights for %dx%d", fault.ErrInputShape, l.Name, len(l.Weights.Bytes), l.Out, l.In)
	}
	if len(l.Biases.Bytes) != l.Out {
		return fmt.Errorf("%w: layer %s: %d biases for %d outputs", fault.ErrInputShape, l.Name, len(l.Biases.Bytes), l.Out)
	}
	return nil
}

// Dense returns the dequantized [out][in] weights and biases.
func (l Layer) Dense() ([][]float64, []float64) {
	flat := l.Weights.Decode()
	w := make([][]float64, l.Out)
	for r := range w {
		w[r] = flat[r*l.In : (r+1)*l.In]
	}
	return w, l.Biases.Decode()
}

// Dense32 is Dense with every value reconstructed in single precision.
func (l Layer) Dense32() ([][]float64, []float64) {
	flat := widen(l.Weights.Decode32())
	w := make([][]float64, l.Out)
	for r := range w {
		w[r] = flat[r*l.In : (r+1)*l.In]
	}
	return w, widen(l.Biases.Decode32())
}

func widen(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
