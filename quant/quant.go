// Package quant implements the 8-bit affine codec used to ship model
// parameters to embedded targets.
//
// Each array is mapped linearly from its own [min, max] range onto the
// bytes 0..255:
//
//	q = round(clamp((x - min) * 255 / (max - min), 0, 255))
//	x' = q * (max - min) / 255 + min
//
// A constant array encodes to zeros and decodes back to the constant. Ranges
// wider than the largest float64 are handled on half values so any finite
// input encodes.
package quant

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-harmonics/fault"
	"golang.org/x/exp/constraints"
)

// Levels is the largest quantized value.
const Levels = 255

// Tensor is one quantized array with its affine range.
type Tensor struct {
	Bytes []uint8 `json:"bytes"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Encode quantizes xs. It fails on NaN or infinite input. An empty input
// yields an empty tensor with a zero range.
func Encode[F constraints.Float](xs []F) (Tensor, error) {
	t := Tensor{Bytes: make([]uint8, len(xs))}
	if len(xs) == 0 {
		return t, nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, x := range xs {
		v := float64(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Tensor{}, fmt.Errorf("%w: element %d is %v", fault.ErrDataIntegrity, i, v)
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	t.Min, t.Max = lo, hi
	if lo == hi {
		return t, nil
	}
	wide := math.IsInf(hi-lo, 0)
	scale := Levels / (hi - lo)
	if wide {
		scale = Levels / halfSpan(lo, hi)
	}
	for i, x := range xs {
		q := (float64(x) - lo) * scale
		if wide {
			q = (float64(x)/2 - lo/2) * scale
		}
		t.Bytes[i] = uint8(math.Round(math.Min(math.Max(q, 0), Levels)))
	}
	return t, nil
}

// halfSpan is (hi-lo)/2 computed without overflow.
func halfSpan(lo, hi float64) float64 {
	return hi/2 - lo/2
}

// Dequantize maps one byte back into the range [min, max].
func Dequantize(b uint8, min, max float64) float64 {
	if d := max - min; !math.IsInf(d, 0) {
		return float64(b)*d/Levels + min
	}
	// Each partial sum stays inside [min, max].
	part := float64(b) / Levels * halfSpan(min, max)
	return min + part + part
}

// Decode reconstructs the array.
func (t Tensor) Decode() []float64 {
	out := make([]float64, len(t.Bytes))
	for i, b := range t.Bytes {
		out[i] = Dequantize(b, t.Min, t.Max)
	}
	return out
}

// Decode32 reconstructs the array in single precision, the way an embedded
// consumer holding float32 range constants would.
func (t Tensor) Decode32() []float32 {
	lo, hi := float32(t.Min), float32(t.Max)
	out := make([]float32, len(t.Bytes))
	for i, b := range t.Bytes {
		if d := hi - lo; !math.IsInf(float64(d), 0) {
			out[i] = float32(b)*d/Levels + lo
			continue
		}
		part := float32(b) / Levels * (hi/2 - lo/2)
		out[i] = lo + part + part
	}
	return out
}

// Step returns the distance between adjacent quantization levels.
func (t Tensor) Step() float64 {
	return 2 * (halfSpan(t.Min, t.Max) / Levels)
}

// ErrorStats summarizes the reconstruction error of a tensor.
type ErrorStats struct {
	MaxAbsError float64 `json:"max_abs_error"`
	RMSError    float64 `json:"rms_error"`
	// Bound is half a quantization step, the worst case for exact arithmetic.
	Bound float64 `json:"bound"`
}

// Stats compares the original values with their reconstruction from t.
func Stats[F constraints.Float](xs []F, t Tensor) ErrorStats {
	s := ErrorStats{Bound: halfSpan(t.Min, t.Max) / Levels}
	dec := t.Decode()
	n := min(len(xs), len(dec))
	if n == 0 {
		return s
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := math.Abs(float64(xs[i]) - dec[i])
		s.MaxAbsError = math.Max(s.MaxAbsError, d)
		sum += d * d
	}
	s.RMSError = math.Sqrt(sum / float64(n))
	return s
}
