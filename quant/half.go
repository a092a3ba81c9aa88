package quant

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// EncodeHalf converts xs to IEEE 754 binary16 bit patterns. Values outside
// the half range saturate to infinity, so only non-finite input is rejected.
func EncodeHalf[F constraints.Float](xs []F) ([]uint16, error) {
	out := make([]uint16, len(xs))
	for i, x := range xs {
		v := float64(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: element %d is %v", fault.ErrDataIntegrity, i, v)
		}
		out[i] = float16.Fromfloat32(float32(v)).Bits()
	}
	return out, nil
}

// DecodeHalf expands binary16 bit patterns.
func DecodeHalf(bits []uint16) []float64 {
	out := make([]float64, len(bits))
	for i, b := range bits {
		out[i] = float64(float16.Frombits(b).Float32())
	}
	return out
}
