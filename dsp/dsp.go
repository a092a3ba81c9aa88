// Package dsp holds small sample-level helpers shared by the synthesis and
// rendering code.
package dsp

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
)

// Peak returns the largest absolute sample value.
func Peak(x []float64) float64 {
	var p float64
	for _, v := range x {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}

// Normalize scales x in place so that its peak is 1 and returns the
// original peak. A silent signal is left untouched.
func Normalize(x []float64) float64 {
	p := Peak(x)
	if p == 0 {
		return 0
	}
	g := 1 / p
	for i := range x {
		x[i] *= g
	}
	return p
}

// Mix adds src scaled by gain into dst starting at offset, growing dst as
// needed, and returns the result.
func Mix(dst, src []float64, offset int, gain float64) []float64 {
	if offset < 0 {
		src = src[min(-offset, len(src)):]
		offset = 0
	}
	if need := offset + len(src); need > len(dst) {
		dst = append(dst, make([]float64, need-len(dst))...)
	}
	for i, v := range src {
		dst[offset+i] += gain * v
	}
	return dst
}

// ToFloat32 converts samples for output, clamping to [-1, 1] and flushing
// denormals.
func ToFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(core.Clamp(core.FlushDenormals(v), -1, 1))
	}
	return out
}
