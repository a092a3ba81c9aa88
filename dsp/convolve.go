package dsp

import (
	"fmt"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"
)

// Convolve runs x through an impulse response, such as a body or room
// response, with overlap-add convolution. The result keeps the decay tail,
// len(x)+len(ir)-1 samples. Wet mixes the convolved signal with the dry
// input: 0 leaves x unchanged, 1 is fully convolved.
func Convolve(x, ir []float64, wet float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, nil
	}
	if len(ir) == 0 || wet <= 0 {
		return append([]float64(nil), x...), nil
	}
	if wet > 1 {
		wet = 1
	}
	y, err := dspconv.OverlapAddConvolve(x, ir)
	if err != nil {
		return nil, fmt.Errorf("convolve: %w", err)
	}
	dry := 1 - wet
	for i := range y {
		y[i] *= wet
		if i < len(x) {
			y[i] += dry * x[i]
		}
	}
	return y, nil
}
