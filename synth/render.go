// Package synth renders notes by additive synthesis from harmonic
// amplitude envelopes.
package synth

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-harmonics/analysis"
	"github.com/cwbudde/algo-harmonics/dsp"
	"github.com/cwbudde/algo-harmonics/fault"
)

// DefaultSampleRate is the output rate used when none is configured.
const DefaultSampleRate = 48000

// Options controls rendering.
type Options struct {
	// Normalize scales the output so its peak is 1. Silence stays silent.
	Normalize bool
	// SkipAboveNyquist drops harmonics at or above half the sample rate
	// instead of letting them alias.
	SkipAboveNyquist bool
}

// FrequencyForPitch returns the fundamental of a MIDI pitch with A4 = 440 Hz.
func FrequencyForPitch(pitch int) float64 {
	return analysis.PitchFrequency(pitch)
}

// TimeAxis returns the sample times covering [start, end) at sampleRate:
// ceil((end-start)*sampleRate) points spaced evenly from start.
func TimeAxis(start, end, sampleRate float64) []float64 {
	dur := end - start
	if !(dur > 0) {
		return nil
	}
	n := int(math.Ceil(dur * sampleRate))
	t := make([]float64, n)
	step := dur / float64(n)
	for i := range t {
		t[i] = start + float64(i)*step
	}
	return t
}

// Render sums the harmonics of src as amplitude-modulated sines over its span.
func Render(src AmplitudeSource, sampleRate float64, opts Options) ([]float64, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w: sample rate must be > 0: %v", fault.ErrConfig, sampleRate)
	}
	start, end := src.Span()
	t := TimeAxis(start, end, sampleRate)
	out := make([]float64, len(t))
	if len(t) == 0 {
		return out, nil
	}

	f0 := FrequencyForPitch(src.Pitch())
	amp := make([]float64, len(t))
	for _, h := range src.Harmonics() {
		freq := f0 * float64(h)
		if opts.SkipAboveNyquist && freq >= sampleRate/2 {
			continue
		}
		src.Amplitudes(h, t, amp)
		w := 2 * math.Pi * freq
		for i, ti := range t {
			out[i] += amp[i] * math.Sin(w*ti)
		}
	}

	if opts.Normalize {
		dsp.Normalize(out)
	}
	return out, nil
}
