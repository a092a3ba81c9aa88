package analysis

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/spectrum"
	"github.com/cwbudde/algo-harmonics/fault"
)

// Envelope tracks the amplitude of one harmonic of f0 over time.
//
// The signal is cut into complete windows of n samples and, for each window,
// the magnitude of the bin nearest harmonic*f0 is reported. times holds the
// window centres in seconds. A signal shorter than n yields empty slices.
func Envelope(signal []float64, fs float64, n int, f0 float64, harmonic int, opts STFTOptions) (times, amplitudes []float64, err error) {
	times, amps, err := Envelopes(signal, fs, n, f0, []int{harmonic}, opts)
	if err != nil {
		return nil, nil, err
	}
	return times, amps[harmonic], nil
}

// Envelopes is Envelope for several harmonics sharing one framing. Each
// frame is windowed once. A few harmonics are evaluated with Goertzel
// filters; when there are more than log2(n) of them one real FFT per frame
// is cheaper and the bins are read from its spectrum instead.
func Envelopes(signal []float64, fs float64, n int, f0 float64, harmonics []int, opts STFTOptions) ([]float64, map[int][]float64, error) {
	if !(f0 > 0) || math.IsInf(f0, 0) {
		return nil, nil, fmt.Errorf("%w: fundamental must be > 0: %v", fault.ErrConfig, f0)
	}
	for _, h := range harmonics {
		if h < 1 {
			return nil, nil, fmt.Errorf("%w: harmonic must be >= 1: %d", fault.ErrConfig, h)
		}
	}
	fr, err := newFraming(fs, n, opts)
	if err != nil {
		return nil, nil, err
	}

	frames := FrameCount(len(signal), n, fr.hop)
	times := fr.times(frames)

	type tracker struct {
		k     int
		scale float64
		g     *spectrum.Goertzel
		out   []float64
	}
	trackers := make([]tracker, 0, len(harmonics))
	result := make(map[int][]float64, len(harmonics))
	for _, h := range harmonics {
		if _, dup := result[h]; dup {
			continue
		}
		k := nearestBin(float64(h)*f0, fs, n)
		out := make([]float64, frames)
		result[h] = out
		trackers = append(trackers, tracker{k: k, scale: fr.binScale(k), out: out})
	}
	if frames == 0 {
		return times, result, nil
	}

	var transform func([]float64) []complex128
	if useSpectrum(len(trackers), n) {
		if transform, err = newFrameTransform(n); err != nil {
			return nil, nil, err
		}
	} else {
		for i := range trackers {
			g, err := spectrum.NewGoertzel(float64(trackers[i].k)*fs/float64(n), fs)
			if err != nil {
				return nil, nil, fmt.Errorf("bin %d: %w", trackers[i].k, err)
			}
			trackers[i].g = g
		}
	}

	buf := make([]float64, n)
	for i := 0; i < frames; i++ {
		start := i * fr.hop
		for j := 0; j < n; j++ {
			buf[j] = signal[start+j] * fr.coeffs[j]
		}
		if transform != nil {
			spec := transform(buf)
			for _, tr := range trackers {
				tr.out[i] = math.Hypot(real(spec[tr.k]), imag(spec[tr.k])) * tr.scale
			}
			continue
		}
		for _, tr := range trackers {
			tr.g.Reset()
			tr.g.ProcessBlock(buf)
			tr.out[i] = tr.g.Magnitude() * tr.scale
		}
	}
	return times, result, nil
}

// useSpectrum reports whether a full FFT per frame beats one Goertzel
// filter per harmonic.
func useSpectrum(harmonics, n int) bool {
	return harmonics > 1 && float64(harmonics) > math.Log2(float64(n))
}

// Mono returns the single channel of a signal given as rows of samples.
// A single row is returned as-is, and a column (every row holding exactly
// one sample) is flattened. Anything else is rejected.
func Mono(rows [][]float64) ([]float64, error) {
	switch {
	case len(rows) == 0:
		return nil, fmt.Errorf("%w: empty signal", fault.ErrInputShape)
	case len(rows) == 1:
		return rows[0], nil
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		if len(r) != 1 {
			return nil, fmt.Errorf("%w: signal has %d rows of width %d, want one channel", fault.ErrInputShape, len(rows), len(r))
		}
		out[i] = r[0]
	}
	return out, nil
}
