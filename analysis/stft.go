package analysis

import (
	"fmt"
	"math"
	"strings"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/mjibson/go-dsp/fft"
)

// DefaultWindow is the analysis window used when none is configured.
const DefaultWindow = "hann"

// STFTOptions configures framing for STFT and Envelope.
type STFTOptions struct {
	// Hop is the sample offset between frames. Zero selects max(1, n/4).
	Hop int
	// Window names the analysis window (hann, hamming, blackman, rectangular).
	// Empty selects DefaultWindow.
	Window string
}

// Spectrogram holds the single-sided spectra of consecutive analysis frames.
type Spectrogram struct {
	SampleRate float64
	Size       int
	Hop        int
	// Freqs holds the centre frequency of each of the Size/2+1 bins.
	Freqs []float64
	// Times holds the centre time of each frame in seconds.
	Times []float64
	// Frames[i][k] is bin k of frame i, scaled so a unit sine on a bin reads 1.
	Frames [][]complex128
}

// ParseWindow maps a window name onto its algo-dsp type.
func ParseWindow(name string) (window.Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hann", "hanning":
		return window.TypeHann, nil
	case "hamming":
		return window.TypeHamming, nil
	case "blackman":
		return window.TypeBlackman, nil
	case "rectangular", "boxcar", "rect":
		return window.TypeRectangular, nil
	default:
		return 0, fmt.Errorf("%w: unsupported window %q", fault.ErrConfig, name)
	}
}

// FrameCount returns how many complete windows of n samples fit in a signal
// of the given length when advancing by hop.
func FrameCount(length, n, hop int) int {
	if n < 1 || hop < 1 || length < n {
		return 0
	}
	return (length-n)/hop + 1
}

// STFT computes the short-time spectrum of signal using windows of n
// samples. Only complete windows are analyzed; the tail that does not fill
// a window is dropped.
func STFT(signal []float64, fs float64, n int, opts STFTOptions) (*Spectrogram, error) {
	fr, err := newFraming(fs, n, opts)
	if err != nil {
		return nil, err
	}

	bins := n/2 + 1
	s := &Spectrogram{
		SampleRate: fs,
		Size:       n,
		Hop:        fr.hop,
		Freqs:      make([]float64, bins),
	}
	for k := range s.Freqs {
		s.Freqs[k] = float64(k) * fs / float64(n)
	}

	frames := FrameCount(len(signal), n, fr.hop)
	s.Times = fr.times(frames)
	s.Frames = make([][]complex128, frames)
	if frames == 0 {
		return s, nil
	}

	transform, err := newFrameTransform(n)
	if err != nil {
		return nil, err
	}
	buf := make([]float64, n)
	for i := 0; i < frames; i++ {
		start := i * fr.hop
		for j := 0; j < n; j++ {
			buf[j] = signal[start+j] * fr.coeffs[j]
		}
		spec := transform(buf)
		for k := range spec {
			spec[k] *= complex(fr.binScale(k), 0)
		}
		s.Frames[i] = spec
	}
	return s, nil
}

// NearestBin returns the index of the bin whose frequency is closest to freq.
func (s *Spectrogram) NearestBin(freq float64) int {
	return nearestBin(freq, s.SampleRate, s.Size)
}

// Magnitudes returns |X[bin]| for every frame.
func (s *Spectrogram) Magnitudes(bin int) []float64 {
	out := make([]float64, len(s.Frames))
	for i, f := range s.Frames {
		if bin >= 0 && bin < len(f) {
			out[i] = math.Hypot(real(f[bin]), imag(f[bin]))
		}
	}
	return out
}

type framing struct {
	hop    int
	n      int
	fs     float64
	coeffs []float64
	sum    float64
}

func newFraming(fs float64, n int, opts STFTOptions) (*framing, error) {
	if !(fs > 0) || math.IsInf(fs, 0) {
		return nil, fmt.Errorf("%w: sample rate must be > 0: %v", fault.ErrConfig, fs)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: window size must be >= 1: %d", fault.ErrConfig, n)
	}
	if opts.Hop < 0 {
		return nil, fmt.Errorf("%w: hop must be >= 1: %d", fault.ErrConfig, opts.Hop)
	}
	hop := opts.Hop
	if hop == 0 {
		hop = n / 4
		if hop < 1 {
			hop = 1
		}
	}
	wt, err := ParseWindow(opts.Window)
	if err != nil {
		return nil, err
	}
	coeffs := window.Generate(wt, n, window.WithPeriodic())
	var sum float64
	for _, c := range coeffs {
		sum += c
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: window %q has zero gain at size %d", fault.ErrConfig, opts.Window, n)
	}
	return &framing{hop: hop, n: n, fs: fs, coeffs: coeffs, sum: sum}, nil
}

func (f *framing) times(frames int) []float64 {
	out := make([]float64, frames)
	half := float64(f.n) / 2
	for i := range out {
		out[i] = (float64(i*f.hop) + half) / f.fs
	}
	return out
}

// binScale converts a raw DFT bin into a single-sided amplitude. DC and the
// Nyquist bin have no mirror image and are not doubled.
func (f *framing) binScale(k int) float64 {
	if k == 0 || (f.n%2 == 0 && k == f.n/2) {
		return 1 / f.sum
	}
	return 2 / f.sum
}

// newFrameTransform returns a function computing the n/2+1 non-negative
// frequency bins of a real frame. Power-of-two sizes use an algo-fft real
// plan; other sizes fall back to go-dsp, which handles arbitrary lengths.
func newFrameTransform(n int) (func([]float64) []complex128, error) {
	bins := n/2 + 1
	if n >= 2 && n&(n-1) == 0 {
		plan, err := algofft.NewPlanReal64(n)
		if err != nil {
			return nil, fmt.Errorf("fft plan: %w", err)
		}
		return func(frame []float64) []complex128 {
			out := make([]complex128, bins)
			plan.Forward(out, frame)
			return out
		}, nil
	}
	return func(frame []float64) []complex128 {
		full := fft.FFTReal(frame)
		out := make([]complex128, bins)
		copy(out, full[:bins])
		return out
	}, nil
}

// nearestBin picks the bin closest to freq on a grid of k*fs/n, preferring
// the lower bin on exact ties and saturating at the Nyquist bin.
func nearestBin(freq, fs float64, n int) int {
	last := n / 2
	if freq <= 0 {
		return 0
	}
	pos := freq * float64(n) / fs
	lo := int(math.Floor(pos))
	if lo >= last {
		return last
	}
	hi := lo + 1
	step := fs / float64(n)
	dLo := math.Abs(float64(lo)*step - freq)
	dHi := math.Abs(float64(hi)*step - freq)
	if dLo <= dHi {
		return lo
	}
	return hi
}
