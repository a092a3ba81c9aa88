package synth

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/fault"
)

// Predictor returns the log amplitude of a harmonic. Pitch and velocity are
// MIDI values divided by 127; the harmonic is mapped onto [0, 1] as
// (h-1)/(maxHarmonics-1); t is seconds since note onset.
type Predictor interface {
	Predict(pitchNorm, velocityNorm, harmonicNorm, t float64) float64
}

// NoteBinder is implemented by predictors that can resolve a note once
// before rendering. The returned predictor answers for that note only.
type NoteBinder interface {
	Bind(pitch, velocity int) Predictor
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(pitchNorm, velocityNorm, harmonicNorm, t float64) float64

// Predict calls f.
func (f PredictorFunc) Predict(p, v, h, t float64) float64 { return f(p, v, h, t) }

// PredictedEnvelope queries a Predictor for harmonics 1..MaxHarmonics.
type PredictedEnvelope struct {
	predictor    Predictor
	pitch        int
	velocity     int
	duration     float64
	maxHarmonics int
	hs           []int
}

// NewPredictedEnvelope returns a source spanning [0, duration).
// maxHarmonics of zero selects archive.MaxHarmonics.
func NewPredictedEnvelope(p Predictor, pitch, velocity int, duration float64, maxHarmonics int) (*PredictedEnvelope, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil predictor", fault.ErrConfig)
	}
	if !(duration > 0) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("%w: duration must be > 0: %v", fault.ErrConfig, duration)
	}
	if maxHarmonics == 0 {
		maxHarmonics = archive.MaxHarmonics
	}
	if maxHarmonics < 1 {
		return nil, fmt.Errorf("%w: max harmonics must be >= 1: %d", fault.ErrConfig, maxHarmonics)
	}
	if b, ok := p.(NoteBinder); ok {
		p = b.Bind(pitch, velocity)
	}
	hs := make([]int, maxHarmonics)
	for i := range hs {
		hs[i] = i + 1
	}
	return &PredictedEnvelope{
		predictor:    p,
		pitch:        pitch,
		velocity:     velocity,
		duration:     duration,
		maxHarmonics: maxHarmonics,
		hs:           hs,
	}, nil
}

func (p *PredictedEnvelope) Pitch() int { return p.pitch }

func (p *PredictedEnvelope) Span() (float64, float64) { return 0, p.duration }

func (p *PredictedEnvelope) Harmonics() []int { return p.hs }

func (p *PredictedEnvelope) Amplitudes(h int, t []float64, dst []float64) {
	pn := float64(p.pitch) / 127
	vn := float64(p.velocity) / 127
	hn := HarmonicNorm(h, p.maxHarmonics)
	for i, ti := range t {
		dst[i] = PredictedAmplitude(p.predictor.Predict(pn, vn, hn, ti))
	}
}

// HarmonicNorm maps harmonic h onto [0, 1] for a model trained on
// harmonics 1..maxHarmonics.
func HarmonicNorm(h, maxHarmonics int) float64 {
	if maxHarmonics <= 1 {
		return 0
	}
	return float64(h-1) / float64(maxHarmonics-1)
}

// PredictedAmplitude converts a predicted log amplitude into a linear
// amplitude clamped to [PredictMinAmplitude, PredictMaxAmplitude].
func PredictedAmplitude(logAmp float64) float64 {
	if math.IsNaN(logAmp) {
		return PredictMinAmplitude
	}
	a := math.Exp(logAmp)
	return math.Min(math.Max(a, PredictMinAmplitude), PredictMaxAmplitude)
}
